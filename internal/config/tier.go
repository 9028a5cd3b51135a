package config

// applyTier forces the per-environment values.  It runs once, after
// validation, and its literals are not revalidated.  Testing and staging
// pass through unchanged.
func applyTier(s *Settings) {
	switch s.Environment {
	case Development:
		s.Debug = true
		s.Logging.Level = "DEBUG"
	case Production:
		s.Debug = false
		s.Logging.Level = "WARNING"
		s.RequestsPerMinute = 30
		s.RequestsPerHour = 500
	}
}
