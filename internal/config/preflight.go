package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrPreflight marks settings that load cleanly but must not serve traffic.
var ErrPreflight = errors.New("preflight failed")

// Preflight runs the startup checks that sit above field validation:
// critical secrets must be set, and production must not run on the
// placeholder signing key.  A production deploy without Firebase only
// warns, since token verification degrades to API tokens.
func Preflight(s *Settings, log *zap.SugaredLogger) error {
	log.Infow("checking environment configuration")

	var missing []string
	for _, c := range []struct{ key, val string }{
		{"DATABASE_URL", s.Database.URL},
		{"SECRET_KEY", s.SecretKey},
		{"PSEUDONYMIZATION_SALT", s.Salt},
	} {
		if strings.TrimSpace(c.val) == "" {
			missing = append(missing, c.key)
		}
	}
	if len(missing) > 0 {
		log.Errorw("missing critical settings", "keys", missing)
		return fmt.Errorf("%w: missing critical settings: %s", ErrPreflight, strings.Join(missing, ", "))
	}

	if s.IsProduction() {
		if s.SecretKey == DefaultSecretKey {
			log.Errorw("production environment using default secret key")
			return fmt.Errorf("%w: SECRET_KEY is the default placeholder in production", ErrPreflight)
		}
		if s.ProjectID == "" {
			log.Warnw("firebase not configured in production")
		}
	}

	log.Infow("environment configuration valid", "environment", s.Environment, "debug", s.Debug)
	return nil
}
