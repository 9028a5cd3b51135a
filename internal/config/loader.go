// internal/config/loader.go
//
// Settings loader and process-wide cache.
//
/*
Context
--------
`Load()` builds one `Settings` value from three layers (highest precedence
last):

  1. Compiled-in `Defaults()`.
  2. Optional `.env` file, found by `LocateEnvFile` climbing from the root
     directory (MINDMAP_ROOT, else the working directory).
  3. Process environment variables whose names match a settings key
     exactly.  Anything else in the environment is ignored.

Both overlays land in one Koanf tree as raw strings.  Each known key is
then coerced to its field type (coerce.go), the tree is decoded onto the
defaults, validated (validator.go), and finally the tier override is
applied (tier.go).  `Get()` memoizes the first `Load()` for the life of the
process.

Instrumentation
---------------
  • DEBUG spans – root discovery, env-file resolution.
  • ERROR spans – env-file read, coercion, decode, validation failures.
  • INFO  span  – final "config loaded" with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`), a no-op until
    internal/logger installs the real one.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	envFileName = ".env"

	// envSearchDepth counts the start directory plus its parents.
	envSearchDepth = 5

	rootEnvVar = "MINDMAP_ROOT"
)

/*──────────────────────────── env-file discovery ──────────────────────────*/

// LocateEnvFile returns the first `.env` found in start or its parents,
// searching envSearchDepth directories in total.  When none exists it
// returns the literal ".env".
func LocateEnvFile(start string) string {
	dir := start
	for i := 0; i < envSearchDepth; i++ {
		p := filepath.Join(dir, envFileName)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}
	return envFileName
}

// RootDir resolves MINDMAP_ROOT or falls back to the working directory.
func RootDir() string {
	if r := os.Getenv(rootEnvVar); r != "" {
		return r
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

/*──────────────────────────────── options ─────────────────────────────────*/

type loadOptions struct {
	envFile   string
	noEnvFile bool
}

// Option adjusts a single Load call.
type Option func(*loadOptions)

// WithEnvFile reads path instead of searching for `.env`.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithoutEnvFile skips the dotenv layer entirely.
func WithoutEnvFile() Option {
	return func(o *loadOptions) { o.noEnvFile = true }
}

/*──────────────────────────────── loader ──────────────────────────────────*/

// Load builds a fresh, validated Settings.  It does not touch the cache
// used by Get.
func Load(opts ...Option) (*Settings, error) {
	var o loadOptions
	for _, fn := range opts {
		fn(&o)
	}

	k := koanf.New(".")

	if !o.noEnvFile {
		path := o.envFile
		if path == "" {
			root := RootDir()
			zap.S().Debugw("config root resolved", "root", root)
			path = LocateEnvFile(root)
		}
		if err := loadEnvFile(k, path); err != nil {
			zap.S().Errorw("config env file load failed", "file", path, "err", err)
			return nil, err
		}
	}

	// Only exact settings keys survive; PATH, HOME, and friends are dropped.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		if knownKeys[s] {
			return s
		}
		return ""
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := coerceTree(k); err != nil {
		zap.S().Errorw("config coercion failed", "err", err)
		return nil, err
	}

	s := Defaults()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:     &s,
			TagName:    "koanf",
			Squash:     true,
			ZeroFields: true, // lists replace defaults instead of merging into them
			MatchName:  func(mapKey, fieldName string) bool { return mapKey == fieldName },
		},
	}); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, fmt.Errorf("config decode: %w: %w", ErrMalformedValue, err)
	}

	if err := validateSettings(&s); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	applyTier(&s)

	zap.S().Infow("config loaded",
		"app", s.Name,
		"version", s.Version,
		"environment", s.Environment,
		"debug", s.Debug,
		"database_url", s.LogSafeDatabaseURL(),
	)
	return &s, nil
}

// loadEnvFile merges path into k when it exists.  A missing file is not an
// error.
func loadEnvFile(k *koanf.Koanf, path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		zap.S().Debugw("config env file absent", "file", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrEnvFile, path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w %s: is a directory", ErrEnvFile, path)
	}
	if err := k.Load(file.Provider(path), dotenvParser{}); err != nil {
		return fmt.Errorf("%w %s: %w", ErrEnvFile, path, err)
	}
	zap.S().Debugw("config env file loaded", "file", path)
	return nil
}

// coerceTree replaces every raw string under a known key with its typed
// value.  The first failure is returned as a *FieldError.
func coerceTree(k *koanf.Koanf) error {
	for _, f := range settingsFields {
		if !k.Exists(f.key) {
			continue
		}
		raw, ok := k.Get(f.key).(string)
		if !ok {
			continue
		}
		val, rule, err := coerce(raw, f.typ)
		if err != nil {
			return &FieldError{Field: f.key, Rule: rule, Detail: err.Error(), Err: ErrMalformedValue}
		}
		if err := k.Set(f.key, val); err != nil {
			return fmt.Errorf("config set %s: %w", f.key, err)
		}
	}
	return nil
}

/*─────────────────────────────── dotenv parser ────────────────────────────*/

// dotenvParser adapts godotenv to koanf.Parser.  Only `${NAME}` references
// are expanded; a bare `$` is kept literally (see literalDollars).
type dotenvParser struct{}

func (dotenvParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	vals, err := godotenv.UnmarshalBytes(literalDollars(b))
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(vals))
	for key, val := range vals {
		out[key] = val
	}
	return out, nil
}

// literalDollars escapes every `$` in unquoted and double-quoted values
// that does not open a `${NAME}` reference, so godotenv leaves values such
// as `Pa$SWORD9` intact.  Single-quoted values are never expanded by
// godotenv and are copied unchanged.  Comment lines and keys pass through.
func literalDollars(src []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(src) + 16)

	var quote byte // quote left open by a multi-line value
	for _, line := range bytes.SplitAfter(src, []byte("\n")) {
		start := 0
		if quote == 0 {
			trimmed := bytes.TrimLeft(line, " \t")
			if len(trimmed) == 0 || trimmed[0] == '#' {
				out.Write(line)
				continue
			}
			i := bytes.IndexAny(line, "=:")
			if i < 0 {
				out.Write(line)
				continue
			}
			j := i + 1
			for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
				j++
			}
			if j < len(line) && (line[j] == '\'' || line[j] == '"') {
				quote = line[j]
				j++
			}
			out.Write(line[:j])
			start = j
		}
		quote = escapeDollars(&out, line[start:], quote)
	}
	return out.Bytes()
}

// escapeDollars copies s into out and returns the quote still open at the
// end of s, or 0.
func escapeDollars(out *bytes.Buffer, s []byte, quote byte) byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		escaped := i > 0 && s[i-1] == '\\'
		switch {
		case quote != 0 && c == quote && !escaped:
			out.Write(s[i:]) // closing quote and trailing comment
			return 0
		case c == '$' && quote != '\'' && !escaped && (i+1 == len(s) || s[i+1] != '{'):
			out.WriteString(`\$`)
		default:
			out.WriteByte(c)
		}
	}
	return quote
}

func (dotenvParser) Marshal(m map[string]interface{}) ([]byte, error) {
	vals := make(map[string]string, len(m))
	for key, val := range m {
		vals[key] = fmt.Sprint(val)
	}
	s, err := godotenv.Marshal(vals)
	return []byte(s), err
}

/*──────────────────────────── process singleton ───────────────────────────*/

var (
	once    sync.Once
	current *Settings
	loadErr error
)

// Get returns the process-wide Settings.  The first call runs Load; every
// later call returns the same pointer (or the same error) without reading
// the file or environment again.  Safe for concurrent first use.
func Get() (*Settings, error) {
	once.Do(func() { current, loadErr = Load() })
	return current, loadErr
}

// MustGet is Get for bootstrap code that cannot continue without settings.
func MustGet() *Settings {
	s, err := Get()
	if err != nil {
		panic(err)
	}
	return s
}
