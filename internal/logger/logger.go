// internal/logger/logger.go
//
// Structured logger (Zap + Lumberjack).
//
// Context
// -------
// Every process writes lifecycle and error events to stderr, encoded as
// JSON or colorless console text per LOG_FORMAT.  Production additionally
// keeps a rotated JSON file under `<root>/logs/api.log`; rotation,
// compression, and retention are handled by Lumberjack, so no external
// log-rotate job is required.
//
// Usage
// -----
//
//	log, err := logger.New(logger.FromSettings(cfg, root))
//	if err != nil { … }
//	log.Infow("database online", "pool", cfg.PoolSize)
//
// Notes
// -----
// • Level names follow the settings file: DEBUG, INFO, WARNING, ERROR,
//   CRITICAL.  Unknown names fall back to INFO.
// • ISO-8601 timestamps and lowercase levels in every encoder.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mindmap-platform/mindmap-api/internal/config"
)

// Options selects level, encoding, and sinks.
type Options struct {
	Level  string    // DEBUG, INFO, WARNING, ERROR, CRITICAL
	Format string    // json or console
	Output io.Writer // defaults to os.Stderr
	// FileDir, when set, adds a rotated JSON file sink in that directory.
	FileDir string
}

// FromSettings maps loaded settings onto Options.  The file sink is only
// enabled in production.
func FromSettings(s *config.Settings, rootDir string) Options {
	o := Options{Level: s.Logging.Level, Format: s.Logging.Format}
	if s.IsProduction() {
		o.FileDir = filepath.Join(rootDir, "logs")
	}
	return o
}

// ParseLevel maps a settings level name to a zap level.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return zap.DebugLevel
	case "WARNING", "WARN":
		return zap.WarnLevel
	case "ERROR":
		return zap.ErrorLevel
	case "CRITICAL", "FATAL":
		return zap.DPanicLevel
	default:
		return zap.InfoLevel
	}
}

// New returns a *zap.SugaredLogger and installs it as the process-wide
// default via zap.ReplaceGlobals, so zap.S() in early-boot code (the config
// loader) reaches the same sinks.
func New(o Options) (*zap.SugaredLogger, error) {
	level := zap.NewAtomicLevelAt(ParseLevel(o.Level))

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	var enc zapcore.Encoder
	switch strings.ToLower(o.Format) {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logger: LOG_FORMAT %q is not supported, use \"json\" or \"console\"%s",
			o.Format, templateHint(o.Format))
	}

	out := o.Output
	if out == nil {
		out = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(out), level)}

	errSink := zapcore.AddSync(out)
	if o.FileDir != "" {
		if err := os.MkdirAll(o.FileDir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: create log dir: %w", err)
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(o.FileDir, "api.log"),
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level))
		errSink = fileSink
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.ErrorOutput(errSink),
	).Sugar()

	zap.ReplaceGlobals(z.Desugar())

	z.Debugw("logger online", "level", level.String(), "format", o.Format, "file", o.FileDir != "")
	return z, nil
}

// templateHint explains values carried over from an older logging config,
// where LOG_FORMAT held a "%(asctime)s ..." template.
func templateHint(format string) string {
	if strings.Contains(format, "%") {
		return " (logging template strings are not accepted; the layout is fixed per format)"
	}
	return ""
}
