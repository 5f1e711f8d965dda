package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string      `yaml:"level"`
	Format      string      `yaml:"format"`
	OutputPaths []string    `yaml:"output_paths"`
	Audit       AuditConfig `yaml:"audit"`
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

var (
	mu            sync.Mutex
	defaultLogger *zap.Logger
	auditLogger   *zap.Logger
	auditWriter   *lumberjack.Logger
)

// Init configures the global logger instances. Calling Init again replaces
// the previous loggers.
func Init(cfg Config) error {
	base, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	audit := base
	var writer *lumberjack.Logger
	if cfg.Audit.Enabled {
		audit, writer, err = buildAuditLogger(cfg.Audit)
		if err != nil {
			_ = base.Sync()
			return err
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if auditWriter != nil {
		_ = auditWriter.Close()
	}
	defaultLogger = base
	auditLogger = audit
	auditWriter = writer
	zap.ReplaceGlobals(base)
	return nil
}

func buildLogger(cfg Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "text") || strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	outputs := make([]string, 0, len(cfg.OutputPaths))
	for _, out := range cfg.OutputPaths {
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		if out != "stdout" && out != "stderr" {
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		outputs = append(outputs, out)
	}
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	zcfg.OutputPaths = outputs
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func buildAuditLogger(cfg AuditConfig) (*zap.Logger, *lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, nil, errors.New("audit log path cannot be empty when enabled")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 7
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create audit log directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), zapcore.InfoLevel)
	return zap.New(core), writer, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the structured logger instance.
func L() *zap.Logger {
	mu.Lock()
	logger := defaultLogger
	mu.Unlock()
	if logger == nil {
		if err := Init(Config{}); err != nil {
			return zap.NewNop()
		}
		mu.Lock()
		logger = defaultLogger
		mu.Unlock()
	}
	return logger
}

// Audit returns the audit logger.
func Audit() *zap.Logger {
	mu.Lock()
	audit := auditLogger
	mu.Unlock()
	if audit == nil {
		return L()
	}
	return audit
}

// Sync flushes buffered log entries to their outputs and closes the audit file.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	if defaultLogger != nil {
		err = errors.Join(err, ignoreStdSyncErr(defaultLogger.Sync()))
	}
	if auditWriter != nil {
		err = errors.Join(err, auditLogger.Sync(), auditWriter.Close())
		auditWriter = nil
		auditLogger = defaultLogger
	}
	return err
}

// Named returns a child logger with the provided component name.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// syncing stdout/stderr returns EINVAL on most platforms.
func ignoreStdSyncErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl") {
		return nil
	}
	return err
}
