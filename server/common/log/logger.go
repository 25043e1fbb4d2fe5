package log

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLogFilePath = "LOG_FILE_PATH"
	envLogFormat   = "LOG_FORMAT"
	envLogLevel    = "LOG_LEVEL"
	logFormatText  = "text"
	logFormatJSON  = "json"
)

var (
	mu     sync.RWMutex
	global = newLoggerFromEnv()
)

func newLoggerFromEnv() *zap.SugaredLogger {
	format := strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat)))
	if format != logFormatJSON {
		format = logFormatText
	}

	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level = parsed
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	if format == logFormatText {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}
	if path := strings.TrimSpace(os.Getenv(envLogFilePath)); path != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, path)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger build error: %v\n", err)
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// SetLogger replaces the process logger. Tests use it with zaptest or zap.NewNop.
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = logger.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func Debugf(format string, args ...any) {
	current().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	current().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	current().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	current().Errorf(format, args...)
}

// Exceptionf logs at error level with a stack trace attached.
func Exceptionf(format string, args ...any) {
	current().Desugar().Error(fmt.Sprintf(format, args...), zap.Stack("stack"))
}

func Sync() {
	_ = current().Sync()
}
