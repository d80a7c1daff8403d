package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process-wide logger.
type Config struct {
	Level      string `yaml:"level"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`    // MB per file before rotation
	MaxAge     int    `yaml:"max_age"`     // days to retain rotated files
	MaxBackups int    `yaml:"max_backups"` // rotated files to keep
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig writes JSON lines to stdout plus a rotating file under logs/.
var DefaultConfig = Config{
	Level:      "info",
	Filename:   "logs/gateway.log",
	MaxSize:    100,
	MaxAge:     7,
	MaxBackups: 7,
	Compress:   false,
}

var (
	global *logrus.Logger
	once   sync.Once
	mu     sync.RWMutex
)

// Init configures the global logger. Safe to call once at startup; later calls
// replace the configuration.
func Init(cfg Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	writers := []io.Writer{os.Stdout}
	if cfg.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.Filename,
				MaxSize:    cfg.MaxSize,
				MaxAge:     cfg.MaxAge,
				MaxBackups: cfg.MaxBackups,
				Compress:   cfg.Compress,
			})
		}
	}
	l.SetOutput(io.MultiWriter(writers...))

	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

// L returns the global logger, initializing it with defaults on first use.
func L() *logrus.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	once.Do(func() {
		if err := Init(DefaultConfig); err != nil {
			mu.Lock()
			global = logrus.StandardLogger()
			mu.Unlock()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// WithFields is a shorthand for structured log entries.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return L().WithFields(logrus.Fields(fields))
}

func Debug(args ...interface{}) { L().Debug(args...) }
func Info(args ...interface{})  { L().Info(args...) }
func Warn(args ...interface{})  { L().Warn(args...) }
func Error(args ...interface{}) { L().Error(args...) }
