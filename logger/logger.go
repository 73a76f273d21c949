package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

var (
	globalLogger *slog.Logger
	closers      []io.Closer
	once         sync.Once
)

type Config struct {
	Level   string   `json:"level" yaml:"level"`     // debug/info/warn/error
	Format  string   `json:"format" yaml:"format"`   // text/json/console
	Outputs []string `json:"outputs" yaml:"outputs"` // stdout/stderr/file path
}

// New builds a logger for cfg. Files it opened are returned so the caller can
// close them on shutdown.
func New(cfg Config) (*slog.Logger, []io.Closer, error) {
	// 设置日志级别
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	// 创建多个输出writer
	var writers []io.Writer
	var files []io.Closer
	fail := func(err error) (*slog.Logger, []io.Closer, error) {
		for _, f := range files {
			f.Close()
		}
		return nil, nil, err
	}
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			// 确保目录存在
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return fail(fmt.Errorf("failed to create log directory: %w", err))
			}

			// 打开或创建日志文件
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fail(fmt.Errorf("failed to open log file: %w", err))
			}
			writers = append(writers, file)
			files = append(files, file)
		}
	}

	// 如果没有指定输出，默认使用stdout
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	w := io.MultiWriter(writers...)

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "console":
		// 终端彩色输出
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.000",
		})
	default:
		return fail(fmt.Errorf("unknown log format %q", cfg.Format))
	}
	return slog.New(handler), files, nil
}

func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var l *slog.Logger
		l, closers, err = New(cfg)
		if err != nil {
			return
		}
		globalLogger = l
		slog.SetDefault(l)
	})
	return err
}

// Close closes the log files opened by Init.
func Close() error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	closers = nil
	return errors.Join(errs...)
}

func Debug(msg string, args ...interface{}) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger().Error(msg, args...)
}

// Logger returns the logger set up by Init, or slog's default before that.
func Logger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}
