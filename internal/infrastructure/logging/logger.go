package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/atc-bridge/internal/infrastructure/config"
)

const serviceName = "atcbridge"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is a slog.Logger that may own a rotating log file.
// Loggers derived with With share the file; close only the root.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// New builds a logger from cfg. Unknown levels fall back to info and
// unknown formats to JSON.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := console(cfg.Output)
	var file io.WriteCloser
	if cfg.File.Path != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}
		out = io.MultiWriter(out, file)
	}
	return build(cfg, version, out, file)
}

// Default is the logger used until configuration has been loaded.
func Default() *Logger {
	return build(config.LoggingConfig{}, "dev", os.Stdout, nil)
}

func build(cfg config.LoggingConfig, version string, w io.Writer, file io.Closer) *Logger {
	h := handler(cfg.Format, w, parseLevel(cfg.Level)).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h), file: file}
}

func console(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func handler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	if l, ok := levels[strings.ToLower(s)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
//
//	log.With("component", "discovery").Info("registered", "entities", n)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file}
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
