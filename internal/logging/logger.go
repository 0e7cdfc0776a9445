package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"bookloom/internal/config"
)

// DaemonLogName is the JSON log file written inside the configured log directory.
const DaemonLogName = "bookloom.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // console or json
	// PipelineLevels maps a pipeline name to its own minimum level. A logger
	// tagged with that pipeline uses it in place of Level.
	PipelineLevels map[string]string
	// Color enables ANSI level colors in console output.
	Color bool
}

// New constructs a logger writing a single format to w.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	filter := newLevelFilter(opts.Level, opts.PipelineLevels)
	handler, err := newFormatHandler(w, opts.Format, filter.floor(), opts.Color)
	if err != nil {
		return nil, err
	}
	return slog.New(filter.wrap(handler)), nil
}

// NewFromConfig creates the daemon logger. Lines go to stdout in the
// configured format and, when a log directory is set, as JSON to
// DaemonLogName inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	color := isatty.IsTerminal(os.Stdout.Fd())
	if cfg == nil {
		return New(os.Stdout, Options{Level: "info", Format: "console", Color: color})
	}

	filter := newLevelFilter(cfg.Logging.Level, cfg.Logging.PipelineOverrides)
	stdout, err := newFormatHandler(os.Stdout, cfg.Logging.Format, filter.floor(), color)
	if err != nil {
		return nil, err
	}
	handlers := []slog.Handler{stdout}

	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		path := filepath.Join(dir, DaemonLogName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		handlers = append(handlers, newJSONHandler(file, filter.floor()))
	}

	return slog.New(filter.wrap(newFanoutHandler(handlers...))), nil
}

// ForPipeline tags logger with a pipeline. Loggers built by this package pick
// the pipeline's configured level up from the tag; any other logger is
// wrapped with the override from cfg, which can only make it quieter.
func ForPipeline(logger *slog.Logger, cfg *config.Config, pipeline string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	logger = logger.With(String(FieldPipeline, pipeline))
	if _, ok := logger.Handler().(*levelFilter); ok || cfg == nil {
		return logger
	}
	raw, ok := cfg.Logging.PipelineOverrides[strings.ToLower(pipeline)]
	if !ok {
		return logger
	}
	return slog.New(&levelFilter{next: logger.Handler(), global: parseLevel(raw)})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newFormatHandler(w io.Writer, format string, level slog.Level, color bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		return newConsoleHandler(w, level, color), nil
	case "json":
		return newJSONHandler(w, level), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// newJSONHandler writes the record shape internal/logs reads back: ts, level,
// msg, then attributes. Source locations are added at debug level.
func newJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}
