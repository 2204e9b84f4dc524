// Package logger provides the structured logger used by the geneva tools. The strategy engine
// itself never logs.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/getlantern/geneva/v2/internal/config"
)

type LogFormat string

const (
	TextFormat LogFormat = "text"
	JSONFormat LogFormat = "json"
)

type LogLevel string

const (
	TraceLevel LogLevel = "trace"
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

type Logger interface {
	WithFields(map[string]any) Logger
	Trace(args ...any)
	Tracef(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	GetLevel() LogLevel
	IsLevelEnabled(level LogLevel) bool
}

var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(holder{NewLogger()})
}

type holder struct{ Logger }

func Default() Logger {
	return defaultLogger.Load().(holder).Logger
}

func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(holder{l})
}

type Options struct {
	Name   string
	Output io.Writer
	Format LogFormat
	Level  LogLevel
}

type Option func(opts *Options)

func NameOption(name string) Option {
	return func(opts *Options) {
		opts.Name = name
	}
}

func OutputOption(out io.Writer) Option {
	return func(opts *Options) {
		opts.Output = out
	}
}

func FormatOption(format LogFormat) Option {
	return func(opts *Options) {
		opts.Format = format
	}
}

func LevelOption(level LogLevel) Option {
	return func(opts *Options) {
		opts.Level = level
	}
}

type logrusLogger struct {
	logger *logrus.Entry
}

func NewLogger(opts ...Option) Logger {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	log := logrus.New()
	if options.Output != nil {
		log.SetOutput(options.Output)
	}

	switch options.Format {
	case JSONFormat:
		log.SetFormatter(&logrus.JSONFormatter{
			DisableHTMLEscape: true,
			TimestampFormat:   "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch options.Level {
	case TraceLevel, DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel:
		lvl, _ := logrus.ParseLevel(string(options.Level))
		log.SetLevel(lvl)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	l := &logrusLogger{
		logger: logrus.NewEntry(log),
	}
	if options.Name != "" {
		l.logger = l.logger.WithField("logger", options.Name)
	}

	return l
}

// FromConfig builds a logger from the log section of the configuration. A nil config yields a
// text logger on stderr. Output may be "stdout", "stderr", "none", or a file path; file output is
// rotated with lumberjack when a rotation block is present.
func FromConfig(name string, cfg *config.LogConfig) Logger {
	if cfg == nil {
		cfg = &config.LogConfig{}
	}

	opts := []Option{
		NameOption(name),
		FormatOption(LogFormat(cfg.Format)),
		LevelOption(LogLevel(cfg.Level)),
	}

	var out io.Writer = os.Stderr
	switch cfg.Output {
	case "none", "null":
		return Nop()
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		if cfg.Rotation != nil {
			out = &lumberjack.Logger{
				Filename:   cfg.Output,
				MaxSize:    cfg.Rotation.MaxSize,
				MaxAge:     cfg.Rotation.MaxAge,
				MaxBackups: cfg.Rotation.MaxBackups,
				LocalTime:  cfg.Rotation.LocalTime,
				Compress:   cfg.Rotation.Compress,
			}
		} else {
			_ = os.MkdirAll(filepath.Dir(cfg.Output), 0o755)
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				Default().Warn(err)
			} else {
				out = f
			}
		}
	}
	opts = append(opts, OutputOption(out))

	return NewLogger(opts...)
}

// WithFields adds new fields to log.
func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{
		logger: l.logger.WithFields(logrus.Fields(fields)),
	}
}

// Trace logs a message at level Trace.
func (l *logrusLogger) Trace(args ...any) {
	l.log(logrus.TraceLevel, args...)
}

// Tracef logs a message at level Trace.
func (l *logrusLogger) Tracef(format string, args ...any) {
	l.logf(logrus.TraceLevel, format, args...)
}

// Debug logs a message at level Debug.
func (l *logrusLogger) Debug(args ...any) {
	l.log(logrus.DebugLevel, args...)
}

// Debugf logs a message at level Debug.
func (l *logrusLogger) Debugf(format string, args ...any) {
	l.logf(logrus.DebugLevel, format, args...)
}

// Info logs a message at level Info.
func (l *logrusLogger) Info(args ...any) {
	l.log(logrus.InfoLevel, args...)
}

// Infof logs a message at level Info.
func (l *logrusLogger) Infof(format string, args ...any) {
	l.logf(logrus.InfoLevel, format, args...)
}

// Warn logs a message at level Warn.
func (l *logrusLogger) Warn(args ...any) {
	l.log(logrus.WarnLevel, args...)
}

// Warnf logs a message at level Warn.
func (l *logrusLogger) Warnf(format string, args ...any) {
	l.logf(logrus.WarnLevel, format, args...)
}

// Error logs a message at level Error.
func (l *logrusLogger) Error(args ...any) {
	l.log(logrus.ErrorLevel, args...)
}

// Errorf logs a message at level Error.
func (l *logrusLogger) Errorf(format string, args ...any) {
	l.logf(logrus.ErrorLevel, format, args...)
}

// Fatal logs a message at level Fatal then the process will exit with status set to 1.
func (l *logrusLogger) Fatal(args ...any) {
	l.log(logrus.FatalLevel, args...)
	l.logger.Logger.Exit(1)
}

// Fatalf logs a message at level Fatal then the process will exit with status set to 1.
func (l *logrusLogger) Fatalf(format string, args ...any) {
	l.logf(logrus.FatalLevel, format, args...)
	l.logger.Logger.Exit(1)
}

func (l *logrusLogger) GetLevel() LogLevel {
	return LogLevel(l.logger.Logger.GetLevel().String())
}

func (l *logrusLogger) IsLevelEnabled(level LogLevel) bool {
	lvl, err := logrus.ParseLevel(string(level))
	if err != nil {
		return false
	}
	return l.logger.Logger.IsLevelEnabled(lvl)
}

func (l *logrusLogger) log(level logrus.Level, args ...any) {
	lg := l.logger
	if l.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		lg = lg.WithField("caller", caller(3))
	}
	lg.Log(level, args...)
}

func (l *logrusLogger) logf(level logrus.Level, format string, args ...any) {
	lg := l.logger
	if l.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		lg = lg.WithField("caller", caller(3))
	}
	lg.Logf(level, format, args...)
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		file = "<???>"
	} else {
		file = filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file))
	}
	return fmt.Sprintf("%s:%d", file, line)
}
