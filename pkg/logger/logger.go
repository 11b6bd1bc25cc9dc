package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogMode selects the output format of the global logger.
type LogMode string

const (
	// LogModeDefault writes human-readable console lines.
	LogModeDefault LogMode = "default"
	// LogModeJSON writes one JSON object per line.
	LogModeJSON LogMode = "json"
)

var stderr = struct{ io.Writer }{os.Stderr}

func init() { //nolint:gochecknoinits // init with zerolog is idiomatic
	mode := LogModeDefault
	if env, set := os.LookupEnv("LOG_TYPE"); set {
		mode = LogMode(strings.ToLower(env))
	}
	ConfigureLogging(mode)
}

// ConfigureLogging sets up the global zerolog logger. The level comes from the
// LOG_LEVEL environment variable and defaults to info.
func ConfigureLogging(mode LogMode, consoleOptions ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(levelFromEnv())

	var writer io.Writer
	switch mode {
	case LogModeJSON:
		writer = stderr
	default:
		writer = newConsoleWriter(consoleOptions...)
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// ConfigureTestLogging associates log output with the test that produced it.
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	ConfigureLogging(LogModeDefault, zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
	})
}

func levelFromEnv() zerolog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func newConsoleWriter(options ...func(w *zerolog.ConsoleWriter)) io.Writer {
	isTerminal := isatty.IsTerminal(os.Stdout.Fd())

	defaults := func(w *zerolog.ConsoleWriter) {
		w.Out = stderr
		w.NoColor = !isTerminal
		w.TimeFormat = "15:04:05.999 |"
		w.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf("[%s:", i)
		}
		w.FormatFieldValue = func(i interface{}) string {
			if i == nil {
				i = ""
			}
			return fmt.Sprintf("%s]", i)
		}
	}

	options = append([]func(w *zerolog.ConsoleWriter){defaults}, options...)
	return zerolog.NewConsoleWriter(options...)
}
