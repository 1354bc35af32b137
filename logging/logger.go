package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crytic/cachestate/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger describes a Logger that is disabled by default and is instantiated when the CLI starts. Each
// component should create its own sub-logger from it.
var GlobalLogger = NewLogger(zerolog.Disabled, false)

// Logger describes a custom logging object that can log events to any arbitrary channel and can handle specialized
// output to console as well
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// context describes the key-value pairs sub-loggers attach to every event
	context [][2]string

	// multiLogger describes a logger that will be used to output logs to any arbitrary channel(s) in either structured
	// or unstructured format.
	multiLogger zerolog.Logger

	// consoleLogger describes a logger that will be used to output unstructured output to console.
	consoleLogger zerolog.Logger

	// consoleEnabled describes whether consoleLogger writes anywhere
	consoleEnabled bool

	// writers describes a list of io.Writer objects where log output will go.
	writers []io.Writer
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger can output to console, if enabled,
// and output logs to any number of arbitrary io.Writer channels
func NewLogger(level zerolog.Level, consoleEnabled bool, writers ...io.Writer) *Logger {
	l := &Logger{
		level:          level,
		writers:        writers,
		consoleEnabled: consoleEnabled,
	}

	// Disabled loggers are created rather than left zero-valued so events can always be built
	l.consoleLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)
	if consoleEnabled {
		l.consoleLogger = zerolog.New(setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stdout}, level)).Level(level)
	}
	l.rebuildMultiLogger()
	return l
}

// rebuildMultiLogger recreates the multi logger from the current writers, level and context.
func (l *Logger) rebuildMultiLogger() {
	if len(l.writers) == 0 {
		l.multiLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)
		return
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(l.writers...)).Level(l.level).With().Timestamp()
	for _, kv := range l.context {
		ctx = ctx.Str(kv[0], kv[1])
	}
	l.multiLogger = ctx.Logger()
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair. The expected use of this
// function is for each package to have their own unique logger so that parsing of logs is "grep-able" based on some key
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	context := make([][2]string, 0, len(l.context)+1)
	context = append(context, l.context...)
	context = append(context, [2]string{key, value})

	return &Logger{
		level:          l.level,
		context:        context,
		multiLogger:    l.multiLogger.With().Str(key, value).Logger(),
		consoleLogger:  l.consoleLogger.With().Str(key, value).Logger(),
		consoleEnabled: l.consoleEnabled,
		writers:        append([]io.Writer(nil), l.writers...),
	}
}

// AddWriter will add a writer to the list of channels where log output will be sent. Adding a writer that is already
// present is a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat) {
	for _, w := range l.writers {
		if writer == w {
			return
		}
	}

	// Unstructured output is written without ANSI coloring
	if format == UNSTRUCTURED {
		writer = &zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}

	l.writers = append(l.writers, writer)
	l.rebuildMultiLogger()
}

// RemoveWriter will remove a writer from the list of writers that the logger manages. If the writer does not exist, this
// function is a no-op
func (l *Logger) RemoveWriter(writer io.Writer) {
	for i, w := range l.writers {
		if writer == w {
			l.writers = append(l.writers[:i], l.writers[i+1:]...)
			l.rebuildMultiLogger()
			return
		}
	}
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.rebuildMultiLogger()
	if l.consoleEnabled {
		l.consoleLogger = l.consoleLogger.Level(level)
	}
}

// Trace is a wrapper function that will log a trace event
func (l *Logger) Trace(args ...any) {
	l.log(l.consoleLogger.Trace(), l.multiLogger.Trace(), l.level <= zerolog.DebugLevel, args)
}

// Debug is a wrapper function that will log a debug event
func (l *Logger) Debug(args ...any) {
	l.log(l.consoleLogger.Debug(), l.multiLogger.Debug(), l.level <= zerolog.DebugLevel, args)
}

// Info is a wrapper function that will log an info event
func (l *Logger) Info(args ...any) {
	l.log(l.consoleLogger.Info(), l.multiLogger.Info(), l.level <= zerolog.DebugLevel, args)
}

// Warn is a wrapper function that will log a warning event
func (l *Logger) Warn(args ...any) {
	l.log(l.consoleLogger.Warn(), l.multiLogger.Warn(), l.level <= zerolog.DebugLevel, args)
}

// Error is a wrapper function that will log an error event.
func (l *Logger) Error(args ...any) {
	l.log(l.consoleLogger.Error(), l.multiLogger.Error(), l.level <= zerolog.DebugLevel, args)
}

// Panic is a wrapper function that will log a panic event and then panic with the message. The event always carries
// a stack trace.
func (l *Logger) Panic(args ...any) {
	// WithLevel logs at panic level without zerolog panicking on its own, even when the logger is disabled
	l.log(l.consoleLogger.WithLevel(zerolog.PanicLevel), l.multiLogger.WithLevel(zerolog.PanicLevel), true, args)
	_, msg, err, _ := buildMsgs(args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	panic(msg)
}

// log builds the messages from args, chains any error and structured info onto both events and sends them. Nothing is
// built if both events are disabled.
func (l *Logger) log(consoleLog *zerolog.Event, multiLog *zerolog.Event, withStack bool, args []any) {
	if !consoleLog.Enabled() && !multiLog.Enabled() {
		return
	}

	consoleMsg, multiMsg, err, info := buildMsgs(args...)

	// Stack must be requested before the error is attached
	if withStack && err != nil {
		consoleLog.Stack()
		multiLog.Stack()
	}
	// Err accepts a nil error without adding a field
	consoleLog.Err(err)
	multiLog.Err(err)

	if info != nil {
		consoleLog.Any("info", info)
		multiLog.Any("info", info)
	}

	consoleLog.Msg(consoleMsg)
	multiLog.Msg(multiMsg)
}

// buildMsgs takes in a variadic list of arguments of any type and returns a colorized string for console output, a
// non-colorized one for file/structured output and, optionally, an error and a StructuredLogInfo object.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	consoleOutput := make([]string, 0, len(args))
	fileOutput := make([]string, 0, len(args))
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			// Color functions switch the color applied to the following arguments
			colorCtx = t
		case StructuredLogInfo:
			// Only one structured log info can be provided for each log message
			info = t
		case error:
			// Only one error can be provided for each log message
			err = t
		default:
			consoleOutput = append(consoleOutput, colorCtx(t))
			fileOutput = append(fileOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(consoleOutput, ""), strings.Join(fileOutput, ""), err, info
}

// setupDefaultFormatting will update the console logger's formatting: no timestamps and colored level markers.
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		levelStr, _ := i.(string)
		parsed, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return levelStr
		}

		switch parsed {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel:
			return colors.RedBold(zerolog.LevelErrorValue)
		case zerolog.FatalLevel:
			return colors.RedBold(zerolog.LevelFatalValue)
		case zerolog.PanicLevel:
			return colors.RedBold(zerolog.LevelPanicValue)
		default:
			return levelStr
		}
	}

	// Above debug level the `module` field is noise on the console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
