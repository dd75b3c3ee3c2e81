package utils

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tyemirov/gitdeploy/internal/redaction"
)

const (
	unsupportedLogLevelTemplateConstant  = "unsupported log level %q"
	unsupportedLogFormatTemplateConstant = "unsupported log format %q"
	consoleTimeLayoutConstant            = "15:04:05"
	timestampKeyConstant                 = "timestamp"
	levelKeyConstant                     = "level"
	messageKeyConstant                   = "message"
	callerKeyConstant                    = "caller"
	loggerNameKeyConstant                = "logger"
	stacktraceKeyConstant                = "stacktrace"
)

// LogLevel enumerates the supported diagnostic levels.
type LogLevel string

// LogFormat enumerates the supported log encodings.
type LogFormat string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	LogFormatStructured LogFormat = "structured"
	LogFormatConsole    LogFormat = "console"
)

// LoggerOutputs bundles the loggers produced for one invocation.
// ConsoleLogger only emits when the console format is selected.
type LoggerOutputs struct {
	DiagnosticLogger *zap.Logger
	ConsoleLogger    *zap.Logger
}

// LoggerFactory builds zap loggers whose cores redact credentials embedded in URLs.
// Callers extend the redaction with redaction.WrapLogger once secrets are known.
type LoggerFactory struct {
	redactor redaction.Redactor
}

// NewLoggerFactory constructs a LoggerFactory.
func NewLoggerFactory() LoggerFactory {
	return LoggerFactory{redactor: redaction.NewRedactor()}
}

// CreateLoggerOutputs builds the diagnostic and console loggers for the requested level and format.
func (factory LoggerFactory) CreateLoggerOutputs(logLevel LogLevel, logFormat LogFormat) (LoggerOutputs, error) {
	level, levelError := parseLogLevel(logLevel)
	if levelError != nil {
		return LoggerOutputs{}, levelError
	}

	normalizedFormat := LogFormat(strings.ToLower(strings.TrimSpace(string(logFormat))))
	sink := zapcore.Lock(zapcore.AddSync(NewFlushingWriter(os.Stderr)))

	switch normalizedFormat {
	case LogFormatStructured:
		diagnosticCore := zapcore.NewCore(zapcore.NewJSONEncoder(structuredEncoderConfig()), sink, level)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(redaction.NewCore(diagnosticCore, factory.redactor)),
			ConsoleLogger:    zap.NewNop(),
		}, nil
	case LogFormatConsole:
		diagnosticCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig(true)), sink, level)
		consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig(false)), sink, zapcore.InfoLevel)
		return LoggerOutputs{
			DiagnosticLogger: zap.New(redaction.NewCore(diagnosticCore, factory.redactor)),
			ConsoleLogger:    zap.New(redaction.NewCore(consoleCore, factory.redactor)),
		}, nil
	default:
		return LoggerOutputs{}, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}
}

func parseLogLevel(logLevel LogLevel) (zapcore.Level, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(string(logLevel)))) {
	case LogLevelDebug:
		return zapcore.DebugLevel, nil
	case LogLevelInfo:
		return zapcore.InfoLevel, nil
	case LogLevelWarn:
		return zapcore.WarnLevel, nil
	case LogLevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}
}

func structuredEncoderConfig() zapcore.EncoderConfig {
	configuration := zap.NewProductionEncoderConfig()
	configuration.TimeKey = timestampKeyConstant
	configuration.LevelKey = levelKeyConstant
	configuration.MessageKey = messageKeyConstant
	configuration.CallerKey = callerKeyConstant
	configuration.NameKey = loggerNameKeyConstant
	configuration.StacktraceKey = stacktraceKeyConstant
	configuration.EncodeTime = zapcore.ISO8601TimeEncoder
	return configuration
}

// consoleEncoderConfig renders human-readable lines; the console logger drops level and time.
func consoleEncoderConfig(diagnostic bool) zapcore.EncoderConfig {
	configuration := zap.NewDevelopmentEncoderConfig()
	configuration.CallerKey = zapcore.OmitKey
	configuration.StacktraceKey = zapcore.OmitKey
	configuration.EncodeTime = zapcore.TimeEncoderOfLayout(consoleTimeLayoutConstant)
	if !diagnostic {
		configuration.TimeKey = zapcore.OmitKey
		configuration.LevelKey = zapcore.OmitKey
		configuration.NameKey = zapcore.OmitKey
	}
	return configuration
}
