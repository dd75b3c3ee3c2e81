package redaction

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Core wraps a zapcore.Core so that entry messages and textual fields are redacted before encoding.
type Core struct {
	zapcore.Core
	redactor Redactor
}

// NewCore wraps core with the provided redactor. Wrapping an existing redaction Core replaces its redactor.
func NewCore(core zapcore.Core, redactor Redactor) zapcore.Core {
	if core == nil {
		return zapcore.NewNopCore()
	}
	if existing, isRedacting := core.(*Core); isRedacting {
		return &Core{Core: existing.Core, redactor: redactor}
	}
	return &Core{Core: core, redactor: redactor}
}

// WrapLogger returns a logger whose core redacts with the provided redactor.
func WrapLogger(logger *zap.Logger, redactor Redactor) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewCore(core, redactor)
	}))
}

// With adds redacted structured context to the core.
func (core *Core) With(fields []zapcore.Field) zapcore.Core {
	return &Core{Core: core.Core.With(core.redactFields(fields)), redactor: core.redactor}
}

// Check registers the redacting core for enabled entries.
func (core *Core) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if core.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, core)
	}
	return checkedEntry
}

// Write redacts the entry and fields and forwards them to the wrapped core.
func (core *Core) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = core.redactor.Redact(entry.Message)
	return core.Core.Write(entry, core.redactFields(fields))
}

func (core *Core) redactFields(fields []zapcore.Field) []zapcore.Field {
	if len(fields) == 0 {
		return fields
	}
	redacted := make([]zapcore.Field, len(fields))
	for index, field := range fields {
		redacted[index] = core.redactField(field)
	}
	return redacted
}

func (core *Core) redactField(field zapcore.Field) zapcore.Field {
	switch field.Type {
	case zapcore.StringType:
		field.String = core.redactor.Redact(field.String)
		return field
	case zapcore.ByteStringType:
		if raw, isBytes := field.Interface.([]byte); isBytes {
			return zap.ByteString(field.Key, []byte(core.redactor.Redact(string(raw))))
		}
	case zapcore.ErrorType:
		if fieldError, isError := field.Interface.(error); isError && fieldError != nil {
			return zap.String(field.Key, core.redactor.Redact(fieldError.Error()))
		}
	case zapcore.StringerType:
		if stringer, isStringer := field.Interface.(fmt.Stringer); isStringer && stringer != nil {
			return zap.String(field.Key, core.redactor.Redact(stringer.String()))
		}
	case zapcore.ArrayMarshalerType, zapcore.ObjectMarshalerType, zapcore.ReflectType:
		return core.redactStructuredField(field)
	}
	return field
}

func (core *Core) redactStructuredField(field zapcore.Field) zapcore.Field {
	encoder := zapcore.NewMapObjectEncoder()
	field.AddTo(encoder)
	value, exists := encoder.Fields[field.Key]
	if !exists {
		return field
	}
	return zap.Any(field.Key, core.redactValue(value))
}

func (core *Core) redactValue(value any) any {
	switch typed := value.(type) {
	case string:
		return core.redactor.Redact(typed)
	case []any:
		redacted := make([]any, len(typed))
		for index, element := range typed {
			redacted[index] = core.redactValue(element)
		}
		return redacted
	case map[string]any:
		redacted := make(map[string]any, len(typed))
		for key, element := range typed {
			redacted[key] = core.redactValue(element)
		}
		return redacted
	default:
		rendered := fmt.Sprint(value)
		if sanitized := core.redactor.Redact(rendered); sanitized != rendered {
			return sanitized
		}
		return value
	}
}
