package log

import (
	"context"
)

type LoggerInterface interface {
	Debug(v ...any)
	Debugf(s string, v ...any)
	Info(v ...any)
	Infof(s string, v ...any)
	Warning(v ...any)
	Warningf(s string, v ...any)
	Error(v ...any)
	Errorf(s string, v ...any)
	ErrorStack(stack, s string, v ...any)
	DebugFields(msg string, fields map[string]any)
	InfoFields(msg string, fields map[string]any)
	WarningFields(msg string, fields map[string]any)
	ErrorFields(msg string, fields map[string]any)
	GetContext() context.Context
}
