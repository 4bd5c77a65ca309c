package zero

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/finch-technologies/go-sqs-listener/env"
	"github.com/rs/zerolog"
)

type ZeroLogger struct {
	logger  *zerolog.Logger
	context context.Context
}

func level() zerolog.Level {
	if env.IsDebug() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func New(ctx context.Context, ctxFields any, w io.Writer) *ZeroLogger {
	if w == nil {
		w = os.Stdout
	}

	var cw io.Writer = w
	if env.IsLocal() {
		cw = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}

	loggerCtx := zerolog.New(cw).Level(level()).With().Timestamp()

	if ctxFields != nil {
		for key, value := range getKeyValues(ctxFields) {
			if value != "" {
				loggerCtx = loggerCtx.Str(key, value)
			}
		}
	}

	logger := loggerCtx.Logger()

	return &ZeroLogger{
		logger:  &logger,
		context: logger.WithContext(ctx),
	}
}

func Nop() *ZeroLogger {
	logger := zerolog.Nop()
	return &ZeroLogger{
		logger:  &logger,
		context: context.Background(),
	}
}

func getKeyValues(ctx any) map[string]string {
	kvMap := make(map[string]string)

	if m, ok := ctx.(map[string]any); ok {
		for k, v := range m {
			kvMap[k] = fmt.Sprint(v)
		}
		return kvMap
	}

	t := reflect.TypeOf(ctx)

	if t.Kind() != reflect.Struct {
		return kvMap
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		value := reflect.ValueOf(ctx).Field(i)
		if value.IsValid() {
			kvMap[field.Name] = fmt.Sprint(value)
		}
	}

	return kvMap
}

func (z *ZeroLogger) GetLogger() *zerolog.Logger {
	return z.logger
}

func (z *ZeroLogger) GetContext() context.Context {
	return z.context
}

func (z *ZeroLogger) Debug(v ...any) {
	z.logger.Debug().Msg(fmt.Sprint(v...))
}

func (z *ZeroLogger) Debugf(s string, v ...any) {
	z.logger.Debug().Msg(fmt.Sprintf(s, v...))
}

func (z *ZeroLogger) Info(v ...any) {
	z.logger.Info().Msg(fmt.Sprint(v...))
}

func (z *ZeroLogger) Infof(s string, v ...any) {
	z.logger.Info().Msg(fmt.Sprintf(s, v...))
}

func (z *ZeroLogger) Warning(v ...any) {
	z.logger.Warn().Msg(fmt.Sprint(v...))
}

func (z *ZeroLogger) Warningf(s string, v ...any) {
	z.logger.Warn().Msg(fmt.Sprintf(s, v...))
}

func (z *ZeroLogger) Error(v ...any) {
	z.logger.Error().Msg(fmt.Sprint(v...))
}

func (z *ZeroLogger) Errorf(s string, v ...any) {
	z.logger.Error().Msg(fmt.Sprintf(s, v...))
}

func (z *ZeroLogger) ErrorStack(stack, s string, v ...any) {
	z.logger.Error().Str("stack", stack).Msg(fmt.Sprintf(s, v...))
}

// DebugFields logs a debug level message with structured fields
func (z *ZeroLogger) DebugFields(msg string, fields map[string]any) {
	z.logger.Debug().Fields(fields).Msg(msg)
}

// InfoFields logs an info level message with structured fields
func (z *ZeroLogger) InfoFields(msg string, fields map[string]any) {
	z.logger.Info().Fields(fields).Msg(msg)
}

func (z *ZeroLogger) WarningFields(msg string, fields map[string]any) {
	z.logger.Warn().Fields(fields).Msg(msg)
}

// ErrorFields logs an error level message with structured fields
func (z *ZeroLogger) ErrorFields(msg string, fields map[string]any) {
	z.logger.Error().Fields(fields).Msg(msg)
}
