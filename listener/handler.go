package listener

import (
	"context"
	"errors"
	"fmt"

	"github.com/finch-technologies/go-sqs-listener/queue/types"
)

// Handler processes one decoded message. Returning an error leaves the
// message undeleted (unless ForceDelete is set) and reports it to the error
// queue.
type Handler interface {
	HandleMessage(ctx context.Context, body any, messageAttributes map[string]types.AttributeValue, attributes map[string]string) error
}

type HandlerFunc func(ctx context.Context, body any, messageAttributes map[string]types.AttributeValue, attributes map[string]string) error

func (f HandlerFunc) HandleMessage(ctx context.Context, body any, messageAttributes map[string]types.AttributeValue, attributes map[string]string) error {
	return f(ctx, body, messageAttributes, attributes)
}

// ErrorTyper lets handler errors name the exception type written to the
// error queue.
type ErrorTyper interface {
	ErrorType() string
}

// HandlerError is a handler failure with an explicit type name.
type HandlerError struct {
	Type    string
	Message string
	Err     error
}

func NewHandlerError(errorType, message string) error {
	return &HandlerError{Type: errorType, Message: message}
}

// WrapHandlerError tags err with errorType, keeping its message.
func WrapHandlerError(errorType string, err error) error {
	return &HandlerError{Type: errorType, Message: err.Error(), Err: err}
}

func (e *HandlerError) Error() string {
	return e.Message
}

func (e *HandlerError) ErrorType() string {
	return e.Type
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ErrorReport is the payload published to the error queue.
type ErrorReport struct {
	ExceptionType string `json:"exception_type"`
	ErrorMessage  string `json:"error_message"`
}

func NewErrorReport(err error) ErrorReport {
	var typer ErrorTyper
	exceptionType := fmt.Sprintf("%T", err)
	if errors.As(err, &typer) {
		exceptionType = typer.ErrorType()
	}

	return ErrorReport{
		ExceptionType: exceptionType,
		ErrorMessage:  err.Error(),
	}
}
