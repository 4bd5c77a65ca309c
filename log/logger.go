package log

import (
	"context"
	"io"
	"os"

	"github.com/finch-technologies/go-sqs-listener/log/zero"
)

// New returns a logger writing to stdout. ctxFields may be a struct or a
// map[string]any; its values are attached to every entry.
func New(ctx context.Context, ctxFields any) LoggerInterface {
	return NewWithWriter(ctx, ctxFields, os.Stdout)
}

func NewWithWriter(ctx context.Context, ctxFields any, w io.Writer) LoggerInterface {
	return zero.New(ctx, ctxFields, w)
}

// Nop returns a logger that discards everything.
func Nop() LoggerInterface {
	return zero.Nop()
}
