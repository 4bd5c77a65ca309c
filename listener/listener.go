package listener

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/finch-technologies/go-sqs-listener/codec"
	"github.com/finch-technologies/go-sqs-listener/log"
	"github.com/finch-technologies/go-sqs-listener/metrics"
	"github.com/finch-technologies/go-sqs-listener/publisher"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/finch-technologies/go-sqs-listener/listener"

type State int32

const (
	Idle State = iota
	Receiving
	Processing
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Processing:
		return "processing"
	case Sleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Option func(*Listener)

func WithLogger(logger log.LoggerInterface) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithCodec replaces the JSON codec used to decode message bodies.
func WithCodec(c codec.Codec) Option {
	return func(l *Listener) {
		l.codec = c
	}
}

// WithMetrics registers the listener metrics on collector and records them.
func WithMetrics(collector metrics.Collector) Option {
	return func(l *Listener) {
		l.metrics = collector
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Listener) {
		l.tracer = tp.Tracer(tracerName)
	}
}

// Listener polls one queue and hands every decoded message to a Handler.
// Messages of a batch are processed sequentially in receive order.
type Listener struct {
	backend    queue.Backend
	handler    Handler
	config     Config
	identity   queue.Identity
	errorQueue *publisher.Publisher

	codec   codec.Codec
	logger  log.LoggerInterface
	metrics metrics.Collector
	tracer  trace.Tracer

	state atomic.Int32
	sleep func(ctx context.Context, d time.Duration)
}

// New validates cfg and resolves the queue, and the error queue when one is
// configured. Both are resolved once for the lifetime of the Listener.
func New(ctx context.Context, backend queue.Backend, handler Handler, cfg Config, opts ...Option) (*Listener, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: a queue backend is required", queue.ErrConfiguration)
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: a message handler is required", queue.ErrConfiguration)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Listener{
		backend: backend,
		handler: handler,
		config:  cfg,
		codec:   codec.JSON{},
		logger:  log.Nop(),
		tracer:  otel.Tracer(tracerName),
		sleep:   utils.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.metrics != nil {
		if err := l.metrics.RegisterCustomMetrics(listenerMetrics...); err != nil {
			return nil, fmt.Errorf("failed to register listener metrics: %w", err)
		}
	}

	identity, err := queue.Resolve(ctx, backend, cfg.Queue, queue.ResolveOptions{
		URL:               cfg.QueueURL,
		Create:            !cfg.DisableQueueCreation,
		VisibilityTimeout: utils.Ptr(cfg.VisibilityTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve queue: %w", err)
	}
	l.identity = identity
	l.setState(Idle)

	if cfg.ErrorQueue != "" {
		// Error reports are always JSON, whatever codec the messages use.
		l.errorQueue, err = publisher.New(ctx, backend, publisher.Config{
			Queue:             cfg.ErrorQueue,
			Create:            !cfg.DisableQueueCreation,
			VisibilityTimeout: utils.Ptr(cfg.ErrorVisibilityTimeout),
		}, publisher.WithLogger(l.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve error queue: %w", err)
		}
	}

	return l, nil
}

func (l *Listener) Identity() queue.Identity {
	return l.identity
}

func (l *Listener) State() State {
	return State(l.state.Load())
}

// Backlog returns the number of messages waiting in the queue, or
// queue.ErrNotSupported when the backend cannot count them.
func (l *Listener) Backlog(ctx context.Context) (int, error) {
	counter, ok := l.backend.(queue.Counter)
	if !ok {
		return 0, queue.ErrNotSupported
	}
	return counter.Count(ctx, l.identity.URL)
}

func (l *Listener) receiveOptions() types.ReceiveOptions {
	return types.ReceiveOptions{
		MaxNumberOfMessages:   l.config.MaxNumberOfMessages,
		WaitTimeSeconds:       l.config.WaitTime,
		AttributeNames:        l.config.AttributeNames,
		MessageAttributeNames: l.config.MessageAttributeNames,
	}
}

// Listen polls until ctx is cancelled. Cancellation is only observed before
// a receive: a batch that has been received is always processed to the end.
// It returns nil on cancellation and an error wrapping
// queue.ErrBackendUnavailable once MaxReceiveErrors consecutive receives
// have failed.
func (l *Listener) Listen(ctx context.Context) error {
	// Receives and message processing must not be interrupted by shutdown.
	work := context.WithoutCancel(ctx)
	options := l.receiveOptions()
	interval := time.Duration(l.config.Interval) * time.Second
	failures := 0

	l.logger.InfoFields("listening for messages", map[string]any{
		"queue":        l.identity.Name,
		"url":          l.identity.URL,
		"force_delete": l.config.ForceDelete,
	})

	for {
		if ctx.Err() != nil {
			l.setState(Idle)
			l.logger.InfoFields("stopped listening", map[string]any{"queue": l.identity.Name})
			return nil
		}

		l.setState(Receiving)
		messages, err := l.backend.Receive(work, l.identity.URL, options)
		if err != nil {
			failures++
			l.increment(metricReceiveErrors, 1)
			l.logger.ErrorFields("failed to receive messages", map[string]any{
				"queue":    l.identity.Name,
				"error":    err.Error(),
				"failures": failures,
			})

			if l.config.MaxReceiveErrors > 0 && failures >= l.config.MaxReceiveErrors {
				l.setState(Idle)
				return fmt.Errorf("%w: %d consecutive receive failures on queue %s: %w", queue.ErrBackendUnavailable, failures, l.identity, err)
			}

			l.setState(Sleeping)
			l.sleep(ctx, l.config.ErrorBackoff)
			l.setState(Idle)
			continue
		}
		failures = 0

		if len(messages) == 0 {
			l.increment(metricEmptyPolls, 1)
			l.setState(Sleeping)
			l.sleep(ctx, interval)
			l.setState(Idle)
			continue
		}

		l.increment(metricReceived, float64(len(messages)))
		l.observeBatch(len(messages))
		l.setState(Processing)
		for _, message := range messages {
			l.process(work, message)
		}
		l.setState(Idle)
	}
}

func (l *Listener) process(ctx context.Context, message types.Message) {
	ctx, span := l.tracer.Start(ctx, "process "+l.identity.Name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "aws_sqs"),
			attribute.String("messaging.destination.name", l.identity.Name),
			attribute.String("messaging.message.id", message.MessageId),
			attribute.Int("messaging.receive_count", message.ApproximateReceiveCount),
		),
	)
	defer span.End()

	fields := map[string]any{
		"queue":      l.identity.Name,
		"message_id": message.MessageId,
	}

	body, err := l.codec.Decode(message.Body)
	if err != nil {
		fields["error"] = err.Error()
		l.logger.WarningFields("skipping message that could not be decoded", fields)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		l.increment(metricProcessed, 1, "outcome", OutcomeSkipped)
		return
	}

	if l.config.ForceDelete && !l.delete(ctx, message, fields) {
		span.SetStatus(codes.Error, "delete failed")
		l.increment(metricProcessed, 1, "outcome", OutcomeDeleteFailed)
		return
	}

	started := time.Now()
	err = l.invoke(ctx, body, message)
	l.observeHandler(time.Since(started).Seconds())

	if err != nil {
		report := NewErrorReport(err)
		fields["exception_type"] = report.ExceptionType
		fields["error"] = report.ErrorMessage
		l.logger.ErrorFields("message handler failed", fields)

		span.RecordError(err)
		span.SetStatus(codes.Error, report.ExceptionType)
		l.increment(metricProcessed, 1, "outcome", OutcomeFailed)

		l.reportError(ctx, report)
		return
	}

	if !l.config.ForceDelete && !l.delete(ctx, message, fields) {
		span.SetStatus(codes.Error, "delete failed")
		l.increment(metricProcessed, 1, "outcome", OutcomeDeleteFailed)
		return
	}

	l.logger.DebugFields("message processed", fields)
	l.increment(metricProcessed, 1, "outcome", OutcomeDeleted)
}

// invoke runs the handler, turning a panic into a handler failure.
func (l *Listener) invoke(ctx context.Context, body any, message types.Message) (err error) {
	utils.TryCatch(func() {
		err = l.handler.HandleMessage(ctx, body, message.MessageAttributes, message.Attributes)
	}, func(e error, stackTrace string) {
		l.logger.ErrorStack(stackTrace, "message handler panicked on %s: %v", message.MessageId, e)
		err = WrapHandlerError("panic", e)
	})
	return err
}

// delete makes the single delete attempt for a receipt.
func (l *Listener) delete(ctx context.Context, message types.Message, fields map[string]any) bool {
	if err := l.backend.Delete(ctx, l.identity.URL, message.ReceiptHandle); err != nil {
		l.logger.ErrorFields("failed to delete message", map[string]any{
			"queue":      fields["queue"],
			"message_id": fields["message_id"],
			"error":      err.Error(),
		})
		return false
	}
	return true
}

func (l *Listener) reportError(ctx context.Context, report ErrorReport) {
	if l.errorQueue == nil {
		return
	}

	if _, err := l.errorQueue.Publish(ctx, report); err != nil {
		l.logger.ErrorFields("failed to publish error report", map[string]any{
			"queue":       l.identity.Name,
			"error_queue": l.errorQueue.Identity().Name,
			"error":       err.Error(),
		})
	}
}
