package publisher

import (
	"context"
	"fmt"

	"github.com/finch-technologies/go-sqs-listener/codec"
	"github.com/finch-technologies/go-sqs-listener/log"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/google/uuid"
)

// DefaultMessageGroupId is used for FIFO sends that do not name a group.
const DefaultMessageGroupId = "default"

type Config struct {
	Queue    string
	QueueURL string
	// Create provisions the queue when it does not exist yet.
	Create bool
	// VisibilityTimeout applies to a queue created here; nil leaves the
	// backend default.
	VisibilityTimeout *int
}

type Option func(*Publisher)

func WithLogger(logger log.LoggerInterface) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithCodec(c codec.Codec) Option {
	return func(p *Publisher) {
		p.codec = c
	}
}

// Publisher sends serialized payloads to one resolved queue.
type Publisher struct {
	backend  queue.Backend
	identity queue.Identity
	codec    codec.Codec
	logger   log.LoggerInterface
}

func New(ctx context.Context, backend queue.Backend, cfg Config, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		backend: backend,
		codec:   codec.JSON{},
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	identity, err := queue.Resolve(ctx, backend, cfg.Queue, queue.ResolveOptions{
		URL:               cfg.QueueURL,
		Create:            cfg.Create,
		VisibilityTimeout: cfg.VisibilityTimeout,
	})
	if err != nil {
		return nil, err
	}
	p.identity = identity

	return p, nil
}

func (p *Publisher) Identity() queue.Identity {
	return p.identity
}

// Publish serializes payload and sends it once. Group and deduplication ids
// are only sent to FIFO queues, where they are filled in when missing.
func (p *Publisher) Publish(ctx context.Context, payload any, options ...types.EnqueueOptions) (types.SendResult, error) {
	var opts types.EnqueueOptions
	if len(options) > 0 {
		opts = options[0]
	}

	body, err := p.codec.Encode(payload)
	if err != nil {
		return types.SendResult{}, fmt.Errorf("failed to encode message for queue %s: %w", p.identity, err)
	}

	if p.identity.Fifo {
		opts.MessageGroupId = utils.StringOrDefault(opts.MessageGroupId, DefaultMessageGroupId)
		opts.DeduplicationId = utils.StringOrDefault(opts.DeduplicationId, uuid.New().String())
	} else {
		opts.MessageGroupId = ""
		opts.DeduplicationId = ""
	}

	result, err := p.backend.Send(ctx, p.identity.URL, body, opts)
	if err != nil {
		return types.SendResult{}, fmt.Errorf("failed to send message to queue %s: %w", p.identity, err)
	}

	p.logger.DebugFields("message published", map[string]any{
		"queue":      p.identity.Name,
		"message_id": result.MessageId,
	})

	return result, nil
}
