package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
)

const FifoSuffix = ".fifo"

var (
	ErrConfiguration         = errors.New("invalid queue configuration")
	ErrQueueNotFound         = errors.New("queue not found")
	ErrAuthenticationMissing = errors.New("no credentials or identity could be resolved")
	ErrBackendUnavailable    = errors.New("queue backend unavailable")
	ErrReceiptInvalid        = errors.New("receipt handle invalid or expired")
	ErrNotSupported          = errors.New("operation not supported by the queue backend")
)

// Backend is the queue service capability the listener and publisher are built on.
type Backend interface {
	ListQueues(ctx context.Context, prefix string) ([]string, error)
	CreateQueue(ctx context.Context, name string, attributes types.QueueAttributes) (string, error)
	GetQueueURL(ctx context.Context, name string) (string, error)
	Receive(ctx context.Context, url string, options types.ReceiveOptions) ([]types.Message, error)
	Delete(ctx context.Context, url string, receiptHandle string) error
	Send(ctx context.Context, url string, body string, options types.EnqueueOptions) (types.SendResult, error)
}

// Counter is implemented by backends that can report how many messages are
// waiting in a queue.
type Counter interface {
	Count(ctx context.Context, url string) (int, error)
}

// Identity is a resolved queue. It is resolved once and never changes.
type Identity struct {
	Name string
	URL  string
	Fifo bool
}

func (i Identity) String() string {
	return i.Name
}

type ResolveOptions struct {
	// URL skips name resolution entirely when set.
	URL               string
	Create            bool
	VisibilityTimeout *int
}

func IsFifo(name string) bool {
	return strings.HasSuffix(name, FifoSuffix)
}

// Resolve turns a queue name (or a known URL) into an Identity, creating the
// queue when it does not exist and options.Create is set.
func Resolve(ctx context.Context, backend Backend, name string, options ResolveOptions) (Identity, error) {
	if options.URL != "" {
		name = utils.LastSegment(options.URL)
		return Identity{Name: name, URL: options.URL, Fifo: IsFifo(name)}, nil
	}

	if name == "" {
		return Identity{}, fmt.Errorf("%w: a queue name or url is required", ErrConfiguration)
	}

	urls, err := backend.ListQueues(ctx, name)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to list queues with prefix %s: %w", name, err)
	}

	url, exists := utils.Find(urls, func(u string, _ int) bool {
		return utils.LastSegment(u) == name
	})

	if !exists {
		if !options.Create {
			return Identity{}, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
		}

		url, err = backend.CreateQueue(ctx, name, types.QueueAttributes{
			VisibilityTimeout: options.VisibilityTimeout,
			Fifo:              IsFifo(name),
		})
		if err != nil {
			return Identity{}, fmt.Errorf("failed to create queue %s: %w", name, err)
		}
	}

	if url == "" {
		url, err = backend.GetQueueURL(ctx, name)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to get url for queue %s: %w", name, err)
		}
	}

	return Identity{Name: name, URL: url, Fifo: IsFifo(name)}, nil
}
