package listener

import (
	"fmt"
	"time"

	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/utils"
)

const (
	DefaultInterval               = 60
	DefaultVisibilityTimeout      = 600
	DefaultErrorVisibilityTimeout = 600
	DefaultMaxNumberOfMessages    = 1
	DefaultErrorBackoff           = 5 * time.Second

	// MaxNumberOfMessagesLimit and MaxWaitTime are the SQS receive limits.
	MaxNumberOfMessagesLimit = 10
	MaxWaitTime              = 20
)

// Config configures a Listener. Durations without a unit are in seconds.
// Values are used as given, so a zero Interval polls again right away; start
// from DefaultConfig to get the defaults above.
type Config struct {
	Queue string
	// QueueURL bypasses name resolution.
	QueueURL string
	// Interval is the pause after an empty receive.
	Interval          int
	VisibilityTimeout int

	ErrorQueue             string
	ErrorVisibilityTimeout int

	MessageAttributeNames []string
	AttributeNames        []string

	// ForceDelete deletes each message before its handler runs.
	ForceDelete         bool
	WaitTime            int
	MaxNumberOfMessages int

	// DisableQueueCreation makes a missing queue a construction error
	// instead of creating it.
	DisableQueueCreation bool

	ErrorBackoff time.Duration
	// MaxReceiveErrors stops Listen after this many consecutive receive
	// failures. Zero keeps retrying forever.
	MaxReceiveErrors int
}

// DefaultConfig returns the settings used for queue when nothing else is
// configured.
func DefaultConfig(queue string) Config {
	return Config{
		Queue:                  queue,
		Interval:               DefaultInterval,
		VisibilityTimeout:      DefaultVisibilityTimeout,
		ErrorVisibilityTimeout: DefaultErrorVisibilityTimeout,
		MaxNumberOfMessages:    DefaultMaxNumberOfMessages,
		ErrorBackoff:           DefaultErrorBackoff,
	}
}

// withDefaults only fills MaxNumberOfMessages, where zero is not a valid
// batch size.
func (c Config) withDefaults() Config {
	c.MaxNumberOfMessages = utils.IntOrDefault(c.MaxNumberOfMessages, DefaultMaxNumberOfMessages)
	return c
}

// Validate reports the first invalid field, wrapped in queue.ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.Queue == "" && c.QueueURL == "":
		return fmt.Errorf("%w: a queue name or queue url is required", queue.ErrConfiguration)
	case c.Interval < 0:
		return fmt.Errorf("%w: interval must not be negative", queue.ErrConfiguration)
	case c.VisibilityTimeout < 0 || c.ErrorVisibilityTimeout < 0:
		return fmt.Errorf("%w: visibility timeouts must not be negative", queue.ErrConfiguration)
	case c.WaitTime < 0 || c.WaitTime > MaxWaitTime:
		return fmt.Errorf("%w: wait time must be between 0 and %d seconds", queue.ErrConfiguration, MaxWaitTime)
	case c.MaxNumberOfMessages < 1 || c.MaxNumberOfMessages > MaxNumberOfMessagesLimit:
		return fmt.Errorf("%w: max number of messages must be between 1 and %d", queue.ErrConfiguration, MaxNumberOfMessagesLimit)
	case c.ErrorBackoff < 0:
		return fmt.Errorf("%w: error backoff must not be negative", queue.ErrConfiguration)
	case c.MaxReceiveErrors < 0:
		return fmt.Errorf("%w: max receive errors must not be negative", queue.ErrConfiguration)
	}
	return nil
}
