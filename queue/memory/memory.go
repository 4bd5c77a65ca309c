package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/google/uuid"
)

const DefaultBaseUrl = "memory://local"

// defaultVisibilityTimeout matches the SQS default for queues created without one.
const defaultVisibilityTimeout = 30

type record struct {
	id           string
	body         string
	attributes   map[string]types.AttributeValue
	sentAt       time.Time
	visibleAt    time.Time
	receiveCount int
	groupId      string
}

type memoryQueue struct {
	attributes types.QueueAttributes
	ready      []*record
	inflight   map[string]*record
	dedup      map[string]string
}

// MemoryMessageQueue is an in-process queue.Backend with visibility leases.
// It is safe for concurrent use.
type MemoryMessageQueue struct {
	mu      sync.Mutex
	baseUrl string
	queues  map[string]*memoryQueue
	now     func() time.Time
	poll    time.Duration
}

func New(baseUrl ...string) *MemoryMessageQueue {
	url := DefaultBaseUrl
	if len(baseUrl) > 0 && baseUrl[0] != "" {
		url = strings.TrimRight(baseUrl[0], "/")
	}
	return &MemoryMessageQueue{
		baseUrl: url,
		queues:  make(map[string]*memoryQueue),
		now:     time.Now,
		poll:    50 * time.Millisecond,
	}
}

func (q *MemoryMessageQueue) url(name string) string {
	return fmt.Sprintf("%s/%s", q.baseUrl, name)
}

func (q *MemoryMessageQueue) lookup(url string) (*memoryQueue, error) {
	mq, ok := q.queues[utils.LastSegment(url)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, url)
	}
	return mq, nil
}

func (q *MemoryMessageQueue) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var urls []string
	for name := range q.queues {
		if strings.HasPrefix(name, prefix) {
			urls = append(urls, q.url(name))
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (q *MemoryMessageQueue) CreateQueue(ctx context.Context, name string, attributes types.QueueAttributes) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: queue name is required", queue.ErrConfiguration)
	}
	if attributes.Fifo && !queue.IsFifo(name) {
		return "", fmt.Errorf("%w: fifo queue names must end with %s", queue.ErrConfiguration, queue.FifoSuffix)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.queues[name]; !exists {
		if attributes.VisibilityTimeout == nil {
			attributes.VisibilityTimeout = utils.Ptr(defaultVisibilityTimeout)
		}
		q.queues[name] = &memoryQueue{
			attributes: attributes,
			inflight:   make(map[string]*record),
			dedup:      make(map[string]string),
		}
	}

	return q.url(name), nil
}

func (q *MemoryMessageQueue) GetQueueURL(ctx context.Context, name string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.queues[name]; !exists {
		return "", fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
	}
	return q.url(name), nil
}

func (q *MemoryMessageQueue) Send(ctx context.Context, url string, body string, options types.EnqueueOptions) (types.SendResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.lookup(url)
	if err != nil {
		return types.SendResult{}, err
	}

	if mq.attributes.Fifo {
		if options.MessageGroupId == "" {
			return types.SendResult{}, fmt.Errorf("%w: fifo queues require a message group id", queue.ErrConfiguration)
		}
		if id, seen := mq.dedup[options.DeduplicationId]; seen && options.DeduplicationId != "" {
			return types.SendResult{MessageId: id}, nil
		}
	}

	now := q.now()
	rec := &record{
		id:         uuid.New().String(),
		body:       body,
		attributes: options.Attributes,
		sentAt:     now,
		visibleAt:  now.Add(time.Duration(options.DelaySeconds) * time.Second),
		groupId:    options.MessageGroupId,
	}
	mq.ready = append(mq.ready, rec)

	if mq.attributes.Fifo && options.DeduplicationId != "" {
		mq.dedup[options.DeduplicationId] = rec.id
	}

	return types.SendResult{MessageId: rec.id}, nil
}

func (q *MemoryMessageQueue) Receive(ctx context.Context, url string, options types.ReceiveOptions) ([]types.Message, error) {
	deadline := q.now().Add(time.Duration(options.WaitTimeSeconds) * time.Second)

	for {
		messages, err := q.receive(url, options)
		if err != nil || len(messages) > 0 || !q.now().Before(deadline) {
			return messages, err
		}
		utils.Sleep(ctx, q.poll)
		if ctx.Err() != nil {
			return nil, nil
		}
	}
}

func (q *MemoryMessageQueue) receive(url string, options types.ReceiveOptions) ([]types.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.lookup(url)
	if err != nil {
		return nil, err
	}

	now := q.now()

	// Expired leases go back to the front so they are redelivered first.
	var expired []*record
	for receipt, rec := range mq.inflight {
		if !rec.visibleAt.After(now) {
			expired = append(expired, rec)
			delete(mq.inflight, receipt)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].sentAt.Before(expired[j].sentAt) })
	mq.ready = append(expired, mq.ready...)

	max := utils.IntOrDefault(options.MaxNumberOfMessages, 1)
	visibility := time.Duration(*mq.attributes.VisibilityTimeout) * time.Second

	var messages []types.Message
	remaining := mq.ready[:0]
	for _, rec := range mq.ready {
		if len(messages) >= max || rec.visibleAt.After(now) {
			remaining = append(remaining, rec)
			continue
		}

		rec.receiveCount++
		rec.visibleAt = now.Add(visibility)
		receipt := uuid.New().String()
		mq.inflight[receipt] = rec

		messages = append(messages, types.Message{
			MessageId:               rec.id,
			ReceiptHandle:           receipt,
			Body:                    rec.body,
			MessageAttributes:       queue.FilterAttributes(rec.attributes, options.MessageAttributeNames),
			Attributes:              queue.SystemAttributes(rec.receiveCount, rec.sentAt.UnixMilli(), rec.groupId, options.AttributeNames),
			ReceivedAt:              now,
			ApproximateReceiveCount: rec.receiveCount,
		})
	}
	mq.ready = remaining

	return messages, nil
}

func (q *MemoryMessageQueue) Delete(ctx context.Context, url string, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.lookup(url)
	if err != nil {
		return err
	}

	rec, ok := mq.inflight[receiptHandle]
	if !ok || !rec.visibleAt.After(q.now()) {
		return fmt.Errorf("%w: %s", queue.ErrReceiptInvalid, receiptHandle)
	}
	delete(mq.inflight, receiptHandle)
	return nil
}

// Len reports the number of visible and in-flight messages of a queue.
func (q *MemoryMessageQueue) Len(url string) (visible int, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.lookup(url)
	if err != nil {
		return 0, 0
	}
	return len(mq.ready), len(mq.inflight)
}

// Count returns the number of messages waiting in the queue.
func (q *MemoryMessageQueue) Count(ctx context.Context, url string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, err := q.lookup(url)
	if err != nil {
		return 0, err
	}
	return len(mq.ready), nil
}

// Attributes returns the attributes a queue was created with.
func (q *MemoryMessageQueue) Attributes(name string) (types.QueueAttributes, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	mq, ok := q.queues[name]
	if !ok {
		return types.QueueAttributes{}, false
	}
	return mq.attributes, true
}
