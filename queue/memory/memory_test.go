package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue() (*MemoryMessageQueue, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := New()
	q.now = c.now
	return q, c
}

func TestCreateQueueIsIdempotent(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	first, err := q.CreateQueue(ctx, "orders", types.QueueAttributes{VisibilityTimeout: utils.Ptr(600)})
	require.NoError(t, err)
	second, err := q.CreateQueue(ctx, "orders", types.QueueAttributes{VisibilityTimeout: utils.Ptr(30)})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "memory://local/orders", first)

	attrs, ok := q.Attributes("orders")
	require.True(t, ok)
	assert.Equal(t, utils.Ptr(600), attrs.VisibilityTimeout)
}

func TestCreateFifoRequiresSuffix(t *testing.T) {
	q, _ := newTestQueue()
	_, err := q.CreateQueue(context.Background(), "orders", types.QueueAttributes{Fifo: true})
	assert.ErrorIs(t, err, queue.ErrConfiguration)
}

func TestListQueuesByPrefix(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	for _, name := range []string{"orders", "orders-errors", "payments"} {
		_, err := q.CreateQueue(ctx, name, types.QueueAttributes{})
		require.NoError(t, err)
	}

	urls, err := q.ListQueues(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"memory://local/orders", "memory://local/orders-errors"}, urls)

	_, err = q.GetQueueURL(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestReceiveDeleteAndRedelivery(t *testing.T) {
	q, c := newTestQueue()
	ctx := context.Background()
	url, err := q.CreateQueue(ctx, "jobs", types.QueueAttributes{VisibilityTimeout: utils.Ptr(10)})
	require.NoError(t, err)

	for _, body := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		_, err := q.Send(ctx, url, body, types.EnqueueOptions{})
		require.NoError(t, err)
	}

	batch, err := q.Receive(ctx, url, types.ReceiveOptions{MaxNumberOfMessages: 2, AttributeNames: []string{"All"}})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, `{"n":1}`, batch[0].Body)
	assert.Equal(t, `{"n":2}`, batch[1].Body)
	assert.Equal(t, "1", batch[0].Attributes["ApproximateReceiveCount"])

	visible, inflight := q.Len(url)
	assert.Equal(t, 1, visible)
	assert.Equal(t, 2, inflight)

	require.NoError(t, q.Delete(ctx, url, batch[0].ReceiptHandle))
	assert.ErrorIs(t, q.Delete(ctx, url, batch[0].ReceiptHandle), queue.ErrReceiptInvalid)

	// Lease on the second message expires and it is redelivered first.
	c.advance(11 * time.Second)
	assert.ErrorIs(t, q.Delete(ctx, url, batch[1].ReceiptHandle), queue.ErrReceiptInvalid)

	batch, err = q.Receive(ctx, url, types.ReceiveOptions{MaxNumberOfMessages: 10})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, `{"n":2}`, batch[0].Body)
	assert.Equal(t, 2, batch[0].ApproximateReceiveCount)
	assert.Equal(t, `{"n":3}`, batch[1].Body)
}

func TestDelayedSend(t *testing.T) {
	q, c := newTestQueue()
	ctx := context.Background()
	url, _ := q.CreateQueue(ctx, "jobs", types.QueueAttributes{})

	_, err := q.Send(ctx, url, `"later"`, types.EnqueueOptions{DelaySeconds: 5})
	require.NoError(t, err)

	batch, err := q.Receive(ctx, url, types.ReceiveOptions{})
	require.NoError(t, err)
	assert.Empty(t, batch)

	c.advance(5 * time.Second)
	batch, err = q.Receive(ctx, url, types.ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, `"later"`, batch[0].Body)
}

func TestFifoDeduplication(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	url, err := q.CreateQueue(ctx, "jobs.fifo", types.QueueAttributes{Fifo: true})
	require.NoError(t, err)

	_, err = q.Send(ctx, url, "a", types.EnqueueOptions{})
	assert.ErrorIs(t, err, queue.ErrConfiguration)

	first, err := q.Send(ctx, url, "a", types.EnqueueOptions{MessageGroupId: "g", DeduplicationId: "d-1"})
	require.NoError(t, err)
	second, err := q.Send(ctx, url, "a", types.EnqueueOptions{MessageGroupId: "g", DeduplicationId: "d-1"})
	require.NoError(t, err)

	assert.Equal(t, first.MessageId, second.MessageId)
	visible, _ := q.Len(url)
	assert.Equal(t, 1, visible)
}

func TestMessageAttributeFilter(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	url, _ := q.CreateQueue(ctx, "jobs", types.QueueAttributes{})

	_, err := q.Send(ctx, url, "{}", types.EnqueueOptions{Attributes: map[string]types.AttributeValue{
		"tenant": {DataType: "String", StringValue: "acme"},
		"trace":  {DataType: "String", StringValue: "t-1"},
	}})
	require.NoError(t, err)

	batch, err := q.Receive(ctx, url, types.ReceiveOptions{MessageAttributeNames: []string{"tenant"}})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, map[string]types.AttributeValue{"tenant": {DataType: "String", StringValue: "acme"}}, batch[0].MessageAttributes)
	assert.Nil(t, batch[0].Attributes)
}

func TestUnknownQueue(t *testing.T) {
	q, _ := newTestQueue()
	_, err := q.Receive(context.Background(), "memory://local/nope", types.ReceiveOptions{})
	assert.True(t, errors.Is(err, queue.ErrQueueNotFound))
}

func TestZeroVisibilityTimeoutRedeliversImmediately(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()
	url, err := q.CreateQueue(ctx, "jobs", types.QueueAttributes{VisibilityTimeout: utils.Ptr(0)})
	require.NoError(t, err)

	_, err = q.Send(ctx, url, "x", types.EnqueueOptions{})
	require.NoError(t, err)

	first, err := q.Receive(ctx, url, types.ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.Receive(ctx, url, types.ReceiveOptions{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].MessageId, second[0].MessageId)
	assert.Equal(t, 2, second[0].ApproximateReceiveCount)
}
