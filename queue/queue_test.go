package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/memory"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend records provisioning calls made through it.
type countingBackend struct {
	*memory.MemoryMessageQueue
	lists   int
	creates []string
	attrs   []types.QueueAttributes
	listErr error
}

func (b *countingBackend) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	b.lists++
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.MemoryMessageQueue.ListQueues(ctx, prefix)
}

func (b *countingBackend) CreateQueue(ctx context.Context, name string, attributes types.QueueAttributes) (string, error) {
	b.creates = append(b.creates, name)
	b.attrs = append(b.attrs, attributes)
	return b.MemoryMessageQueue.CreateQueue(ctx, name, attributes)
}

func newBackend() *countingBackend {
	return &countingBackend{MemoryMessageQueue: memory.New()}
}

func TestResolveWithURLSkipsBackend(t *testing.T) {
	backend := newBackend()

	identity, err := queue.Resolve(context.Background(), backend, "ignored", queue.ResolveOptions{
		URL: "https://sqs.af-south-1.amazonaws.com/123456789012/orders.fifo",
	})
	require.NoError(t, err)

	assert.Equal(t, "orders.fifo", identity.Name)
	assert.True(t, identity.Fifo)
	assert.Equal(t, "https://sqs.af-south-1.amazonaws.com/123456789012/orders.fifo", identity.URL)
	assert.Zero(t, backend.lists)
	assert.Empty(t, backend.creates)
}

func TestResolveRequiresNameOrURL(t *testing.T) {
	_, err := queue.Resolve(context.Background(), newBackend(), "", queue.ResolveOptions{Create: true})
	assert.ErrorIs(t, err, queue.ErrConfiguration)
}

func TestResolveExistingQueueUsesExactMatch(t *testing.T) {
	backend := newBackend()
	ctx := context.Background()
	_, err := backend.MemoryMessageQueue.CreateQueue(ctx, "orders-archive", types.QueueAttributes{})
	require.NoError(t, err)

	// Only a prefix match exists, so "orders" must be created.
	identity, err := queue.Resolve(ctx, backend, "orders", queue.ResolveOptions{Create: true, VisibilityTimeout: utils.Ptr(600)})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, backend.creates)
	assert.Equal(t, "memory://local/orders", identity.URL)

	// Now it exists and is not created again.
	identity, err = queue.Resolve(ctx, backend, "orders", queue.ResolveOptions{Create: true})
	require.NoError(t, err)
	assert.Len(t, backend.creates, 1)
	assert.Equal(t, "orders", identity.Name)
	assert.False(t, identity.Fifo)
}

func TestResolveIsCaseSensitive(t *testing.T) {
	backend := newBackend()
	ctx := context.Background()
	_, err := backend.MemoryMessageQueue.CreateQueue(ctx, "Orders", types.QueueAttributes{})
	require.NoError(t, err)

	_, err = queue.Resolve(ctx, backend, "orders", queue.ResolveOptions{})
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
}

func TestResolveMissingWithoutCreate(t *testing.T) {
	backend := newBackend()

	_, err := queue.Resolve(context.Background(), backend, "orders", queue.ResolveOptions{})
	assert.ErrorIs(t, err, queue.ErrQueueNotFound)
	assert.Empty(t, backend.creates)
}

func TestResolveFifoFlag(t *testing.T) {
	tests := []struct {
		name     string
		queue    string
		wantFifo bool
	}{
		{"fifo suffix", "payments.fifo", true},
		{"standard queue", "payments", false},
		{"suffix not at end", "payments.fifo.dlq", false},
		{"uppercase suffix", "payments.FIFO", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend()
			identity, err := queue.Resolve(context.Background(), backend, tt.queue, queue.ResolveOptions{Create: true, VisibilityTimeout: utils.Ptr(600)})
			require.NoError(t, err)

			require.Len(t, backend.attrs, 1)
			assert.Equal(t, tt.wantFifo, backend.attrs[0].Fifo)
			assert.Equal(t, utils.Ptr(600), backend.attrs[0].VisibilityTimeout)
			assert.Equal(t, tt.wantFifo, identity.Fifo)
		})
	}
}

func TestResolvePropagatesBackendErrors(t *testing.T) {
	backend := newBackend()
	backend.listErr = errors.Join(queue.ErrBackendUnavailable, errors.New("connection reset"))

	_, err := queue.Resolve(context.Background(), backend, "orders", queue.ResolveOptions{Create: true})
	assert.ErrorIs(t, err, queue.ErrBackendUnavailable)
	assert.Empty(t, backend.creates)
}
