package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/google/uuid"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "sqs"
	// dedupWindow mirrors the SQS FIFO deduplication interval.
	dedupWindow              = 5 * time.Minute
	defaultVisibilityTimeout = 30
	pollInterval             = 100 * time.Millisecond
)

// leaseScript pops up to ARGV[1] ids from the ready list and leases each one
// under the receipts given from ARGV[3] on, until ARGV[2]. Popping and leasing
// happen in one step so an id is always either ready or leased. It returns
// id, record, receive count and receipt for every leased message.
var leaseScript = redis.NewScript(`
local out = {}
local leased = 0
local max = tonumber(ARGV[1])
while leased < max do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		break
	end
	local raw = redis.call('HGET', KEYS[2], id)
	if raw then
		leased = leased + 1
		local receipt = ARGV[2 + leased]
		local count = redis.call('HINCRBY', KEYS[3], id, 1)
		redis.call('HSET', KEYS[4], receipt, id)
		redis.call('ZADD', KEYS[5], ARGV[2], receipt)
		table.insert(out, id)
		table.insert(out, raw)
		table.insert(out, tostring(count))
		table.insert(out, receipt)
	end
end
return out
`)

type record struct {
	Id           string                          `json:"id"`
	Body         string                          `json:"body"`
	Attributes   map[string]types.AttributeValue `json:"attributes,omitempty"`
	SentAt       int64                           `json:"sent_at"`
	GroupId      string                          `json:"group_id,omitempty"`
}

// RedisMessageQueue is a queue.Backend on Redis lists. Received messages are
// leased: an unexpired receipt is required to delete them, and expired leases
// are put back at the head of the queue on the next receive.
type RedisMessageQueue struct {
	rdb     *redis.Client
	baseUrl string
	now     func() time.Time
}

func New(rdb *redis.Client) *RedisMessageQueue {
	opts := rdb.Options()
	return &RedisMessageQueue{
		rdb:     rdb,
		baseUrl: fmt.Sprintf("redis://%s/%d", opts.Addr, opts.DB),
		now:     time.Now,
	}
}

func registryKey() string {
	return keyPrefix + ":queues"
}

func key(name, suffix string) string {
	return fmt.Sprintf("%s:q:%s:%s", keyPrefix, name, suffix)
}

func (q *RedisMessageQueue) url(name string) string {
	return fmt.Sprintf("%s/%s", q.baseUrl, name)
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", queue.ErrBackendUnavailable, op, err)
}

func (q *RedisMessageQueue) attributes(ctx context.Context, name string) (types.QueueAttributes, error) {
	var attrs types.QueueAttributes

	raw, err := q.rdb.HGet(ctx, registryKey(), name).Result()
	if err == redis.Nil {
		return attrs, fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
	} else if err != nil {
		return attrs, wrap("get queue attributes", err)
	}

	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return attrs, fmt.Errorf("failed to decode attributes of queue %s: %w", name, err)
	}
	return attrs, nil
}

func (q *RedisMessageQueue) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	names, err := q.rdb.HKeys(ctx, registryKey()).Result()
	if err != nil {
		return nil, wrap("list queues", err)
	}

	var urls []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			urls = append(urls, q.url(name))
		}
	}
	sort.Strings(urls)
	return urls, nil
}

// CreateQueue registers the queue unless it already exists; existing
// attributes are kept.
func (q *RedisMessageQueue) CreateQueue(ctx context.Context, name string, attributes types.QueueAttributes) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: queue name is required", queue.ErrConfiguration)
	}
	if attributes.Fifo && !queue.IsFifo(name) {
		return "", fmt.Errorf("%w: fifo queue names must end with %s", queue.ErrConfiguration, queue.FifoSuffix)
	}

	if attributes.VisibilityTimeout == nil {
		attributes.VisibilityTimeout = utils.Ptr(defaultVisibilityTimeout)
	}
	raw, err := json.Marshal(attributes)
	if err != nil {
		return "", err
	}

	if err := q.rdb.HSetNX(ctx, registryKey(), name, string(raw)).Err(); err != nil {
		return "", wrap("create queue", err)
	}

	return q.url(name), nil
}

func (q *RedisMessageQueue) GetQueueURL(ctx context.Context, name string) (string, error) {
	exists, err := q.rdb.HExists(ctx, registryKey(), name).Result()
	if err != nil {
		return "", wrap("get queue url", err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", queue.ErrQueueNotFound, name)
	}
	return q.url(name), nil
}

func (q *RedisMessageQueue) Send(ctx context.Context, url string, body string, options types.EnqueueOptions) (types.SendResult, error) {
	name := utils.LastSegment(url)

	attrs, err := q.attributes(ctx, name)
	if err != nil {
		return types.SendResult{}, err
	}

	rec := record{
		Id:         uuid.New().String(),
		Body:       body,
		Attributes: options.Attributes,
		SentAt:     q.now().UnixMilli(),
		GroupId:    options.MessageGroupId,
	}

	if attrs.Fifo {
		if options.MessageGroupId == "" {
			return types.SendResult{}, fmt.Errorf("%w: fifo queues require a message group id", queue.ErrConfiguration)
		}
		if options.DeduplicationId != "" {
			dedupKey := key(name, "dedup:"+options.DeduplicationId)
			ok, err := q.rdb.SetNX(ctx, dedupKey, rec.Id, dedupWindow).Result()
			if err != nil {
				return types.SendResult{}, wrap("send message", err)
			}
			if !ok {
				existing, err := q.rdb.Get(ctx, dedupKey).Result()
				if err != nil {
					return types.SendResult{}, wrap("send message", err)
				}
				return types.SendResult{MessageId: existing}, nil
			}
		}
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return types.SendResult{}, err
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key(name, "messages"), rec.Id, string(raw))
		if options.DelaySeconds > 0 {
			visibleAt := q.now().Add(time.Duration(options.DelaySeconds) * time.Second).UnixMilli()
			pipe.ZAdd(ctx, key(name, "delayed"), redis.Z{Score: float64(visibleAt), Member: rec.Id})
		} else {
			pipe.LPush(ctx, key(name, "ready"), rec.Id)
		}
		return nil
	})
	if err != nil {
		return types.SendResult{}, wrap("send message", err)
	}

	return types.SendResult{MessageId: rec.Id}, nil
}

// Receive leases up to MaxNumberOfMessages messages. With WaitTimeSeconds set
// it polls until a message arrives or the wait time is over.
func (q *RedisMessageQueue) Receive(ctx context.Context, url string, options types.ReceiveOptions) ([]types.Message, error) {
	name := utils.LastSegment(url)

	attrs, err := q.attributes(ctx, name)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(time.Duration(options.WaitTimeSeconds) * time.Second)

	for {
		messages, err := q.receive(ctx, name, attrs, options)
		if err != nil || len(messages) > 0 || !time.Now().Before(deadline) {
			return messages, err
		}
		utils.Sleep(ctx, pollInterval)
		if ctx.Err() != nil {
			return nil, nil
		}
	}
}

func (q *RedisMessageQueue) receive(ctx context.Context, name string, attrs types.QueueAttributes, options types.ReceiveOptions) ([]types.Message, error) {
	if err := q.requeueExpired(ctx, name); err != nil {
		return nil, err
	}
	if err := q.promoteDelayed(ctx, name); err != nil {
		return nil, err
	}

	max := utils.IntOrDefault(options.MaxNumberOfMessages, 1)
	now := q.now()
	visibility := utils.ValueOrDefault(attrs.VisibilityTimeout, defaultVisibilityTimeout)
	leaseUntil := now.Add(time.Duration(visibility) * time.Second).UnixMilli()

	args := []any{max, leaseUntil}
	for i := 0; i < max; i++ {
		args = append(args, uuid.New().String())
	}

	keys := []string{
		key(name, "ready"),
		key(name, "messages"),
		key(name, "counts"),
		key(name, "receipts"),
		key(name, "leases"),
	}

	leased, err := leaseScript.Run(ctx, q.rdb, keys, args...).StringSlice()
	if err != nil {
		return nil, wrap("receive message", err)
	}

	messages := make([]types.Message, 0, len(leased)/4)
	for i := 0; i+3 < len(leased); i += 4 {
		id, raw, receipt := leased[i], leased[i+1], leased[i+3]
		count, _ := strconv.Atoi(leased[i+2])

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			if err := q.quarantine(ctx, name, id, receipt, raw); err != nil {
				return nil, err
			}
			continue
		}

		messages = append(messages, types.Message{
			MessageId:               rec.Id,
			ReceiptHandle:           receipt,
			Body:                    rec.Body,
			MessageAttributes:       queue.FilterAttributes(rec.Attributes, options.MessageAttributeNames),
			Attributes:              queue.SystemAttributes(count, rec.SentAt, rec.GroupId, options.AttributeNames),
			ReceivedAt:              now,
			ApproximateReceiveCount: count,
		})
	}

	return messages, nil
}

// quarantine moves a record that cannot be decoded out of the queue into the
// corrupt hash, where it is kept for inspection.
func (q *RedisMessageQueue) quarantine(ctx context.Context, name, id, receipt, raw string) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key(name, "corrupt"), id, raw)
		pipe.HDel(ctx, key(name, "messages"), id)
		pipe.HDel(ctx, key(name, "counts"), id)
		pipe.ZRem(ctx, key(name, "leases"), receipt)
		pipe.HDel(ctx, key(name, "receipts"), receipt)
		return nil
	})
	if err != nil {
		return wrap("quarantine message", err)
	}
	return nil
}

// requeueExpired puts messages whose lease ran out back at the pop end of
// the ready list.
func (q *RedisMessageQueue) requeueExpired(ctx context.Context, name string) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)

	receipts, err := q.rdb.ZRangeByScore(ctx, key(name, "leases"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return wrap("requeue expired messages", err)
	}

	for _, receipt := range receipts {
		id, err := q.rdb.HGet(ctx, key(name, "receipts"), receipt).Result()
		if err != nil && err != redis.Nil {
			return wrap("requeue expired messages", err)
		}

		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, key(name, "leases"), receipt)
			pipe.HDel(ctx, key(name, "receipts"), receipt)
			if id != "" {
				pipe.RPush(ctx, key(name, "ready"), id)
			}
			return nil
		})
		if err != nil {
			return wrap("requeue expired messages", err)
		}
	}

	return nil
}

func (q *RedisMessageQueue) promoteDelayed(ctx context.Context, name string) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)

	ids, err := q.rdb.ZRangeByScore(ctx, key(name, "delayed"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return wrap("promote delayed messages", err)
	}

	for _, id := range ids {
		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, key(name, "delayed"), id)
			pipe.LPush(ctx, key(name, "ready"), id)
			return nil
		})
		if err != nil {
			return wrap("promote delayed messages", err)
		}
	}

	return nil
}

// Delete removes a message. The receipt must belong to an unexpired lease.
func (q *RedisMessageQueue) Delete(ctx context.Context, url string, receiptHandle string) error {
	name := utils.LastSegment(url)

	score, err := q.rdb.ZScore(ctx, key(name, "leases"), receiptHandle).Result()
	if err == redis.Nil {
		return fmt.Errorf("%w: %s", queue.ErrReceiptInvalid, receiptHandle)
	} else if err != nil {
		return wrap("delete message", err)
	}

	if int64(score) <= q.now().UnixMilli() {
		return fmt.Errorf("%w: %s", queue.ErrReceiptInvalid, receiptHandle)
	}

	id, err := q.rdb.HGet(ctx, key(name, "receipts"), receiptHandle).Result()
	if err != nil && err != redis.Nil {
		return wrap("delete message", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, key(name, "leases"), receiptHandle)
		pipe.HDel(ctx, key(name, "receipts"), receiptHandle)
		if id != "" {
			pipe.HDel(ctx, key(name, "messages"), id)
			pipe.HDel(ctx, key(name, "counts"), id)
		}
		return nil
	})
	if err != nil {
		return wrap("delete message", err)
	}

	return nil
}

// Count returns the number of messages waiting in the queue.
func (q *RedisMessageQueue) Count(ctx context.Context, url string) (int, error) {
	count, err := q.rdb.LLen(ctx, key(utils.LastSegment(url), "ready")).Result()
	if err != nil {
		return 0, wrap("count messages", err)
	}
	return int(count), nil
}
