package sqs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
)

// ElasticMQRegion is the pseudo-region used for a local ElasticMQ endpoint;
// it switches the endpoint scheme to plain http.
const ElasticMQRegion = "elasticmq"

// API is the subset of *sqs.Client used by SQSMessageQueue.
type API interface {
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSConfig struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// AccountID is passed as the queue owner when looking up queue URLs.
	AccountID string
}

// SQSMessageQueue is a concrete implementation of queue.Backend using AWS SQS.
type SQSMessageQueue struct {
	client API
	config SQSConfig
}

// New loads AWS credentials and builds an SQS client. It fails with
// queue.ErrAuthenticationMissing when no credentials can be resolved.
func New(ctx context.Context, cfg SQSConfig) (*SQSMessageQueue, error) {
	cfg.Region = utils.StringOrDefault(cfg.Region, utils.StringOrDefault(os.Getenv("AWS_REGION"), "af-south-1"))
	cfg.AccountID = utils.StringOrDefault(cfg.AccountID, os.Getenv("AWS_ACCOUNT_ID"))

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	if awsCfg.Credentials == nil {
		return nil, queue.ErrAuthenticationMissing
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", queue.ErrAuthenticationMissing, err)
	}

	endpoint := endpointFor(cfg)
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewFromAPI(client, cfg), nil
}

// NewFromAPI wraps an existing client, e.g. a mock in tests.
func NewFromAPI(client API, cfg SQSConfig) *SQSMessageQueue {
	return &SQSMessageQueue{client: client, config: cfg}
}

func endpointFor(cfg SQSConfig) string {
	if cfg.Endpoint == "" || strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.Region == ElasticMQRegion {
		return "http://" + cfg.Endpoint
	}
	return "https://" + cfg.Endpoint
}

// classify maps SQS errors onto the queue error taxonomy.
func classify(op string, err error) error {
	var notFound *sqstypes.QueueDoesNotExist
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s: %w", queue.ErrQueueNotFound, op, err)
	}

	var invalidReceipt *sqstypes.ReceiptHandleIsInvalid
	if errors.As(err, &invalidReceipt) {
		return fmt.Errorf("%w: %s: %w", queue.ErrReceiptInvalid, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
			return fmt.Errorf("%w: %s: %w", queue.ErrQueueNotFound, op, err)
		case "InvalidClientTokenId", "UnrecognizedClientException", "MissingAuthenticationToken":
			return fmt.Errorf("%w: %s: %w", queue.ErrAuthenticationMissing, op, err)
		}
		return fmt.Errorf("%w: %s (%s): %w", queue.ErrBackendUnavailable, op, apiErr.ErrorCode(), err)
	}

	return fmt.Errorf("%w: %s: %w", queue.ErrBackendUnavailable, op, err)
}

// ListQueues returns every queue url whose name starts with prefix.
func (q *SQSMessageQueue) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	paginator := sqs.NewListQueuesPaginator(q.client, &sqs.ListQueuesInput{
		QueueNamePrefix: aws.String(prefix),
		MaxResults:      aws.Int32(1000),
	})

	var urls []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("list queues", err)
		}
		urls = append(urls, page.QueueUrls...)
	}

	return urls, nil
}

// CreateQueue creates the queue, or returns the url of the existing queue
// when it was already created with different attributes.
func (q *SQSMessageQueue) CreateQueue(ctx context.Context, name string, attributes types.QueueAttributes) (string, error) {
	attrs := map[string]string{}
	if attributes.VisibilityTimeout != nil {
		attrs[string(sqstypes.QueueAttributeNameVisibilityTimeout)] = strconv.Itoa(*attributes.VisibilityTimeout)
	}
	// The FifoQueue attribute must not be sent for standard queues.
	if attributes.Fifo {
		attrs[string(sqstypes.QueueAttributeNameFifoQueue)] = "true"
	}

	resp, err := q.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attrs,
	})

	if err != nil {
		var exists *sqstypes.QueueNameExists
		if errors.As(err, &exists) {
			return q.GetQueueURL(ctx, name)
		}
		return "", classify("create queue", err)
	}

	return aws.ToString(resp.QueueUrl), nil
}

// GetQueueURL retrieves the URL of the SQS queue by name.
func (q *SQSMessageQueue) GetQueueURL(ctx context.Context, name string) (string, error) {
	input := &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	}
	if q.config.AccountID != "" {
		input.QueueOwnerAWSAccountId = aws.String(q.config.AccountID)
	}

	resp, err := q.client.GetQueueUrl(ctx, input)
	if err != nil {
		return "", classify("get queue url", err)
	}

	return aws.ToString(resp.QueueUrl), nil
}

// Receive fetches up to MaxNumberOfMessages messages, long-polling for
// WaitTimeSeconds when it is greater than zero.
func (q *SQSMessageQueue) Receive(ctx context.Context, url string, options types.ReceiveOptions) ([]types.Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   int32(utils.IntOrDefault(options.MaxNumberOfMessages, 1)),
		WaitTimeSeconds:       int32(options.WaitTimeSeconds),
		MessageAttributeNames: options.MessageAttributeNames,
		AttributeNames: utils.Map(options.AttributeNames, func(name string) sqstypes.QueueAttributeName {
			return sqstypes.QueueAttributeName(name)
		}),
	}

	resp, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, classify("receive message", err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	now := time.Now()
	messages := make([]types.Message, len(resp.Messages))
	for i, message := range resp.Messages {
		approximateReceiveCount := 0
		if countStr, ok := message.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if count, err := strconv.Atoi(countStr); err == nil {
				approximateReceiveCount = count
			}
		}

		messages[i] = types.Message{
			MessageId:               aws.ToString(message.MessageId),
			ReceiptHandle:           aws.ToString(message.ReceiptHandle),
			Body:                    aws.ToString(message.Body),
			MessageAttributes:       fromMessageAttributes(message.MessageAttributes),
			Attributes:              message.Attributes,
			ReceivedAt:              now,
			ApproximateReceiveCount: approximateReceiveCount,
		}
	}

	return messages, nil
}

// Delete deletes a message using the receipt handle of its delivery.
func (q *SQSMessageQueue) Delete(ctx context.Context, url string, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return classify("delete message", err)
	}
	return nil
}

// Send sends a message to the queue at url.
func (q *SQSMessageQueue) Send(ctx context.Context, url string, body string, options types.EnqueueOptions) (types.SendResult, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(body),
		DelaySeconds:      int32(options.DelaySeconds),
		MessageAttributes: toMessageAttributes(options.Attributes),
	}

	if options.MessageGroupId != "" {
		input.MessageGroupId = aws.String(options.MessageGroupId)
	}

	if options.DeduplicationId != "" {
		input.MessageDeduplicationId = aws.String(options.DeduplicationId)
	}

	resp, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return types.SendResult{}, classify("send message", err)
	}

	return types.SendResult{
		MessageId:      aws.ToString(resp.MessageId),
		SequenceNumber: aws.ToString(resp.SequenceNumber),
	}, nil
}

func fromMessageAttributes(in map[string]sqstypes.MessageAttributeValue) map[string]types.AttributeValue {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = types.AttributeValue{
			DataType:    aws.ToString(v.DataType),
			StringValue: aws.ToString(v.StringValue),
			BinaryValue: v.BinaryValue,
		}
	}
	return out
}

func toMessageAttributes(in map[string]types.AttributeValue) map[string]sqstypes.MessageAttributeValue {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]sqstypes.MessageAttributeValue, len(in))
	for k, v := range in {
		attr := sqstypes.MessageAttributeValue{
			DataType:    aws.String(utils.StringOrDefault(v.DataType, "String")),
			BinaryValue: v.BinaryValue,
		}
		if v.StringValue != "" {
			attr.StringValue = aws.String(v.StringValue)
		}
		out[k] = attr
	}
	return out
}
