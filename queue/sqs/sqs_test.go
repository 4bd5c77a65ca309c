package sqs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testURL = "https://sqs.af-south-1.amazonaws.com/123456789012/orders"

type MockSQSClient struct {
	mock.Mock
}

func (m *MockSQSClient) ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ListQueuesOutput), args.Error(1)
}

func (m *MockSQSClient) CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.CreateQueueOutput), args.Error(1)
}

func (m *MockSQSClient) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.GetQueueUrlOutput), args.Error(1)
}

func (m *MockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.ReceiveMessageOutput), args.Error(1)
}

func (m *MockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.DeleteMessageOutput), args.Error(1)
}

func (m *MockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func TestListQueuesPaginates(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{})

	client.On("ListQueues", mock.Anything, mock.MatchedBy(func(in *sqs.ListQueuesInput) bool {
		return aws.ToString(in.QueueNamePrefix) == "orders" && in.NextToken == nil
	})).Return(&sqs.ListQueuesOutput{QueueUrls: []string{testURL}, NextToken: aws.String("page-2")}, nil).Once()
	client.On("ListQueues", mock.Anything, mock.MatchedBy(func(in *sqs.ListQueuesInput) bool {
		return aws.ToString(in.NextToken) == "page-2"
	})).Return(&sqs.ListQueuesOutput{QueueUrls: []string{testURL + "-errors"}}, nil).Once()

	urls, err := q.ListQueues(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{testURL, testURL + "-errors"}, urls)
	client.AssertExpectations(t)
}

func TestCreateQueueAttributes(t *testing.T) {
	tests := []struct {
		name       string
		queue      string
		attributes types.QueueAttributes
		expected   map[string]string
	}{
		{
			name:       "standard queue never sets FifoQueue",
			queue:      "orders",
			attributes: types.QueueAttributes{VisibilityTimeout: aws.Int(600)},
			expected:   map[string]string{"VisibilityTimeout": "600"},
		},
		{
			name:       "zero visibility timeout is sent",
			queue:      "orders",
			attributes: types.QueueAttributes{VisibilityTimeout: aws.Int(0)},
			expected:   map[string]string{"VisibilityTimeout": "0"},
		},
		{
			name:       "unset visibility timeout is left to sqs",
			queue:      "orders",
			attributes: types.QueueAttributes{},
			expected:   map[string]string{},
		},
		{
			name:       "fifo queue",
			queue:      "orders.fifo",
			attributes: types.QueueAttributes{VisibilityTimeout: aws.Int(600), Fifo: true},
			expected:   map[string]string{"VisibilityTimeout": "600", "FifoQueue": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSQSClient)
			q := NewFromAPI(client, SQSConfig{})

			client.On("CreateQueue", mock.Anything, &sqs.CreateQueueInput{
				QueueName:  aws.String(tt.queue),
				Attributes: tt.expected,
			}).Return(&sqs.CreateQueueOutput{QueueUrl: aws.String(testURL)}, nil).Once()

			url, err := q.CreateQueue(context.Background(), tt.queue, tt.attributes)
			require.NoError(t, err)
			assert.Equal(t, testURL, url)
			client.AssertExpectations(t)
		})
	}
}

func TestCreateQueueAlreadyExistsIsNotAnError(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{AccountID: "123456789012"})

	client.On("CreateQueue", mock.Anything, mock.Anything).
		Return(nil, &sqstypes.QueueNameExists{Message: aws.String("exists with different attributes")}).Once()
	client.On("GetQueueUrl", mock.Anything, &sqs.GetQueueUrlInput{
		QueueName:              aws.String("orders"),
		QueueOwnerAWSAccountId: aws.String("123456789012"),
	}).Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String(testURL)}, nil).Once()

	url, err := q.CreateQueue(context.Background(), "orders", types.QueueAttributes{VisibilityTimeout: aws.Int(30)})
	require.NoError(t, err)
	assert.Equal(t, testURL, url)
	client.AssertExpectations(t)
}

func TestReceiveMapsMessages(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{})

	client.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
		return aws.ToString(in.QueueUrl) == testURL &&
			in.MaxNumberOfMessages == 10 &&
			in.WaitTimeSeconds == 20 &&
			len(in.MessageAttributeNames) == 1 && in.MessageAttributeNames[0] == "All" &&
			len(in.AttributeNames) == 1 && in.AttributeNames[0] == sqstypes.QueueAttributeNameAll
	})).Return(&sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{
		{
			MessageId:     aws.String("m-1"),
			ReceiptHandle: aws.String("r-1"),
			Body:          aws.String(`{"id":1}`),
			Attributes:    map[string]string{"ApproximateReceiveCount": "3"},
			MessageAttributes: map[string]sqstypes.MessageAttributeValue{
				"tenant": {DataType: aws.String("String"), StringValue: aws.String("acme")},
			},
		},
	}}, nil).Once()

	messages, err := q.Receive(context.Background(), testURL, types.ReceiveOptions{
		MaxNumberOfMessages:   10,
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
		AttributeNames:        []string{"All"},
	})
	require.NoError(t, err)
	require.Len(t, messages, 1)

	m := messages[0]
	assert.Equal(t, "m-1", m.MessageId)
	assert.Equal(t, "r-1", m.ReceiptHandle)
	assert.Equal(t, `{"id":1}`, m.Body)
	assert.Equal(t, 3, m.ApproximateReceiveCount)
	assert.Equal(t, types.AttributeValue{DataType: "String", StringValue: "acme"}, m.MessageAttributes["tenant"])
	client.AssertExpectations(t)
}

func TestReceiveEmpty(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{})

	client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(&sqs.ReceiveMessageOutput{}, nil).Once()

	messages, err := q.Receive(context.Background(), testURL, types.ReceiveOptions{})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"missing queue", &sqstypes.QueueDoesNotExist{}, queue.ErrQueueNotFound},
		{"legacy missing queue code", &smithy.GenericAPIError{Code: "AWS.SimpleQueueService.NonExistentQueue"}, queue.ErrQueueNotFound},
		{"expired receipt", &sqstypes.ReceiptHandleIsInvalid{}, queue.ErrReceiptInvalid},
		{"bad credentials", &smithy.GenericAPIError{Code: "InvalidClientTokenId"}, queue.ErrAuthenticationMissing},
		{"throttled", &smithy.GenericAPIError{Code: "RequestThrottled"}, queue.ErrBackendUnavailable},
		{"network", errors.New("dial tcp: connection refused"), queue.ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSQSClient)
			q := NewFromAPI(client, SQSConfig{})
			client.On("DeleteMessage", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			err := q.Delete(context.Background(), testURL, "r-1")
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSendOptions(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{})

	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.MessageBody) == `{"a":1}` &&
			in.DelaySeconds == 5 &&
			aws.ToString(in.MessageGroupId) == "g-1" &&
			aws.ToString(in.MessageDeduplicationId) == "d-1" &&
			aws.ToString(in.MessageAttributes["tenant"].StringValue) == "acme"
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-9"), SequenceNumber: aws.String("42")}, nil).Once()

	result, err := q.Send(context.Background(), testURL+".fifo", `{"a":1}`, types.EnqueueOptions{
		DelaySeconds:    5,
		MessageGroupId:  "g-1",
		DeduplicationId: "d-1",
		Attributes:      map[string]types.AttributeValue{"tenant": {StringValue: "acme"}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.SendResult{MessageId: "m-9", SequenceNumber: "42"}, result)
	client.AssertExpectations(t)
}

func TestSendStandardQueueOmitsFifoFields(t *testing.T) {
	client := new(MockSQSClient)
	q := NewFromAPI(client, SQSConfig{})

	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return in.MessageGroupId == nil && in.MessageDeduplicationId == nil && in.MessageAttributes == nil
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil).Once()

	_, err := q.Send(context.Background(), testURL, "{}", types.EnqueueOptions{})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEndpointFor(t *testing.T) {
	tests := []struct {
		name     string
		cfg      SQSConfig
		expected string
	}{
		{"no endpoint", SQSConfig{Region: "af-south-1"}, ""},
		{"full url", SQSConfig{Endpoint: "http://localhost:9324"}, "http://localhost:9324"},
		{"elasticmq host", SQSConfig{Region: ElasticMQRegion, Endpoint: "localhost:9324"}, "http://localhost:9324"},
		{"aws host", SQSConfig{Region: "eu-west-1", Endpoint: "sqs.eu-west-1.amazonaws.com"}, "https://sqs.eu-west-1.amazonaws.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, endpointFor(tt.cfg))
		})
	}
}
