package types

import "time"

// AttributeValue is a typed message attribute (String, Number or Binary data types).
type AttributeValue struct {
	DataType    string `json:"data_type"`
	StringValue string `json:"string_value,omitempty"`
	BinaryValue []byte `json:"binary_value,omitempty"`
}

type EnqueueOptions struct {
	DelaySeconds    int
	MessageGroupId  string
	DeduplicationId string
	Attributes      map[string]AttributeValue
}

type ReceiveOptions struct {
	MaxNumberOfMessages   int
	WaitTimeSeconds       int
	AttributeNames        []string
	MessageAttributeNames []string
}

type QueueAttributes struct {
	// VisibilityTimeout in seconds. Nil leaves the backend default, zero
	// makes received messages visible again immediately.
	VisibilityTimeout *int
	Fifo              bool
}

// Message is a single delivery. ReceiptHandle is only valid for this
// delivery and expires with the visibility timeout.
type Message struct {
	MessageId               string
	ReceiptHandle           string
	Body                    string
	MessageAttributes       map[string]AttributeValue
	Attributes              map[string]string
	ReceivedAt              time.Time
	ApproximateReceiveCount int
}

type SendResult struct {
	MessageId      string
	SequenceNumber string
}
