package blobcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Songmu/flextime"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/shogo82148/go-retry"
)

// QueueOption contains configuration for outbound message delivery.
//
// Supported queue types:
//   - "sqs": Sends messages to Amazon SQS (default, recommended for production)
//   - "eventbridge": Puts messages on an Amazon EventBridge event bus
//   - "file": Appends messages to a local JSON file (suitable for development)
type QueueOption struct {
	Type        string `help:"queue type" default:"sqs" enum:"sqs,eventbridge,file" env:"BLOBCAST_QUEUE_TYPE"`
	QueueURL    string `help:"SQS queue URL (sqs type only)" env:"BLOBCAST_QUEUE_URL"`
	EventBus    string `help:"event bus name (eventbridge type only)" default:"default" env:"BLOBCAST_EVENT_BUS"`
	MessageFile string `help:"message file path (file type only)" default:"blobcast.json" env:"BLOBCAST_MESSAGE_FILE"`
}

// Message is one outbound queue message. ID preserves the inbound delivery
// identity end-to-end so downstream consumers can deduplicate redeliveries.
type Message struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Body       json.RawMessage   `json:"body"`
	Properties map[string]string `json:"properties"`
}

// Queue defines the interface for durably delivering outbound messages.
// Publish must not return nil until the transport has acknowledged the
// message. Delivery is at-least-once; duplicates on redelivery are expected.
type Queue interface {
	Publish(context.Context, *Message) error
}

// NewQueue creates a Queue implementation based on the configuration type.
func NewQueue(ctx context.Context, cfg QueueOption) (Queue, error) {
	switch cfg.Type {
	case "sqs":
		return NewSQSQueue(ctx, cfg)
	case "eventbridge":
		return NewEventBridgeQueue(ctx, cfg)
	case "file":
		return NewFileQueue(ctx, cfg)
	}
	return nil, errors.New("unknown queue type")
}

// SQSClient is the interface for Amazon SQS operations.
// This is satisfied by *sqs.Client.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue implements Queue using Amazon SQS.
//
// The whole message is sent as the JSON body; id and label additionally ride
// as message attributes. FIFO queues get the message id as the deduplication
// key. Transient send failures are retried with backoff before the failure is
// reported to the caller.
type SQSQueue struct {
	client      SQSClient
	queueURL    string
	retryPolicy retry.Policy
}

// NewSQSQueue creates a new SQS-based queue publisher.
func NewSQSQueue(_ context.Context, cfg QueueOption) (*SQSQueue, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("queue_url is required, if type is sqs")
	}
	awsCfg, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	q := &SQSQueue{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		retryPolicy: retry.Policy{
			MinDelay: 200 * time.Millisecond,
			MaxDelay: 2 * time.Second,
			MaxCount: 5,
			Jitter:   100 * time.Millisecond,
		},
	}
	return q, nil
}

func (q *SQSQueue) Publish(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.ID),
			},
			"label": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Label),
			},
		},
	}
	if strings.HasSuffix(q.queueURL, ".fifo") {
		input.MessageDeduplicationId = aws.String(msg.ID)
		input.MessageGroupId = aws.String(msg.Label)
	}
	retrier := q.retryPolicy.Start(ctx)
	var lastErr error
	for retrier.Continue() {
		output, err := q.client.SendMessage(ctx, input)
		if err != nil {
			slog.WarnContext(ctx, "SendMessage failed", "queue_url", q.queueURL, "message_id", msg.ID, "error", err)
			lastErr = err
			continue
		}
		slog.InfoContext(ctx, "sent message", "queue_url", q.queueURL, "message_id", msg.ID, "sqs_message_id", aws.ToString(output.MessageId))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("send message: %w", lastErr)
}

// EventBridgeClient is the interface for Amazon EventBridge operations.
// This is satisfied by *eventbridge.Client.
type EventBridgeClient interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeQueue implements Queue using an Amazon EventBridge event bus.
// The message label becomes the detail-type and the full message the detail.
type EventBridgeQueue struct {
	client   EventBridgeClient
	eventBus string
}

// NewEventBridgeQueue creates a new EventBridge-based queue publisher.
func NewEventBridgeQueue(_ context.Context, cfg QueueOption) (*EventBridgeQueue, error) {
	awsCfg, err := loadAWSConfig()
	if err != nil {
		return nil, err
	}
	q := &EventBridgeQueue{
		client:   eventbridge.NewFromConfig(awsCfg),
		eventBus: cfg.EventBus,
	}
	return q, nil
}

func (q *EventBridgeQueue) Publish(ctx context.Context, msg *Message) error {
	detail, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	source := "oss.blobcast"
	if topic := msg.Properties["topic"]; topic != "" {
		source = fmt.Sprintf("oss.blobcast/%s", topic)
	}
	resources := []string{}
	if url := msg.Properties["url"]; url != "" {
		resources = append(resources, url)
	}
	entry := eventbridgetypes.PutEventsRequestEntry{
		EventBusName: aws.String(q.eventBus),
		Source:       aws.String(source),
		DetailType:   aws.String(msg.Label),
		Resources:    resources,
		Time:         aws.Time(flextime.Now()),
		Detail:       aws.String(string(detail)),
	}
	output, err := q.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		slog.ErrorContext(ctx, "PutEvents failed", "event_bus", q.eventBus, "message_id", msg.ID, "error", err)
		return err
	}
	for _, e := range output.Entries {
		if e.ErrorCode != nil {
			slog.ErrorContext(ctx, "put event error", "event_bus", q.eventBus, "error_code", aws.ToString(e.ErrorCode), "error_message", aws.ToString(e.ErrorMessage))
			return fmt.Errorf("put events failed error_code=%s, error_message=%s", aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
		}
		if e.EventId != nil {
			slog.InfoContext(ctx, "put event", "event_bus", q.eventBus, "event_id", aws.ToString(e.EventId), "message_id", msg.ID)
		}
	}
	return nil
}

// FileQueue implements Queue by writing messages to a local JSON file.
//
// This is suitable for development and debugging. Messages are appended to
// the file as newline-delimited JSON (NDJSON format).
type FileQueue struct {
	messageFile string
}

// NewFileQueue creates a new file-based queue writer.
func NewFileQueue(_ context.Context, cfg QueueOption) (*FileQueue, error) {
	q := &FileQueue{
		messageFile: cfg.MessageFile,
	}
	return q, nil
}

func (q *FileQueue) Publish(ctx context.Context, msg *Message) error {
	fp, err := os.OpenFile(q.messageFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		slog.DebugContext(ctx, "can not open message file", "message_file", q.messageFile, "error", err)
		return err
	}
	defer fp.Close()
	slog.DebugContext(ctx, "output message", "message_file", q.messageFile, "message_id", msg.ID, "label", msg.Label)
	encoder := json.NewEncoder(fp)
	return encoder.Encode(msg)
}
