// Package blobevent provides types for storage blob change notifications
// as delivered by an Event Grid style push subscription.
// These types can be used by downstream consumers to unmarshal forwarded messages.
//
//	var n blobevent.Notification
//	json.Unmarshal(body, &n)
//	fmt.Println(n.EventType)
package blobevent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Recognized event type identifiers. Matching is exact and case-sensitive.
const (
	EventTypeBlobCreated            = "Microsoft.Storage.BlobCreated"
	EventTypeBlobDeleted            = "Microsoft.Storage.BlobDeleted"
	EventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
)

// Notification is one push-delivered record describing a single state change
// on a watched storage resource.
type Notification struct {
	ID              string          `json:"id"`
	Topic           string          `json:"topic"`
	Subject         string          `json:"subject"`
	EventType       string          `json:"eventType"`
	EventTime       time.Time       `json:"eventTime"`
	Data            json.RawMessage `json:"data,omitempty"`
	DataVersion     string          `json:"dataVersion,omitempty"`
	MetadataVersion string          `json:"metadataVersion,omitempty"`
}

// Kind is the classification of a notification's event type.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindCreated
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindDeleted:
		return "deleted"
	default:
		return "unrecognized"
	}
}

// Classify maps an event type identifier to a Kind.
// Unrecognized identifiers are not an error; they classify as KindUnrecognized.
func Classify(eventType string) Kind {
	switch eventType {
	case EventTypeBlobCreated:
		return KindCreated
	case EventTypeBlobDeleted:
		return KindDeleted
	default:
		return KindUnrecognized
	}
}

// CreatedData is the data payload of a BlobCreated notification.
type CreatedData struct {
	API                string          `json:"api"`
	BlobType           string          `json:"blobType"`
	ClientRequestID    string          `json:"clientRequestId"`
	ContentLength      int64           `json:"contentLength"`
	ContentType        string          `json:"contentType"`
	ETag               string          `json:"eTag"`
	RequestID          string          `json:"requestId"`
	Sequencer          string          `json:"sequencer"`
	StorageDiagnostics json.RawMessage `json:"storageDiagnostics,omitempty"`
	URL                string          `json:"url"`
}

// DeletedData is the data payload of a BlobDeleted notification.
type DeletedData struct {
	API                string          `json:"api"`
	BlobType           string          `json:"blobType"`
	ClientRequestID    string          `json:"clientRequestId"`
	ContentType        string          `json:"contentType"`
	RequestID          string          `json:"requestId"`
	Sequencer          string          `json:"sequencer"`
	StorageDiagnostics json.RawMessage `json:"storageDiagnostics,omitempty"`
	URL                string          `json:"url"`
}

// ValidationData is the data payload of a subscription validation handshake event.
type ValidationData struct {
	ValidationCode string `json:"validationCode"`
	ValidationURL  string `json:"validationUrl,omitempty"`
}

// IsObject reports whether data is a JSON object. Notifications whose data is
// a string, number, array or absent carry no blob payload to extract.
func IsObject(data json.RawMessage) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(data)
}

// DecodeCreated decodes a BlobCreated data payload.
func DecodeCreated(data json.RawMessage) (*CreatedData, error) {
	var d CreatedData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode BlobCreated data: %w", err)
	}
	return &d, nil
}

// DecodeDeleted decodes a BlobDeleted data payload.
func DecodeDeleted(data json.RawMessage) (*DeletedData, error) {
	var d DeletedData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode BlobDeleted data: %w", err)
	}
	return &d, nil
}

// Compact re-serializes raw JSON to a single line with insignificant
// whitespace removed. The logical content is unchanged.
func Compact(raw json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact json: %w", err)
	}
	return buf.Bytes(), nil
}
