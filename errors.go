package blobcast

import (
	"errors"
	"fmt"
)

// InvalidNotificationError indicates a malformed or absent inbound
// notification. Redelivering the same notification cannot succeed.
type InvalidNotificationError struct {
	Reason string
}

func (err *InvalidNotificationError) Error() string {
	return fmt.Sprintf("invalid notification: %s", err.Reason)
}

// PayloadDecodeError indicates the type-specific data payload could not be
// decoded into the expected shape. Redelivery cannot succeed.
type PayloadDecodeError struct {
	EventType string
	Err       error
}

func (err *PayloadDecodeError) Error() string {
	return fmt.Sprintf("payload decode failed event_type=%s: %s", err.EventType, err.Err)
}

func (err *PayloadDecodeError) Unwrap() error {
	return err.Err
}

// PublishError indicates the queue collaborator rejected or failed to
// acknowledge the outbound message. The delivery mechanism may redeliver.
type PublishError struct {
	MessageID string
	Err       error
}

func (err *PublishError) Error() string {
	return fmt.Sprintf("publish failed message_id=%s: %s", err.MessageID, err.Err)
}

func (err *PublishError) Unwrap() error {
	return err.Err
}

// IsRetryable reports whether redelivering the original notification can
// succeed. Only transport failures are retry-safe; validation and decode
// failures are permanent.
func IsRetryable(err error) bool {
	var perr *PublishError
	return errors.As(err, &perr)
}
