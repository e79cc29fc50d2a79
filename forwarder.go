package blobcast

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Songmu/flextime"
	"github.com/aratasato/blobcast/pkg/blobevent"
)

// Forwarder transforms one inbound notification into zero or one outbound
// queue message plus telemetry. It holds no per-invocation state; concurrent
// Forward calls for different notifications are safe.
type Forwarder struct {
	queue     Queue
	telemetry Telemetry
	journal   Journal
	rules     *RuleSet
}

// NewForwarder creates a Forwarder publishing to queue and emitting telemetry.
// journal and rules are optional; pass nil to disable them.
func NewForwarder(queue Queue, telemetry Telemetry, journal Journal, rules *RuleSet) *Forwarder {
	return &Forwarder{
		queue:     queue,
		telemetry: telemetry,
		journal:   journal,
		rules:     rules,
	}
}

// Forward handles a single notification: validate, log receipt, gate on the
// payload shape, dispatch on the event type, decode and enrich, publish,
// emit telemetry. Unrecognized event types and non-object payloads are
// ignored without error. On failure nothing beyond the receipt log (and, for
// publish failures, the processing log) has been observed; the caller should
// apply its own redelivery policy.
func (f *Forwarder) Forward(ctx context.Context, n *blobevent.Notification) error {
	if n == nil {
		err := &InvalidNotificationError{Reason: "notification is absent"}
		slog.ErrorContext(ctx, "invalid notification", "error", err)
		return err
	}
	if strings.TrimSpace(n.EventType) == "" {
		err := &InvalidNotificationError{Reason: "eventType is blank"}
		slog.ErrorContext(ctx, "invalid notification", "id", n.ID, "error", err)
		return err
	}
	slog.InfoContext(ctx, "received notification",
		"id", n.ID,
		"event_type", n.EventType,
		"event_time", n.EventTime.Format(time.RFC3339Nano),
		"subject", coalesce(n.Subject, "-"),
		"topic", coalesce(n.Topic, "-"),
	)
	if !blobevent.IsObject(n.Data) {
		slog.DebugContext(ctx, "data is not a JSON object, nothing to forward", "id", n.ID, "event_type", n.EventType)
		return nil
	}
	switch blobevent.Classify(n.EventType) {
	case blobevent.KindCreated:
		return f.forwardCreated(ctx, n)
	case blobevent.KindDeleted:
		return f.forwardDeleted(ctx, n)
	default:
		slog.DebugContext(ctx, "unrecognized event type, nothing to forward", "id", n.ID, "event_type", n.EventType)
		return nil
	}
}

func (f *Forwarder) forwardCreated(ctx context.Context, n *blobevent.Notification) error {
	data, err := blobevent.DecodeCreated(n.Data)
	if err != nil {
		derr := &PayloadDecodeError{EventType: n.EventType, Err: err}
		slog.ErrorContext(ctx, "payload decode failed", "id", n.ID, "event_type", n.EventType, "error", derr)
		return derr
	}
	props := envelopeProperties(n)
	props["api"] = data.API
	props["blobType"] = data.BlobType
	props["clientRequestId"] = data.ClientRequestID
	props["contentLength"] = strconv.FormatInt(data.ContentLength, 10)
	props["contentType"] = data.ContentType
	props["eTag"] = data.ETag
	props["requestId"] = data.RequestID
	props["sequencer"] = data.Sequencer
	props["url"] = data.URL
	if err := attachDiagnostics(props, data.StorageDiagnostics); err != nil {
		derr := &PayloadDecodeError{EventType: n.EventType, Err: err}
		slog.ErrorContext(ctx, "storage diagnostics decode failed", "id", n.ID, "event_type", n.EventType, "error", derr)
		return derr
	}
	if skip, err := f.skipByRule(ctx, &RuleTarget{
		ID:            n.ID,
		EventType:     n.EventType,
		Subject:       n.Subject,
		Topic:         n.Topic,
		URL:           data.URL,
		API:           data.API,
		BlobType:      data.BlobType,
		ContentType:   data.ContentType,
		ContentLength: data.ContentLength,
	}); err != nil {
		return err
	} else if skip {
		return nil
	}
	slog.InfoContext(ctx, "processing blob created",
		"id", n.ID,
		"api", data.API,
		"blob_type", data.BlobType,
		"client_request_id", coalesce(data.ClientRequestID, "-"),
		"content_length", data.ContentLength,
		"content_type", data.ContentType,
		"etag", data.ETag,
		"request_id", data.RequestID,
		"sequencer", data.Sequencer,
		"url", data.URL,
	)
	if err := f.publish(ctx, n, LabelBlobCreated, props); err != nil {
		return err
	}
	f.telemetry.TrackEvent(ctx, fmt.Sprintf("%s created", data.URL), map[string]string{
		"correlationId": CorrelationID(ctx),
		"operation":     LabelBlobCreated,
	})
	f.telemetry.TrackMetric(ctx, MetricBlobCreated, 1, map[string]string{
		"BlobType":    data.BlobType,
		"ContentType": data.ContentType,
	})
	return nil
}

func (f *Forwarder) forwardDeleted(ctx context.Context, n *blobevent.Notification) error {
	data, err := blobevent.DecodeDeleted(n.Data)
	if err != nil {
		derr := &PayloadDecodeError{EventType: n.EventType, Err: err}
		slog.ErrorContext(ctx, "payload decode failed", "id", n.ID, "event_type", n.EventType, "error", derr)
		return derr
	}
	props := envelopeProperties(n)
	props["api"] = data.API
	props["blobType"] = data.BlobType
	props["clientRequestId"] = data.ClientRequestID
	props["contentType"] = data.ContentType
	props["requestId"] = data.RequestID
	props["sequencer"] = data.Sequencer
	props["url"] = data.URL
	if err := attachDiagnostics(props, data.StorageDiagnostics); err != nil {
		derr := &PayloadDecodeError{EventType: n.EventType, Err: err}
		slog.ErrorContext(ctx, "storage diagnostics decode failed", "id", n.ID, "event_type", n.EventType, "error", derr)
		return derr
	}
	if skip, err := f.skipByRule(ctx, &RuleTarget{
		ID:          n.ID,
		EventType:   n.EventType,
		Subject:     n.Subject,
		Topic:       n.Topic,
		URL:         data.URL,
		API:         data.API,
		BlobType:    data.BlobType,
		ContentType: data.ContentType,
	}); err != nil {
		return err
	} else if skip {
		return nil
	}
	slog.InfoContext(ctx, "processing blob deleted",
		"id", n.ID,
		"api", data.API,
		"blob_type", data.BlobType,
		"client_request_id", coalesce(data.ClientRequestID, "-"),
		"content_type", coalesce(data.ContentType, "-"),
		"request_id", data.RequestID,
		"sequencer", data.Sequencer,
		"url", data.URL,
	)
	if err := f.publish(ctx, n, LabelBlobDeleted, props); err != nil {
		return err
	}
	f.telemetry.TrackEvent(ctx, fmt.Sprintf("%s deleted", data.URL), map[string]string{
		"correlationId": CorrelationID(ctx),
		"operation":     LabelBlobDeleted,
	})
	f.telemetry.TrackMetric(ctx, MetricBlobDeleted, 1, map[string]string{
		"BlobType":    data.BlobType,
		"ContentType": data.ContentType,
	})
	return nil
}

// publish builds the outbound message and hands it to the queue. The message
// is fully constructed before the single publish call; there is no partial
// publish.
func (f *Forwarder) publish(ctx context.Context, n *blobevent.Notification, label string, props map[string]string) error {
	body, err := blobevent.Compact(n.Data)
	if err != nil {
		derr := &PayloadDecodeError{EventType: n.EventType, Err: err}
		slog.ErrorContext(ctx, "payload compact failed", "id", n.ID, "event_type", n.EventType, "error", derr)
		return derr
	}
	msg := &Message{
		ID:         n.ID,
		Label:      label,
		Body:       body,
		Properties: props,
	}
	if err := f.queue.Publish(ctx, msg); err != nil {
		perr := &PublishError{MessageID: msg.ID, Err: err}
		slog.ErrorContext(ctx, "publish failed", "id", msg.ID, "label", msg.Label, "error", perr)
		return perr
	}
	if f.journal != nil {
		item := &DeliveryItem{
			MessageID:   msg.ID,
			Label:       msg.Label,
			URL:         props["url"],
			DeliveredAt: flextime.Now(),
		}
		if err := f.journal.RecordDelivery(ctx, item); err != nil {
			slog.WarnContext(ctx, "journal record failed", "id", msg.ID, "error", err)
		}
	}
	return nil
}

func (f *Forwarder) skipByRule(ctx context.Context, target *RuleTarget) (bool, error) {
	if f.rules == nil {
		return false, nil
	}
	rule, err := f.rules.Match(target)
	if err != nil {
		slog.ErrorContext(ctx, "rule evaluation failed", "id", target.ID, "error", err)
		return false, fmt.Errorf("rule evaluation: %w", err)
	}
	if rule != nil && rule.Skip {
		slog.InfoContext(ctx, "notification skipped by rule", "id", target.ID, "event_type", target.EventType, "url", target.URL)
		return true, nil
	}
	return false, nil
}

func envelopeProperties(n *blobevent.Notification) map[string]string {
	return map[string]string{
		"id":        n.ID,
		"topic":     n.Topic,
		"eventType": n.EventType,
		"eventTime": n.EventTime.Format(time.RFC3339Nano),
		"subject":   n.Subject,
	}
}

func attachDiagnostics(props map[string]string, diag []byte) error {
	if len(diag) == 0 {
		return nil
	}
	compact, err := blobevent.Compact(diag)
	if err != nil {
		return fmt.Errorf("storageDiagnostics: %w", err)
	}
	props["storageDiagnostics"] = string(compact)
	return nil
}
