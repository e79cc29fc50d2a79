package blobcast

import (
	"context"
	"sync"
)

type stubQueue struct {
	mu       sync.Mutex
	messages []*Message
	err      error
}

func (q *stubQueue) Publish(_ context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *stubQueue) Messages() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Message(nil), q.messages...)
}

type trackedEvent struct {
	Name  string
	Props map[string]string
}

type trackedMetric struct {
	Name  string
	Value float64
	Dims  map[string]string
}

type stubTelemetry struct {
	mu      sync.Mutex
	events  []trackedEvent
	metrics []trackedMetric
}

func (t *stubTelemetry) TrackEvent(_ context.Context, name string, props map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, trackedEvent{Name: name, Props: props})
}

func (t *stubTelemetry) TrackMetric(_ context.Context, name string, value float64, dims map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = append(t.metrics, trackedMetric{Name: name, Value: value, Dims: dims})
}

func (t *stubTelemetry) Events() []trackedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]trackedEvent(nil), t.events...)
}

func (t *stubTelemetry) Metrics() []trackedMetric {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]trackedMetric(nil), t.metrics...)
}

type stubJournal struct {
	mu    sync.Mutex
	items []*DeliveryItem
	err   error
}

func (j *stubJournal) RecordDelivery(_ context.Context, item *DeliveryItem) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.items = append(j.items, item)
	return nil
}

func (j *stubJournal) FindAllDeliveries(_ context.Context) (<-chan []*DeliveryItem, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ch := make(chan []*DeliveryItem, 1)
	ch <- append([]*DeliveryItem(nil), j.items...)
	close(ch)
	return ch, nil
}

func (j *stubJournal) Items() []*DeliveryItem {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*DeliveryItem(nil), j.items...)
}
