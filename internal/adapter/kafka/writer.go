// Package kafka publishes showcase session events to a Kafka topic so
// downstream consumers can follow presentation activity.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/helioviz/solar-layer-engine/internal/domain"
	"github.com/helioviz/solar-layer-engine/internal/showcase"
)

// Event is one showcase session event on the wire.
type Event struct {
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"` // "step_changed" or "completed"
	StepIndex int            `json:"stepIndex,omitempty"`
	Layer     domain.LayerID `json:"layer,omitempty"`
	DayOfYear int            `json:"dayOfYear,omitempty"`
	At        time.Time      `json:"at"`
}

// EventWriter publishes session events. It implements showcase.Observer;
// progress ticks are deliberately not published, they are too chatty for a
// broker.
type EventWriter struct {
	writer    *kafkago.Writer
	sessionID string
	logger    *slog.Logger
}

// NewEventWriter creates a Kafka producer for the session event topic. Each
// EventWriter represents one session and stamps every event with a fresh
// session id.
func NewEventWriter(brokers []string, topic string, logger *slog.Logger) *EventWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	return &EventWriter{
		writer:    w,
		sessionID: uuid.NewString(),
		logger:    logger,
	}
}

// StepChanged publishes a step_changed event.
func (w *EventWriter) StepChanged(index int, step showcase.Step) {
	w.publish(Event{
		SessionID: w.sessionID,
		Type:      "step_changed",
		StepIndex: index,
		Layer:     step.Layer,
		DayOfYear: step.DayOfYear,
		At:        time.Now().UTC(),
	})
}

// ProgressUpdated is a no-op; progress stays local.
func (w *EventWriter) ProgressUpdated(_, _ float64) {}

// Completed publishes a completed event.
func (w *EventWriter) Completed() {
	w.publish(Event{
		SessionID: w.sessionID,
		Type:      "completed",
		At:        time.Now().UTC(),
	})
}

// publish is best effort: a broker outage must never stall or fail the
// showcase, so errors are logged and dropped.
func (w *EventWriter) publish(event Event) {
	msg, err := serializeToMessage(event)
	if err != nil {
		w.logger.Warn("serialize session event", "error", err)
		return
	}
	if err := w.writer.WriteMessages(context.Background(), msg); err != nil {
		w.logger.Warn("publish session event", "type", event.Type, "error", err)
	}
}

// serializeToMessage marshals a session event into a Kafka message keyed by
// session id, so one session's events land on one partition in order.
func serializeToMessage(event Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(event.SessionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

// Close flushes and closes the producer.
func (w *EventWriter) Close() error {
	return w.writer.Close()
}
