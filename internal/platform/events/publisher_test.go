package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(context.Background(), Event{Type: TypeAdmitted})
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEvent_JSON(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	b, err := json.Marshal(Event{
		Type:      TypeServed,
		PatientID: "4c7d3f36-5b6f-4a56-9d7a-0f3c2a1b9e10",
		RiskLevel: "Low",
		At:        at,
		Data:      map[string]interface{}{"waited_minutes": 12.5},
	})
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "patient.served" || got["risk_level"] != "Low" {
		t.Errorf("unexpected encoding %s", b)
	}
	if got["at"] != "2026-03-02T09:30:00Z" {
		t.Errorf("unexpected timestamp %v", got["at"])
	}
}

func TestEvent_JSONOmitsEmptyFields(t *testing.T) {
	b, err := json.Marshal(Event{Type: TypeCleared})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"patient_id", "risk_level", "data"} {
		if _, ok := got[key]; ok {
			t.Errorf("expected %s to be omitted from %s", key, b)
		}
	}
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter("kafka-1:9092,kafka-2:9092", "triage.events", zerolog.Nop())
	defer w.Close()

	if w.Topic != "triage.events" {
		t.Errorf("expected topic triage.events, got %s", w.Topic)
	}
	if !w.Async {
		t.Error("expected an async writer")
	}
	if w.RequiredAcks != kafka.RequireOne {
		t.Errorf("expected RequireOne acks, got %v", w.RequiredAcks)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer keyed by patient, got %T", w.Balancer)
	}
	if w.Addr == nil {
		t.Error("expected broker address to be set")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zerolog.Nop())
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	p.Publish(context.Background(), Event{
		Type:      TypeAdmitted,
		PatientID: "4c7d3f36-5b6f-4a56-9d7a-0f3c2a1b9e10",
		RiskLevel: "High",
		At:        at,
	})

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "4c7d3f36-5b6f-4a56-9d7a-0f3c2a1b9e10" {
		t.Errorf("expected message keyed by patient id, got %q", m.Key)
	}
	if !m.Time.Equal(at) {
		t.Errorf("expected message time %s, got %s", at, m.Time)
	}
	var got Event
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatalf("message body is not an event: %v", err)
	}
	if got.Type != TypeAdmitted || got.RiskLevel != "High" || !got.At.Equal(at) {
		t.Errorf("unexpected event %+v", got)
	}
}

func TestKafkaPublisher_DefaultsTimestamp(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w, zerolog.Nop())

	before := time.Now().UTC()
	p.Publish(context.Background(), Event{Type: TypeCleared})
	after := time.Now().UTC()

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	m := w.msgs[0]
	if m.Time.Before(before) || m.Time.After(after) {
		t.Errorf("expected time between %s and %s, got %s", before, after, m.Time)
	}
	if len(m.Key) != 0 {
		t.Errorf("expected empty key for queue-wide event, got %q", m.Key)
	}
	var got Event
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.At.IsZero() {
		t.Error("expected at to be filled in the body")
	}
}

func TestKafkaPublisher_WriteErrorIsLogged(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	var buf bytes.Buffer
	p := NewKafkaPublisher(w, zerolog.New(&buf))

	p.Publish(context.Background(), Event{Type: TypeServed})

	if !strings.Contains(buf.String(), "publish event") || !strings.Contains(buf.String(), "broker unavailable") {
		t.Errorf("expected write failure in log, got %q", buf.String())
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	if err := NewKafkaPublisher(w, zerolog.Nop()).Close(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("expected writer to be closed")
	}
}
