package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// mockPublisher records published events.
type mockPublisher struct {
	mu      sync.Mutex
	events  []Event
	err     error
	closed  int
	publish chan struct{}
}

func (m *mockPublisher) Publish(ctx context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.publish != nil {
		m.publish <- struct{}{}
	}
	return m.err
}

func (m *mockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.err
}

func (m *mockPublisher) got() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func TestNew(t *testing.T) {
	ev := New(MemberAdded, "org-1", "actor-1", "user-1", map[string]string{"role": "member"})
	if ev.ID == "" {
		t.Error("ID should be set")
	}
	if ev.Source != Source {
		t.Errorf("Source = %q, want %q", ev.Source, Source)
	}
	if ev.OccurredAt.IsZero() || ev.OccurredAt.Location() != time.UTC {
		t.Errorf("OccurredAt = %v, want current UTC time", ev.OccurredAt)
	}
	if ev.Type != MemberAdded || ev.OrgID != "org-1" || ev.ActorID != "actor-1" || ev.SubjectID != "user-1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestMulti(t *testing.T) {
	a := &mockPublisher{}
	b := &mockPublisher{err: errors.New("sink down")}
	m := Multi{a, nil, b}

	err := m.Publish(context.Background(), New(OrgCreated, "org-1", "u", "", nil))
	if err == nil {
		t.Fatal("Publish should return the failing publisher's error")
	}
	if len(a.got()) != 1 || len(b.got()) != 1 {
		t.Errorf("every publisher should receive the event: a=%d b=%d", len(a.got()), len(b.got()))
	}
	if err := m.Close(); err == nil {
		t.Error("Close should return the failing publisher's error")
	}
	if a.closed != 1 || b.closed != 1 {
		t.Errorf("Close should reach every publisher: a=%d b=%d", a.closed, b.closed)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPublishAsync(t *testing.T) {
	t.Run("nil publisher", func(t *testing.T) {
		PublishAsync(nil, context.Background(), Event{})
	})

	t.Run("delivers after request cancellation", func(t *testing.T) {
		pub := &mockPublisher{publish: make(chan struct{}, 1)}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		PublishAsync(pub, ctx, New(DSOCreated, "org-1", "u", "dso-1", nil))
		select {
		case <-pub.publish:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not published")
		}
		if got := pub.got(); len(got) != 1 || got[0].Type != DSOCreated {
			t.Errorf("published %+v", got)
		}
	})

	t.Run("errors are swallowed", func(t *testing.T) {
		pub := &mockPublisher{err: errors.New("boom"), publish: make(chan struct{}, 1)}
		PublishAsync(pub, context.Background(), New(OrgRenamed, "org-1", "u", "", nil))
		select {
		case <-pub.publish:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not published")
		}
	})
}

// fakeWriter captures Kafka messages.
type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafkaPublisher_Disabled(t *testing.T) {
	if p := NewKafkaPublisher(nil, "topic"); p != nil {
		t.Error("no brokers should disable the publisher")
	}
	if p := NewKafkaPublisher([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should disable the publisher")
	}
	var p *KafkaPublisher
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Errorf("nil Publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "dsodesk-events"}
	ev := New(InvitationRedeemed, "org-1", "user-1", "inv-1", map[string]string{"role": "member"})

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "org-1" {
		t.Errorf("key = %q, want org id", msg.Key)
	}
	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["eventType"] != "invitation_redeemed" || decoded["orgId"] != "org-1" {
		t.Errorf("payload = %v", decoded)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close: err=%v closed=%v", err, w.closed)
	}

	w.err = errors.New("broker down")
	if err := p.Publish(context.Background(), ev); err == nil {
		t.Error("write failure should be returned")
	}
}

// recordCapture stores the last record passed to Emit.
type recordCapture struct {
	rec otellog.Record
	n   int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.n++
}

func TestOTelPublisher_AttributeMapping(t *testing.T) {
	capture := &recordCapture{}
	p := &OTelPublisher{logger: capture}
	ev := New(RoleChanged, "org-1", "actor-1", "user-1", map[string]string{"role": "admin"})

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if capture.n != 1 {
		t.Fatalf("emitted %d records, want 1", capture.n)
	}
	if !capture.rec.Timestamp().Equal(ev.OccurredAt) {
		t.Errorf("timestamp = %v, want %v", capture.rec.Timestamp(), ev.OccurredAt)
	}
	if got := capture.rec.Body().AsString(); got != "role_changed" {
		t.Errorf("body = %q", got)
	}
	attrs := map[string]string{}
	capture.rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event_id":   ev.ID,
		"event_type": "role_changed",
		"org_id":     "org-1",
		"source":     Source,
		"actor_id":   "actor-1",
		"subject_id": "user-1",
		"role":       "admin",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestOTelPublisher_ZeroTimestamp(t *testing.T) {
	capture := &recordCapture{}
	p := &OTelPublisher{logger: capture}
	if err := p.Publish(context.Background(), Event{Type: OrgCreated, OrgID: "org-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if capture.rec.Timestamp().IsZero() {
		t.Error("timestamp should default to now")
	}
}

func TestNewOTelPublisher(t *testing.T) {
	if _, ok := NewOTelPublisher(nil).(Nop); !ok {
		t.Error("nil provider should yield Nop")
	}
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	p := NewOTelPublisher(provider)
	if _, ok := p.(*OTelPublisher); !ok {
		t.Fatalf("NewOTelPublisher = %T, want *OTelPublisher", p)
	}
	if err := p.Publish(context.Background(), New(OrgCreated, "org-1", "u", "", nil)); err != nil {
		t.Errorf("Publish: %v", err)
	}
}
