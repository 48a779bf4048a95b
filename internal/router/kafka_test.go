package router

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/sekia-ai/mailcmd/internal/command"
	"github.com/sekia-ai/mailcmd/internal/registry"
)

type fakeWriter struct {
	topic  string
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

func TestKafkaHandler_WritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	newWriter := func(_ KafkaConfig, topic string) messageWriter {
		w.topic = topic
		return w
	}
	h := newKafkaHandler(KafkaConfig{Brokers: []string{"localhost:9092"}}, newWriter, testLogger())

	svc := registry.Service{Action: "messwert", Spec: registry.KafkaSpec{Topic: "home.readings"}}
	if err := h.Handle(context.Background(), svc, command.Params{"raum": "bad", "note": "a<b & c"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if w.topic != "home.readings" {
		t.Errorf("topic = %q, want home.readings", w.topic)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "messwert" || string(w.msgs[0].Value) != `{"note":"a<b & c","raum":"bad"}` {
		t.Errorf("message = %s/%s", w.msgs[0].Key, w.msgs[0].Value)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestKafkaHandler_Errors(t *testing.T) {
	svc := registry.Service{Action: "messwert", Spec: registry.KafkaSpec{Topic: "t"}}

	h := newKafkaHandler(KafkaConfig{}, nil, testLogger())
	if err := h.Handle(context.Background(), svc, command.Params{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Handle(no brokers) error = %v, want ErrNotConfigured", err)
	}

	failing := &fakeWriter{err: errors.New("leader not available")}
	h = newKafkaHandler(KafkaConfig{Brokers: []string{"b:9092"}}, func(KafkaConfig, string) messageWriter { return failing }, testLogger())
	if err := h.Handle(context.Background(), svc, command.Params{}); err == nil {
		t.Error("expected write error")
	}
	if !failing.closed {
		t.Error("writer not closed after failure")
	}
}
