package sink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/katkad/mongo-observer/oplog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type countingHandler struct {
	inserts int
	updates int
	deletes int
}

func (h *countingHandler) OnInsert(entry *oplog.Entry) error {
	h.inserts++
	return nil
}

func (h *countingHandler) OnUpdate(entry *oplog.Entry) error {
	h.updates++
	return nil
}

func (h *countingHandler) OnDelete(entry *oplog.Entry) error {
	h.deletes++
	return nil
}

func testEntry(t uint32, i uint32, op string) *oplog.Entry {
	term := int64(1)
	hash := int64(42)
	return &oplog.Entry{
		Timestamp: primitive.Timestamp{T: t, I: i},
		Term:      &term,
		Hash:      &hash,
		Version:   2,
		Operation: op,
		Namespace: "mongo.awesome",
		Object:    bson.D{{Key: "name", Value: "Xablau"}, {Key: "age", Value: 2}},
	}
}

func TestDedupeSuppressesRedelivery(t *testing.T) {
	inner := &countingHandler{}
	dedupe := Deduplicate(inner, time.Minute)
	defer dedupe.Close()

	entry := testEntry(100, 1, oplog.OperationInsert)
	if err := dedupe.OnInsert(entry); err != nil {
		t.Fatalf("OnInsert: %v", err)
	}
	if err := dedupe.OnInsert(entry); err != nil {
		t.Fatalf("redelivered OnInsert: %v", err)
	}
	if inner.inserts != 1 {
		t.Errorf("inner insert calls = %d, want 1", inner.inserts)
	}

	// a different timestamp is a different operation
	if err := dedupe.OnInsert(testEntry(100, 2, oplog.OperationInsert)); err != nil {
		t.Fatalf("OnInsert: %v", err)
	}
	if inner.inserts != 2 {
		t.Errorf("inner insert calls = %d, want 2", inner.inserts)
	}
}

func TestDedupeRoutesPerKind(t *testing.T) {
	inner := &countingHandler{}
	dedupe := Deduplicate(inner, time.Minute)
	defer dedupe.Close()

	if err := dedupe.OnUpdate(testEntry(100, 1, oplog.OperationUpdate)); err != nil {
		t.Fatalf("OnUpdate: %v", err)
	}
	if err := dedupe.OnDelete(testEntry(100, 2, oplog.OperationDelete)); err != nil {
		t.Fatalf("OnDelete: %v", err)
	}
	if inner.updates != 1 || inner.deletes != 1 || inner.inserts != 0 {
		t.Errorf("calls = %d/%d/%d, want 0/1/1", inner.inserts, inner.updates, inner.deletes)
	}
}

type failingHandler struct {
	fails int
	calls int
}

func (h *failingHandler) OnInsert(entry *oplog.Entry) error {
	h.calls++
	if h.calls <= h.fails {
		return context.DeadlineExceeded
	}
	return nil
}

func (h *failingHandler) OnUpdate(entry *oplog.Entry) error { return nil }
func (h *failingHandler) OnDelete(entry *oplog.Entry) error { return nil }

func TestDedupeDoesNotMarkFailedDeliveries(t *testing.T) {
	inner := &failingHandler{fails: 1}
	dedupe := Deduplicate(inner, time.Minute)
	defer dedupe.Close()

	entry := testEntry(100, 1, oplog.OperationInsert)
	if err := dedupe.OnInsert(entry); err == nil {
		t.Fatal("first delivery should fail")
	}
	// redelivery after the failure must reach the handler again
	if err := dedupe.OnInsert(entry); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestKafkaMessageShape(t *testing.T) {
	sink := &Kafka{topic: "oplog-events", instance: "test-producer"}

	msg, err := sink.message(testEntry(100, 1, oplog.OperationInsert))
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.Topic != "oplog-events" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if string(msg.Key) != "mongo.awesome" {
		t.Errorf("key = %q, want the namespace", msg.Key)
	}

	value := string(msg.Value)
	for _, want := range []string{`"op":"i"`, `"ns":"mongo.awesome"`, `"name":"Xablau"`, `"ts"`} {
		if !strings.Contains(value, want) {
			t.Errorf("value %s missing %s", value, want)
		}
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[HeaderOperation] != oplog.OperationInsert {
		t.Errorf("op header = %q", headers[HeaderOperation])
	}
	if headers[HeaderProducerID] != "test-producer" {
		t.Errorf("producer-id header = %q", headers[HeaderProducerID])
	}
}

func TestLoggerHandlerNeverFails(t *testing.T) {
	var handler Logger
	if err := handler.OnInsert(testEntry(100, 1, oplog.OperationInsert)); err != nil {
		t.Errorf("OnInsert: %v", err)
	}
	if err := handler.OnUpdate(testEntry(100, 2, oplog.OperationUpdate)); err != nil {
		t.Errorf("OnUpdate: %v", err)
	}
	if err := handler.OnDelete(testEntry(100, 3, oplog.OperationDelete)); err != nil {
		t.Errorf("OnDelete: %v", err)
	}
}
