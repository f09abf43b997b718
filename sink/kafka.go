// Package sink ships ready-made OperationHandler implementations. All
// business logic stays behind the handler interface; the observer itself
// never knows where entries end up.
package sink

import (
	"context"

	"github.com/katkad/mongo-observer/errors"
	"github.com/katkad/mongo-observer/kafka"
	"github.com/katkad/mongo-observer/oplog"
	uuid "github.com/satori/go.uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	HeaderOperation  = "op"
	HeaderProducerID = "producer-id"
)

// Kafka publishes every observed entry to one topic as relaxed extended
// JSON, keyed by namespace so one collection's operations stay ordered
// within a partition. Each producer run stamps its messages with a fresh
// instance id, letting downstream consumers tell redelivery after a
// restart apart from duplicate writes.
type Kafka struct {
	ctx      context.Context
	client   *kafka.WriterClient
	topic    string
	instance string
}

func NewKafka(ctx context.Context, client *kafka.WriterClient, topic string) (*Kafka, error) {
	if topic == "" {
		return nil, errors.New("kafka sink topic is empty")
	}
	return &Kafka{
		ctx:      ctx,
		client:   client,
		topic:    topic,
		instance: uuid.NewV4().String(),
	}, nil
}

func (k *Kafka) OnInsert(entry *oplog.Entry) error {
	return k.publish(entry)
}

func (k *Kafka) OnUpdate(entry *oplog.Entry) error {
	return k.publish(entry)
}

func (k *Kafka) OnDelete(entry *oplog.Entry) error {
	return k.publish(entry)
}

func (k *Kafka) publish(entry *oplog.Entry) error {
	msg, err := k.message(entry)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(k.client.WriteMessages(k.ctx, msg))
}

func (k *Kafka) message(entry *oplog.Entry) (kafkago.Message, error) {
	value, err := bson.MarshalExtJSON(entry, false, false)
	if err != nil {
		return kafkago.Message{}, errors.Annotatef(err, "encode entry ts[%v]", entry.Timestamp)
	}
	return kafkago.Message{
		Topic: k.topic,
		Key:   []byte(entry.Namespace),
		Value: value,
		Headers: []kafkago.Header{
			{Key: HeaderOperation, Value: []byte(entry.Operation)},
			{Key: HeaderProducerID, Value: []byte(k.instance)},
		},
	}, nil
}
