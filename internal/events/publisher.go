// Package events publishes task state transitions for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"image-worker-service/internal/entity"
)

type Event struct {
	TaskID   string        `json:"task_id"`
	Kind     entity.Kind   `json:"task_type"`
	Status   entity.Status `json:"status"`
	Progress int           `json:"progress"`
	Filename string        `json:"filename,omitempty"`
	Error    string        `json:"error,omitempty"`
	At       time.Time     `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type nop struct{}

func (nop) Publish(context.Context, Event) error { return nil }
func (nop) Close() error                         { return nil }

// Nop is used when no broker is configured.
func Nop() Publisher { return nop{} }

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}
	return NewPublisherFromProducer(p, topic), nil
}

// NewPublisherFromProducer wraps an existing producer (tests pass sarama mocks).
func NewPublisherFromProducer(p sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: p, topic: topic}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.TaskID),
		Value: sarama.ByteEncoder(data),
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
