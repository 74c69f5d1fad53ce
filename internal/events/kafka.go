package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dittorahmat/amal-kita/internal/donation"
)

// Event types published on the donations topic.
const (
	DonationCreated   = "DonationCreated"
	InvoiceSynced     = "InvoiceSynced"
	InvoiceSyncFailed = "InvoiceSyncFailed"
)

type Producer struct{ w *kafka.Writer }

func NewProducerWithBrokers(brokers []string) *Producer {
	return &Producer{
		w: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{}, // partition by Kafka message key
		}),
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Envelope is the standard event schema. Keep it small and stable.
type Envelope struct {
	EventType    string      `json:"eventType"`
	EventVersion string      `json:"eventVersion"`
	OccurredAt   time.Time   `json:"occurredAt"`
	AggregateID  string      `json:"aggregateId"` // donationId
	Data         interface{} `json:"data"`
}

// DonationPayload is the Data of a DonationCreated event. It carries the
// full campaign so consumers do not need a database lookup to sync.
type DonationPayload struct {
	Donation donation.Donation `json:"donation"`
	Campaign donation.Campaign `json:"campaign"`
}

// DecodeDonationPayload re-decodes an Envelope's Data into the typed
// payload. Needed on the consumer side, where Data arrives as raw JSON.
func DecodeDonationPayload(data interface{}) (DonationPayload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return DonationPayload{}, err
	}
	var p DonationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DonationPayload{}, err
	}
	return p, nil
}

// Publish writes a single message. 'key' is the partition key; use the
// donation id so per-donation ordering holds.
func (p *Producer) Publish(ctx context.Context, topic, key string, evt Envelope) error {
	evt.OccurredAt = time.Now().UTC()
	val, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.EventType, err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
	})
}
