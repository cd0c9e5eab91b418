// Package events публикует события о проведённых пожертвованиях.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Settlement описывает событие о записанном пожертвовании.
type Settlement struct {
	DonationID string    `json:"donationId"`
	CampaignID string    `json:"campaignId"`
	DonorID    string    `json:"donorId"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	SettledAt  time.Time `json:"settledAt"`
}

// KafkaPublisher публикует события в топик Kafka. Ключом сообщения служит идентификатор кампании,
// события одной кампании попадают в одну партицию.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher создаёт публикатора для указанных брокеров и топика.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishSettlement публикует событие о пожертвовании.
func (p *KafkaPublisher) PublishSettlement(ctx context.Context, e Settlement) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal settlement: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.CampaignID),
		Value: value,
		Time:  e.SettledAt,
	})
	if err != nil {
		return fmt.Errorf("write settlement: %w", err)
	}
	return nil
}

// Close закрывает соединения с брокерами.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher используется, когда брокеры не настроены.
type NopPublisher struct{}

// PublishSettlement ничего не делает.
func (NopPublisher) PublishSettlement(context.Context, Settlement) error {
	return nil
}

// Close ничего не делает.
func (NopPublisher) Close() error {
	return nil
}
