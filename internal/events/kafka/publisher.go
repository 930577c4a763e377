// Package kafka publishes ledger lifecycle events for downstream consumers
// (marketplace notifications, analytics). Publishing is best-effort: the
// ledger commit never waits on or rolls back for the broker.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/agrinova/agrinova/internal/ledger"
)

// TopicTransactionCompleted carries one message per completed ledger entry
const TopicTransactionCompleted = "transaction_completed"

// TransactionCompletedEvent is the wire shape consumers depend on
type TransactionCompletedEvent struct {
	EntryID        uuid.UUID `json:"entryId"`
	AccountID      uuid.UUID `json:"accountId"`
	Kind           string    `json:"transactionType"`
	Category       string    `json:"category"`
	Amount         int64     `json:"amount"`
	CommitmentHash string    `json:"commitmentHash"`
	Verified       bool      `json:"verified"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher implements ledger.EventPublisher on top of a kafka writer
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers
func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    TopicTransactionCompleted,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishTransactionCompleted emits one event for a completed entry. The
// account ID keys the message so per-account ordering survives partitioning.
func (p *Publisher) PublishTransactionCompleted(ctx context.Context, entry *ledger.Entry) error {
	event := TransactionCompletedEvent{
		EntryID:        entry.ID,
		AccountID:      entry.AccountID,
		Kind:           string(entry.Kind),
		Category:       string(entry.Category),
		Amount:         entry.Amount,
		CommitmentHash: entry.CommitmentHash,
		Verified:       entry.Verified,
		OccurredAt:     entry.CreatedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.AccountID.String()),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
