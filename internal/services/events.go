package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cbcbank/ledger/internal/models"
	"github.com/cbcbank/ledger/internal/money"
)

const DefaultEventQueue = "ledger:events"

type LedgerEvent struct {
	Type            string                   `json:"type"`
	TransactionID   string                   `json:"transactionId"`
	AccountNumber   string                   `json:"accountNumber"`
	ToAccountNumber string                   `json:"toAccountNumber,omitempty"`
	Kind            models.TransactionKind   `json:"transactionType"`
	Status          models.TransactionStatus `json:"status"`
	Amount          money.Amount             `json:"amount"`
	Fee             money.Amount             `json:"fee"`
	Reference       string                   `json:"reference"`
	OccurredAt      time.Time                `json:"occurredAt"`
}

func NewLedgerEvent(txn *models.Transaction) LedgerEvent {
	return LedgerEvent{
		Type:            "transaction." + string(txn.Status),
		TransactionID:   txn.ID,
		AccountNumber:   txn.AccountNumber,
		ToAccountNumber: txn.ToAccountNumber,
		Kind:            txn.Kind,
		Status:          txn.Status,
		Amount:          txn.Amount,
		Fee:             txn.Fee,
		Reference:       txn.Reference,
		OccurredAt:      txn.CreatedAt,
	}
}

// EventPublisher is notified after a unit of work has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

// RedisPublisher pushes events onto a Redis list for downstream consumers
// such as settlement and notifications. A nil client disables publishing.
type RedisPublisher struct {
	redis *redis.Client
	queue string
}

func NewRedisPublisher(client *redis.Client, queue string) *RedisPublisher {
	if queue == "" {
		queue = DefaultEventQueue
	}
	return &RedisPublisher{redis: client, queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	if p.redis == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.redis.RPush(ctx, p.queue, data).Err()
}

func publish(ctx context.Context, publisher EventPublisher, txn *models.Transaction) {
	if publisher == nil || txn == nil {
		return
	}
	if err := publisher.Publish(ctx, NewLedgerEvent(txn)); err != nil {
		log.Printf("[EVENTS] Failed to publish %s for transaction %s: %v", txn.Status, txn.ID, err)
	}
}
