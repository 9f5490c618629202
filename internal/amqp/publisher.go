package amqp

import (
	"context"

	"finai/internal/core"
)

type eventSender interface {
	PublishEvent(ctx context.Context, e Event) error
}

// Publisher turns session callbacks into broker events.
type Publisher struct {
	sender eventSender
}

func NewPublisher(sender eventSender) *Publisher {
	return &Publisher{sender: sender}
}

func (p *Publisher) TransactionConfirmed(ctx context.Context, userID string, tx core.Transaction) error {
	return p.sender.PublishEvent(ctx, NewTransactionConfirmed(userID, tx))
}

func (p *Publisher) CommitmentRetired(ctx context.Context, userID string, f core.FixedExpense) error {
	return p.sender.PublishEvent(ctx, NewCommitmentRetired(userID, f))
}
