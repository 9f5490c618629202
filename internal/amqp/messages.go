package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finai/internal/core"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTransactionConfirmed EventType = "transaction.confirmed"
	EventCommitmentRetired    EventType = "commitment.retired"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is the envelope published for every domain event. Exactly one of
// Transaction and Commitment is set, matching Type.
type Event struct {
	ID          string             `json:"id"`
	Type        EventType          `json:"type"`
	UserID      string             `json:"user_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
	Transaction *core.Transaction  `json:"transaction,omitempty"`
	Commitment  *core.FixedExpense `json:"commitment,omitempty"`
}

func NewTransactionConfirmed(userID string, tx core.Transaction) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        EventTransactionConfirmed,
		UserID:      userID,
		OccurredAt:  time.Now().UTC(),
		Transaction: &tx,
	}
}

func NewCommitmentRetired(userID string, f core.FixedExpense) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventCommitmentRetired,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Commitment: &f,
	}
}

func (e Event) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	}
	switch e.Type {
	case EventTransactionConfirmed:
		if e.Transaction == nil {
			return fmt.Errorf("%w: %s without transaction", ErrInvalidEvent, e.Type)
		}
	case EventCommitmentRetired:
		if e.Commitment == nil {
			return fmt.Errorf("%w: %s without commitment", ErrInvalidEvent, e.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and validates an event body.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
