// Package session owns one user's settings and ledger for the lifetime of a
// login. It applies chat classifications, drives the transaction state
// machine and persists both documents with a debounced writer.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finai/internal/categories"
	"finai/internal/commitments"
	"finai/internal/core"
	"finai/internal/ledger"
	"finai/internal/log"
	"finai/internal/oracle"
	"finai/internal/services"
	"finai/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotConfirmable = errors.New("transaction cannot be confirmed")
	ErrNotPending     = errors.New("transaction is not pending")
	ErrEmptyMessage   = errors.New("message needs text or an image")
	ErrClosed         = errors.New("session is closed")
)

// EventPublisher receives domain events. Delivery is best effort.
type EventPublisher interface {
	TransactionConfirmed(ctx context.Context, userID string, tx core.Transaction) error
	CommitmentRetired(ctx context.Context, userID string, f core.FixedExpense) error
}

// ReceiptArchiver stores the photo attached to a chat message and returns
// where it was put.
type ReceiptArchiver interface {
	Archive(ctx context.Context, userID, messageID string, img oracle.Image) (string, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Store      storage.Store
	Classifier oracle.Classifier
	Publisher  EventPublisher
	Receipts   ReceiptArchiver
	Logger     *log.Logger
	SaveDelay  time.Duration
	Now        func() time.Time
	// AutoRecurring posts pending_fixed instances of due commitments on open.
	AutoRecurring bool
}

type Session struct {
	userID   string
	userName string
	deps     Deps
	logger   *log.Logger
	events   *log.StructuredLogger

	resolver   *services.IntentResolver
	reconciler *services.Reconciler
	metrics    *services.Metrics
	recurring  *services.RecurringGenerator

	mu          sync.Mutex
	categories  *categories.Registry
	commitments *commitments.Registry
	ledger      *ledger.Ledger
	closed      bool

	persist *persister
}

// Open loads the user's documents concurrently and returns a ready session.
// Missing documents start from defaults. A failed load also starts from
// defaults and is reported through SyncStatus rather than as an error.
func Open(ctx context.Context, userID, userName string, deps Deps) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	if deps.Store == nil || deps.Classifier == nil {
		return nil, errors.New("store and classifier are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{
		userID:     userID,
		userName:   userName,
		deps:       deps,
		logger:     deps.Logger.WithComponent(log.ComponentSession).With(log.FieldUserID, userID),
		events:     log.NewStructuredLogger(deps.Logger),
		resolver:   services.NewIntentResolver(),
		reconciler: services.NewReconciler(),
		metrics:    services.NewMetrics(),
		recurring:  services.NewRecurringGenerator(),
	}
	s.persist = newPersister(deps.SaveDelay, deps.Now, s.save)

	settings, txs, warning := s.load(ctx)
	s.categories = categories.New(settings.Categories)
	s.commitments = commitments.New(settings.Incomes, settings.FixedExpenses)
	s.ledger = ledger.New(txs)
	s.persist.markReady(warning)

	if deps.AutoRecurring {
		s.PostRecurring(ctx)
	}
	return s, nil
}

func (s *Session) load(ctx context.Context) (core.UserSettings, []core.Transaction, string) {
	var (
		settings    *core.UserSettings
		txs         []core.Transaction
		gotSettings bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, gotSettings, err = s.deps.Store.LoadSettings(gctx, s.userID)
		return err
	})
	g.Go(func() error {
		var err error
		txs, _, err = s.deps.Store.LoadLedger(gctx, s.userID)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "Load failed, starting from defaults",
			log.FieldOperation, log.OpLoad, log.FieldError, err)
		return core.DefaultSettings(), nil, "load failed: " + err.Error()
	}

	out := core.DefaultSettings()
	if gotSettings && settings != nil {
		out = *settings
		if out.Categories == nil {
			out.Categories = core.DefaultCategories()
		}
	}
	s.logger.InfoContext(ctx, "Session loaded",
		log.FieldOperation, log.OpLoad,
		"transactions", len(txs),
		"new_user", !gotSettings)
	return out, txs, ""
}

// save writes both documents from a snapshot taken under the session lock.
func (s *Session) save(ctx context.Context) error {
	s.mu.Lock()
	settings := s.snapshotLocked()
	txs := s.ledger.All()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.deps.Store.SaveSettings(gctx, s.userID, settings) })
	g.Go(func() error { return s.deps.Store.SaveLedger(gctx, s.userID, txs) })
	if err := g.Wait(); err != nil {
		s.logger.WarnContext(ctx, "Sync failed, will retry on next change",
			log.FieldOperation, log.OpSave, log.FieldError, err)
		return err
	}
	return nil
}

func (s *Session) snapshotLocked() core.UserSettings {
	incomes, fixed := s.commitments.Snapshot()
	return core.UserSettings{
		Incomes:       incomes,
		FixedExpenses: fixed,
		Categories:    s.categories.List(),
	}
}

// mutate runs fn under the session lock and schedules a save when fn
// succeeds.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := fn(); err != nil {
		return err
	}
	s.persist.touch()
	return nil
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) UserName() string { return s.userName }

func (s *Session) SyncStatus() SyncStatus { return s.persist.syncStatus() }

// Flush saves pending changes immediately.
func (s *Session) Flush(ctx context.Context) error { return s.persist.flush(ctx) }

// Close flushes pending changes and rejects further mutations.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if err := s.persist.close(ctx); err != nil {
		return fmt.Errorf("final sync for %s: %w", s.userID, err)
	}
	return nil
}

// Message is one chat input.
type Message struct {
	Text  string
	Image *oracle.Image
}

// Reply is the outcome of a chat message.
type Reply struct {
	MessageID    string             `json:"message_id"`
	Type         oracle.Type        `json:"type"`
	IntentLabel  string             `json:"intent_label,omitempty"`
	Message      string             `json:"message"`
	Transaction  *core.Transaction  `json:"transaction,omitempty"`
	Income       *core.Income       `json:"income,omitempty"`
	FixedExpense *core.FixedExpense `json:"fixed_expense,omitempty"`
	ReceiptKey   string             `json:"receipt_key,omitempty"`
}

// SubmitMessage classifies msg and records what it describes. The session is
// not locked while the oracle runs, so a slow response is applied on top of
// whatever happened in between.
func (s *Session) SubmitMessage(ctx context.Context, msg Message) (Reply, error) {
	text := strings.TrimSpace(msg.Text)
	hasImage := msg.Image != nil && len(msg.Image.Data) > 0
	if text == "" && !hasImage {
		return Reply{}, ErrEmptyMessage
	}
	reply := Reply{MessageID: "m-" + uuid.NewString()}

	if hasImage && s.deps.Receipts != nil {
		key, err := s.deps.Receipts.Archive(ctx, s.userID, reply.MessageID, *msg.Image)
		if err != nil {
			s.logger.WarnContext(ctx, "Receipt archive failed", log.FieldError, err)
		} else {
			reply.ReceiptKey = key
		}
	}

	now := s.deps.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Reply{}, ErrClosed
	}
	summary := s.metrics.Summarize(s.ledger.All(), s.commitments.Incomes(), s.commitments.FixedExpenses(), now)
	names := s.commitments.Names()
	s.mu.Unlock()

	req := oracle.Request{
		Text:    text,
		Context: oracle.BuildContext(s.userName, summary.Available, names, now.Day()),
		Image:   msg.Image,
	}
	result, err := s.deps.Classifier.Classify(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "Classifier failed", log.FieldOperation, log.OpClassify, log.FieldError, err)
		result = oracle.FallbackResult()
	}

	res := s.resolver.Resolve(result, now)
	reply.Type = res.Type
	reply.IntentLabel = result.IntentLabel
	reply.Message = res.AssistantMessage
	if res.Empty() {
		return reply, nil
	}

	res.Transaction.RawInput = text
	if res.Income != nil || res.FixedExpense != nil {
		if !result.IsPotentialDuplicate {
			if similar, ok := services.SimilarName(names, res.Transaction.Merchant); ok {
				s.logger.InfoContext(ctx, "Possible duplicate commitment", log.FieldMerchant, res.Transaction.Merchant, "similar_to", similar)
				reply.Message += services.DuplicateWarning
			}
		}
	}

	err = s.mutate(func() error {
		if res.Income != nil {
			in, err := s.commitments.AddIncome(*res.Income)
			if err != nil {
				return fmt.Errorf("add income: %w", err)
			}
			reply.Income = &in
		}
		if res.FixedExpense != nil {
			f, err := s.commitments.AddFixedExpense(*res.FixedExpense)
			if err != nil {
				return fmt.Errorf("add fixed expense: %w", err)
			}
			reply.FixedExpense = &f
		}
		s.ledger.Prepend(*res.Transaction)
		tx := res.Transaction.Clone()
		reply.Transaction = &tx
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	s.logger.InfoContext(ctx, "Message recorded",
		log.FieldIntent, res.Type,
		log.FieldTransactionID, res.Transaction.ID,
		log.FieldAmountCents, res.Transaction.Amount.Cents)
	return reply, nil
}

// Edits are the user-editable fields of a transaction. Nil fields are kept.
// Installment links are never editable.
type Edits struct {
	Amount    *core.Money     `json:"amount_cents,omitempty"`
	Merchant  *string         `json:"merchant,omitempty"`
	Category  *string         `json:"category,omitempty"`
	Date      *time.Time      `json:"date,omitempty"`
	Direction *core.Direction `json:"direction,omitempty"`
}

func (e *Edits) apply(tx core.Transaction) (core.Transaction, error) {
	if e == nil {
		return tx, nil
	}
	if e.Amount != nil {
		tx.Amount = *e.Amount
	}
	if e.Merchant != nil {
		tx.Merchant = strings.TrimSpace(*e.Merchant)
	}
	if e.Category != nil {
		tx.Category = strings.TrimSpace(*e.Category)
		if tx.Category == "" {
			tx.Category = core.DefaultCategoryName
		}
	}
	if e.Date != nil {
		tx.Date = *e.Date
	}
	if e.Direction != nil {
		tx.Direction = *e.Direction
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// Confirmation is the result of confirming a transaction.
type Confirmation struct {
	Transaction    core.Transaction         `json:"transaction"`
	Reconciliation *services.Reconciliation `json:"reconciliation,omitempty"`
}

// Confirm applies edits and moves a pending transaction to confirmed,
// reconciling its installment plan. Confirming an already confirmed
// transaction only applies the edits.
func (s *Session) Confirm(ctx context.Context, id string, edits *Edits) (Confirmation, error) {
	var out Confirmation
	transitioned := false
	err := s.mutate(func() error {
		tx, ok := s.ledger.Get(id)
		if !ok {
			return ledger.ErrNotFound
		}
		if tx.Status == core.StatusRejected {
			return ErrNotConfirmable
		}
		tx, err := edits.apply(tx)
		if err != nil {
			return err
		}
		if tx.Status.Pending() {
			tx.Status = core.StatusConfirmed
			transitioned = true
		}
		if err := s.ledger.Update(tx); err != nil {
			return err
		}
		out.Transaction = tx
		if transitioned {
			if rec, ok := s.reconciler.OnTransactionConfirmed(tx, s.commitments); ok {
				out.Reconciliation = &rec
			}
		}
		return nil
	})
	if err != nil {
		return Confirmation{}, err
	}
	if !transitioned {
		return out, nil
	}

	tx := out.Transaction
	s.events.LogTransactionConfirmed(ctx, s.userID, tx.ID, tx.Merchant, tx.Amount.Cents, tx.Category)
	s.publishConfirmed(ctx, tx)
	if rec := out.Reconciliation; rec != nil {
		s.logger.InfoContext(ctx, "Installment reconciled",
			log.FieldOperation, log.OpReconcile,
			log.FieldCommitmentID, rec.ParentID,
			log.FieldRemaining, rec.Remaining,
			"retired", rec.Retired)
		if rec.Retired && rec.Retiree != nil {
			s.publishRetired(ctx, *rec.Retiree)
		}
	}
	return out, nil
}

func (s *Session) publishConfirmed(ctx context.Context, tx core.Transaction) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.TransactionConfirmed(ctx, s.userID, tx); err != nil {
		s.logger.WarnContext(ctx, "Publish transaction.confirmed failed",
			log.FieldTransactionID, tx.ID, log.FieldError, err)
	}
}

func (s *Session) publishRetired(ctx context.Context, f core.FixedExpense) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.CommitmentRetired(ctx, s.userID, f); err != nil {
		s.logger.WarnContext(ctx, "Publish commitment.retired failed",
			log.FieldCommitmentID, f.ID, log.FieldError, err)
	}
}

// Edit changes a transaction without touching its status.
func (s *Session) Edit(_ context.Context, id string, edits Edits) (core.Transaction, error) {
	var out core.Transaction
	err := s.mutate(func() error {
		tx, ok := s.ledger.Get(id)
		if !ok {
			return ledger.ErrNotFound
		}
		tx, err := edits.apply(tx)
		if err != nil {
			return err
		}
		out = tx
		return s.ledger.Update(tx)
	})
	return out, err
}

// Reject removes a pending transaction from the ledger.
func (s *Session) Reject(ctx context.Context, id string) error {
	err := s.mutate(func() error {
		tx, ok := s.ledger.Get(id)
		if !ok {
			return ledger.ErrNotFound
		}
		if !tx.Status.Pending() {
			return ErrNotPending
		}
		return s.ledger.Delete(id)
	})
	if err == nil {
		s.logger.InfoContext(ctx, "Transaction rejected", log.FieldTransactionID, id)
	}
	return err
}

// PostRecurring adds a pending_fixed transaction for every commitment that
// came due this month without one. It returns how many were added.
func (s *Session) PostRecurring(ctx context.Context) int {
	now := s.deps.Now()
	var due []core.Transaction
	err := s.mutate(func() error {
		due = s.recurring.Due(s.snapshotLocked(), s.ledger.All(), now)
		if len(due) == 0 {
			return errNothingToDo
		}
		for _, tx := range due {
			s.ledger.Prepend(tx)
		}
		return nil
	})
	if err != nil {
		return 0
	}
	s.logger.InfoContext(ctx, "Recurring instances posted", "count", len(due))
	return len(due)
}

var errNothingToDo = errors.New("nothing to do")
