// Package oracle is the port to the external classification service that
// turns a free-form chat message into a structured financial intent.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finai/internal/core"
	"finai/internal/log"
)

type Type string

const (
	PointTransaction Type = "point_transaction"
	FixedIncome      Type = "fixed_income"
	FixedExpense     Type = "fixed_expense"
	Installment      Type = "installment"
	Clarification    Type = "clarification"
)

// Types lists every classification in the order the model is told about them.
var Types = []Type{PointTransaction, FixedIncome, FixedExpense, Installment, Clarification}

func (t Type) Valid() bool {
	for _, v := range Types {
		if t == v {
			return true
		}
	}
	return false
}

// Payload is the transaction the model extracted. Amounts are in reais.
type Payload struct {
	Amount            float64  `json:"amount"`
	TotalAmount       *float64 `json:"totalAmount,omitempty"`
	Merchant          string   `json:"merchant"`
	Category          string   `json:"category,omitempty"`
	Direction         string   `json:"direction,omitempty"`
	Day               *int     `json:"day,omitempty"`
	TotalInstallments *int     `json:"totalInstallments,omitempty"`
}

// Result is the classification returned by the service.
type Result struct {
	Type                 Type     `json:"type"`
	IntentLabel          string   `json:"intentLabel"`
	Transaction          *Payload `json:"transaction,omitempty"`
	IsPotentialDuplicate bool     `json:"isPotentialDuplicate,omitempty"`
	Response             string   `json:"response"`
}

type Image struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	Text    string
	Context string
	Image   *Image
}

// Classifier classifies one user message.
type Classifier interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, req Request) (Result, error)

func (f Func) Classify(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

var ErrInvalidResult = errors.New("invalid classification result")

const (
	FallbackLabel    = "Esclarecimento"
	FallbackResponse = "Desculpe, tive um problema técnico na análise. Poderia repetir os detalhes?"
)

// FallbackResult is substituted whenever the service fails.
func FallbackResult() Result {
	return Result{Type: Clarification, IntentLabel: FallbackLabel, Response: FallbackResponse}
}

// Fallback wraps a Classifier so it never fails: transport errors, timeouts
// and results with an unknown type all become FallbackResult.
type Fallback struct {
	next    Classifier
	timeout time.Duration
	logger  *log.Logger
}

func NewFallback(next Classifier, timeout time.Duration, logger *log.Logger) *Fallback {
	if logger == nil {
		logger = log.Discard()
	}
	return &Fallback{next: next, timeout: timeout, logger: logger.WithComponent(log.ComponentOracle)}
}

func (f *Fallback) Classify(ctx context.Context, req Request) (Result, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := f.next.Classify(ctx, req)
	if err == nil && !res.Type.Valid() {
		err = fmt.Errorf("%w: type %q", ErrInvalidResult, res.Type)
	}
	if err != nil {
		f.logger.WarnContext(ctx, "Classification failed, asking for clarification",
			log.FieldOperation, log.OpClassify,
			log.FieldError, err,
			log.FieldDuration, time.Since(start).Milliseconds())
		return FallbackResult(), nil
	}
	f.logger.DebugContext(ctx, "Classification done",
		log.FieldIntent, res.Type,
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

// BuildContext renders the summary sent alongside each message.
func BuildContext(userName string, availableCents int64, commitmentNames []string, day int) string {
	return fmt.Sprintf("USUÁRIO: %s. SALDO: %s. LISTA DE FIXOS ATUAIS: [%s]. DIA HOJE: %d.",
		userName,
		core.Cents(availableCents).Decimal().StringFixed(2),
		strings.Join(commitmentNames, ", "),
		day)
}
