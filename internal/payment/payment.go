package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/moncash"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
)

// Outcome of a single reconciliation.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
)

// Sources name the adapter that triggered a reconciliation.
const (
	SourceWebhook  = "webhook"
	SourceRedirect = "redirect"
	SourceVerify   = "verify"
	SourceCLI      = "cli"
)

// RepositoryAPI is the storage boundary. Reconcile must be atomic with respect
// to the order_id uniqueness constraint.
type RepositoryAPI interface {
	Reconcile(ctx context.Context, p *payment.Payment) (Outcome, error)
	GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error)
	CreatePending(ctx context.Context, p *payment.Payment) (bool, error)
	Ping(ctx context.Context) error
}

// ReconcilerAPI is what every entry adapter depends on.
type ReconcilerAPI interface {
	Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error)
}

// GatewayAPI looks a transaction up at MonCash.
type GatewayAPI interface {
	FetchTransaction(ctx context.Context, transactionID string) (*moncash.Transaction, error)
}

// VerifierAPI re-checks a transaction with MonCash before reconciling it.
type VerifierAPI interface {
	Verify(ctx context.Context, transactionID, orderID string) (*VerifyResult, error)
}

type ReconcileInput struct {
	OrderID       string
	TransactionID string
	// Amount is nil when the caller does not know it.
	Amount     *decimal.Decimal
	RawPayload interface{}
}

type ReconcileResult struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Created       bool      `json:"created"`
	Outcome       Outcome   `json:"outcome"`
	ReconciledAt  time.Time `json:"reconciled_at"`
}

type VerifyResult struct {
	OrderID     string
	Transaction *moncash.Transaction
	Reconcile   *ReconcileResult
}
