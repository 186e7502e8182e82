package payment

import (
	"context"
	"log/slog"
	"strings"

	errors "github.com/frahmantamala/moncash-relay/internal"
)

// VerifyService confirms a transaction with MonCash before handing it to the
// reconciliation engine. Used by the verify endpoint, the landing page and the
// reconcile command.
type VerifyService struct {
	gateway    GatewayAPI
	reconciler ReconcilerAPI
	logger     *slog.Logger
}

func NewVerifyService(gateway GatewayAPI, reconciler ReconcilerAPI, logger *slog.Logger) *VerifyService {
	return &VerifyService{
		gateway:    gateway,
		reconciler: reconciler,
		logger:     logger,
	}
}

// Verify looks transactionID up at the gateway and reconciles it. orderID may
// be empty, in which case the reference MonCash echoes back is used.
func (s *VerifyService) Verify(ctx context.Context, transactionID, orderID string) (*VerifyResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	orderID = strings.TrimSpace(orderID)

	if transactionID == "" {
		return nil, errors.ErrMissingTransaction
	}
	if s.gateway == nil {
		return nil, errors.NewInternalError("MonCash credentials are not configured", nil)
	}

	tx, err := s.gateway.FetchTransaction(ctx, transactionID)
	if err != nil {
		s.logger.Warn("gateway lookup failed", "transaction_id", transactionID, "error", err)
		return nil, err
	}

	if orderID == "" {
		orderID = tx.ReferenceOrderID
	}
	if orderID == "" {
		s.logger.Warn("order id unresolvable", "transaction_id", transactionID)
		return nil, errors.ErrOrderIDUnresolved
	}

	if tx.TransactionID == "" {
		tx.TransactionID = transactionID
	}

	amount := tx.Amount
	result, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		OrderID:       orderID,
		TransactionID: tx.TransactionID,
		Amount:        &amount,
		RawPayload:    tx.Raw,
	})
	if err != nil {
		return nil, err
	}

	return &VerifyResult{
		OrderID:     orderID,
		Transaction: tx,
		Reconcile:   result,
	}, nil
}
