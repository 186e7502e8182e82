package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/validation"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
	"github.com/frahmantamala/moncash-relay/internal/core/events"
)

// Service is the reconciliation engine shared by every entry adapter.
type Service struct {
	repository   RepositoryAPI
	eventBus     *events.EventBus
	logger       *slog.Logger
	queryTimeout time.Duration
	now          func() time.Time
}

type ServiceConfig struct {
	QueryTimeout time.Duration
}

func NewService(repository RepositoryAPI, eventBus *events.EventBus, logger *slog.Logger, cfg ServiceConfig) *Service {
	return &Service{
		repository:   repository,
		eventBus:     eventBus,
		logger:       logger,
		queryTimeout: cfg.QueryTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile marks the order as paid by transactionID. Calling it again for a
// completed order is a no-op that still succeeds.
func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	if err := validateInput(in); err != nil {
		s.logger.Warn("reconcile rejected: missing identifier",
			"order_id", in.OrderID,
			"transaction_id", in.TransactionID,
			"source", errors.SourceFromContext(ctx))
		return nil, err
	}

	amount := decimal.Zero
	if in.Amount != nil {
		amount = *in.Amount
	}

	payloadJSON, err := json.Marshal(map[string]interface{}{"raw": in.RawPayload})
	if err != nil {
		return nil, errors.NewValidationError("payload is not JSON serializable", errors.ErrCodeInvalidPayload).WithCause(err)
	}

	now := s.now()
	txID := in.TransactionID
	record := &payment.Payment{
		OrderID:              in.OrderID,
		MonCashTransactionID: &txID,
		AmountHTG:            amount,
		Status:               payment.StatusCompleted,
		PaymentMethod:        payment.MethodMonCash,
		Payload:              datatypes.JSON(payloadJSON),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	qctx, cancel := errors.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	outcome, err := s.repository.Reconcile(qctx, record)
	if err != nil {
		s.logger.Error("failed to reconcile payment",
			"error", err,
			"order_id", in.OrderID,
			"transaction_id", in.TransactionID,
			"source", errors.SourceFromContext(ctx))
		return nil, errors.ErrStorage.WithCause(err)
	}

	result := &ReconcileResult{
		OrderID:       in.OrderID,
		TransactionID: in.TransactionID,
		Created:       outcome == OutcomeCreated,
		Outcome:       outcome,
		ReconciledAt:  now,
	}

	s.logger.Info("payment reconciled",
		"order_id", in.OrderID,
		"transaction_id", in.TransactionID,
		"amount_htg", amount.String(),
		"outcome", outcome,
		"source", errors.SourceFromContext(ctx))

	if outcome != OutcomeAlreadyCompleted {
		s.publish(ctx, result, amount)
	}

	return result, nil
}

// GetPayment returns the stored record for orderID, or ErrPaymentNotFound.
func (s *Service) GetPayment(ctx context.Context, orderID string) (*payment.Payment, error) {
	qctx, cancel := errors.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	p, err := s.repository.GetByOrderID(qctx, orderID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodePaymentNotFound) {
			return nil, err
		}
		return nil, errors.ErrStorage.WithCause(err)
	}
	return p, nil
}

// RegisterPending creates a PENDING record for an order the merchant is about
// to send to checkout. It reports false when the order already exists.
func (s *Service) RegisterPending(ctx context.Context, orderID string, amount decimal.Decimal) (bool, error) {
	v := validation.NewValidator().WithCode(errors.ErrCodeMissingIdentifier, "Missing orderId")
	v.Field("order_id", orderID).Required().MaxLength(255)
	if appErr := v.Validate(); appErr != nil {
		return false, appErr
	}

	now := s.now()
	qctx, cancel := errors.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	created, err := s.repository.CreatePending(qctx, &payment.Payment{
		OrderID:       orderID,
		AmountHTG:     amount,
		Status:        payment.StatusPending,
		PaymentMethod: payment.MethodMonCash,
		Payload:       datatypes.JSON(`{}`),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return false, errors.ErrStorage.WithCause(fmt.Errorf("create pending payment %s: %w", orderID, err))
	}
	return created, nil
}

func (s *Service) publish(ctx context.Context, result *ReconcileResult, amount decimal.Decimal) {
	if s.eventBus == nil {
		return
	}
	event := events.NewPaymentReconciledEvent(result.OrderID, result.TransactionID, amount, string(result.Outcome), errors.SourceFromContext(ctx))
	// The write is already committed; subscribers cannot undo it.
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("payment reconciled event handler failed", "error", err, "event_id", event.EventID())
	}
}

func validateInput(in ReconcileInput) *errors.AppError {
	v := validation.NewValidator().WithCode(errors.ErrCodeMissingIdentifier, errors.ErrMissingIdentifier.Message)
	v.Field("order_id", in.OrderID).Required().MaxLength(255)
	v.Field("transaction_id", in.TransactionID).Required().MaxLength(255)
	if appErr := v.Validate(); appErr != nil {
		// keep the top-level message stable for callers that match on it
		return errors.ErrMissingIdentifier.WithDetails(appErr.GetDetailedMessage())
	}
	return nil
}
