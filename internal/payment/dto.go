package payment

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/validation"
)

// WebhookResponse is returned to MonCash after a notification was recorded.
type WebhookResponse struct {
	OK      bool `json:"ok"`
	Created bool `json:"created"`
}

// VerifyRequest holds the verify endpoint's query parameters.
type VerifyRequest struct {
	TransactionID string
	OrderID       string
}

func (r *VerifyRequest) Validate() error {
	validator := validation.NewValidator().WithCode(errors.ErrCodeMissingIdentifier, errors.ErrMissingTransaction.Message)

	validator.Field("transactionId", r.TransactionID).Required().MaxLength(255)
	validator.Field("orderId", r.OrderID).MaxLength(255)

	if appErr := validator.Validate(); appErr != nil {
		return errors.ErrMissingTransaction.WithDetails(appErr.GetDetailedMessage())
	}
	return nil
}

type VerifyResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Created bool            `json:"created"`
	OrderID string          `json:"order_id"`
	Payment json.RawMessage `json:"payment"`
}

// SeedRequest describes a PENDING order registered ahead of checkout.
type SeedRequest struct {
	OrderID string
	Amount  string
}

func (r *SeedRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("order_id", r.OrderID).Required().MaxLength(255)
	validator.Field("amount", r.Amount).Custom(func(value interface{}) *errors.AppError {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil || d.IsNegative() {
			return errors.NewValidationFieldError("amount", "amount must be a non-negative number", errors.ErrCodeValidationFailed)
		}
		return nil
	})

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// AmountValue returns the parsed amount, zero when none was given.
func (r *SeedRequest) AmountValue() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return decimal.Zero
	}
	return d
}
