package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentReconciled = "payment.reconciled"
)

type PaymentReconciledEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Outcome       string          `json:"outcome"`
	Source        string          `json:"source"`
}

func NewPaymentReconciledEvent(orderID, transactionID string, amount decimal.Decimal, outcome, source string) *PaymentReconciledEvent {
	return &PaymentReconciledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentReconciled,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"order_id":       orderID,
				"transaction_id": transactionID,
				"amount":         amount.String(),
				"outcome":        outcome,
				"source":         source,
			},
		},
		OrderID:       orderID,
		TransactionID: transactionID,
		Amount:        amount,
		Outcome:       outcome,
		Source:        source,
	}
}
