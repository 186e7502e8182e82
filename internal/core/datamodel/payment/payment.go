package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"

	MethodMonCash = "MONCASH"
)

// Payment is a row of the hosted `payments` table. order_id is unique.
type Payment struct {
	ID                   int64           `gorm:"primaryKey" json:"id"`
	OrderID              string          `gorm:"column:order_id;not null;uniqueIndex" json:"order_id"`
	MonCashTransactionID *string         `gorm:"column:moncash_transaction_id" json:"moncash_transaction_id"`
	AmountHTG            decimal.Decimal `gorm:"column:amount_htg;type:numeric(14,2);not null;default:0" json:"amount_htg"`
	Status               string          `gorm:"column:status;not null;default:PENDING" json:"status"`
	PaymentMethod        string          `gorm:"column:payment_method;not null;default:MONCASH" json:"payment_method"`
	Payload              datatypes.JSON  `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	CreatedAt            time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsCompleted() bool {
	return p.Status == StatusCompleted
}
