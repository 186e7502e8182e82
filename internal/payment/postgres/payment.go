package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/moncash-relay/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

// Reconcile inserts p as a completed payment or, when the order already
// exists, moves it to COMPLETED. Both writes are conditional single
// statements so racing callers converge on one completed row.
func (r *PaymentRepository) Reconcile(ctx context.Context, p *payment.Payment) (paymentpkg.Outcome, error) {
	var outcome paymentpkg.Outcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).Create(p)
		if res.Error != nil {
			return fmt.Errorf("insert payment %s: %w", p.OrderID, res.Error)
		}
		if res.RowsAffected == 1 {
			outcome = paymentpkg.OutcomeCreated
			return nil
		}

		res = tx.Model(&payment.Payment{}).
			Where("order_id = ? AND status <> ?", p.OrderID, payment.StatusCompleted).
			Updates(map[string]interface{}{
				"moncash_transaction_id": p.MonCashTransactionID,
				"status":                 payment.StatusCompleted,
				"updated_at":             p.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("complete payment %s: %w", p.OrderID, res.Error)
		}

		if res.RowsAffected == 0 {
			outcome = paymentpkg.OutcomeAlreadyCompleted
		} else {
			outcome = paymentpkg.OutcomeCompleted
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePending registers an order ahead of checkout. Existing orders are
// left untouched and reported with false.
func (r *PaymentRepository) CreatePending(ctx context.Context, p *payment.Payment) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PaymentRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
