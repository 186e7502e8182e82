package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/events"
	"github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

var (
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Verify a MonCash transaction and record it",
		Long:  `Look a transaction up at MonCash and reconcile it into the payments table. Prints the result or the error as JSON.`,
		RunE:  runReconcile,
		// the JSON output already describes failures
		SilenceUsage: true,
	}
	reconcileTransactionID string
	reconcileOrderID       string
)

type reconcileOutput struct {
	Success     bool                     `json:"success"`
	OrderID     string                   `json:"order_id,omitempty"`
	Result      *payment.ReconcileResult `json:"result,omitempty"`
	Transaction json.RawMessage          `json:"payment,omitempty"`
	Error       interface{}              `json:"error,omitempty"`
	Cause       string                   `json:"cause,omitempty"`
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileTransactionID, "transaction-id", "", "MonCash transaction id")
	reconcileCmd.Flags().StringVar(&reconcileOrderID, "order-id", "", "merchant order id; defaults to the transaction's reference")
	_ = reconcileCmd.MarkFlagRequired("transaction-id")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}

	logger.Init(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(events.EventTypePaymentReconciled, auditReconciled(lg))

	service, _, db, err := openPaymentService(cfg.Database.Source, cfg.Database, eventBus, lg)
	if err != nil {
		return err
	}
	defer db.Close()

	verifier := payment.NewVerifyService(newGateway(cfg.MonCash, lg), service, lg)
	out := reconcileTransaction(context.Background(), verifier, reconcileTransactionID, reconcileOrderID)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("reconcile %s failed", reconcileTransactionID)
	}
	return nil
}

// reconcileTransaction runs the verify flow and shapes its outcome for printing.
// Unlike HTTP responses, the output carries the underlying cause for operators.
func reconcileTransaction(ctx context.Context, verifier payment.VerifierAPI, transactionID, orderID string) reconcileOutput {
	ctx = errors.ContextWithSource(ctx, payment.SourceCLI)
	result, err := verifier.Verify(ctx, transactionID, orderID)
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if !ok {
			appErr = errors.NewInternalError("Internal server error", err)
		}
		out := reconcileOutput{}
		_, out.Error = appErr.ToHTTPResponse()
		if appErr.Cause != nil {
			out.Cause = appErr.Cause.Error()
		}
		return out
	}

	return reconcileOutput{
		Success:     true,
		OrderID:     result.OrderID,
		Result:      result.Reconcile,
		Transaction: result.Transaction.Raw,
	}
}
