package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

var (
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Register a PENDING payment ahead of checkout",
		Long:  `Insert a PENDING payment for an order, the way the merchant app does before sending the payer to MonCash. Existing orders are left untouched.`,
		Run:   runSeed,
	}
	seedOrderID string
	seedAmount  string
)

func init() {
	seedCmd.Flags().StringVar(&seedOrderID, "order-id", "", "merchant order id")
	seedCmd.Flags().StringVar(&seedAmount, "amount", "", "amount in HTG")
	_ = seedCmd.MarkFlagRequired("order-id")
}

func runSeed(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	req := payment.SeedRequest{OrderID: seedOrderID, Amount: seedAmount}
	if err := req.Validate(); err != nil {
		log.Fatalf("invalid seed request: %v", err)
	}

	logger.Init(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
	service, _, db, err := openPaymentService(cfg.Database.Source, cfg.Database, nil, logger.LoggerWrapper())
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}
	defer db.Close()

	created, err := service.RegisterPending(context.Background(), req.OrderID, req.AmountValue())
	if err != nil {
		log.Fatalf("failed to seed payment %s: %v", req.OrderID, err)
	}

	if !created {
		fmt.Println("payment already exists; left untouched:", req.OrderID)
		return
	}
	fmt.Printf("Seeded PENDING payment: %s (%s HTG)\n", req.OrderID, req.AmountValue().StringFixed(2))
}
