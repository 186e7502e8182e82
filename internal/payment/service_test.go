package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
	"github.com/frahmantamala/moncash-relay/internal/core/events"
	paymentpkg "github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

var _ = ginkgo.Describe("Service", func() {
	var (
		repo      *memoryRepository
		bus       *events.EventBus
		published []*events.PaymentReconciledEvent
		service   *paymentpkg.Service
		ctx       context.Context
	)

	amountOf := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	ginkgo.BeforeEach(func() {
		repo = newMemoryRepository()
		published = nil
		bus = events.NewEventBus(logger.Discard())
		bus.Subscribe(events.EventTypePaymentReconciled, func(ctx context.Context, e events.Event) error {
			published = append(published, e.(*events.PaymentReconciledEvent))
			return nil
		})
		service = paymentpkg.NewService(repo, bus, logger.Discard(), paymentpkg.ServiceConfig{})
		ctx = errors.ContextWithSource(context.Background(), paymentpkg.SourceWebhook)
	})

	ginkgo.Describe("Reconcile", func() {
		ginkgo.Context("when the order is new", func() {
			ginkgo.It("should create a completed record", func() {
				result, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{
					OrderID:       "ORD1",
					TransactionID: "TX1",
					Amount:        amountOf("150.00"),
					RawPayload:    map[string]any{"transactionId": "TX1", "orderId": "ORD1"},
				})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.Created).To(gomega.BeTrue())
				gomega.Expect(result.Outcome).To(gomega.Equal(paymentpkg.OutcomeCreated))

				stored := repo.get("ORD1")
				gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusCompleted))
				gomega.Expect(*stored.MonCashTransactionID).To(gomega.Equal("TX1"))
				gomega.Expect(stored.AmountHTG.Equal(decimal.RequireFromString("150"))).To(gomega.BeTrue())
				gomega.Expect(stored.PaymentMethod).To(gomega.Equal(payment.MethodMonCash))

				var body map[string]map[string]string
				gomega.Expect(json.Unmarshal(stored.Payload, &body)).To(gomega.Succeed())
				gomega.Expect(body["raw"]).To(gomega.HaveKeyWithValue("transactionId", "TX1"))
			})

			ginkgo.It("should store zero when the amount is unknown", func() {
				_, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD0", TransactionID: "TX0"})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(repo.get("ORD0").AmountHTG.IsZero()).To(gomega.BeTrue())
			})

			ginkgo.It("should publish a reconciled event with the adapter source", func() {
				_, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD1", TransactionID: "TX1", Amount: amountOf("5")})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(published).To(gomega.HaveLen(1))
				gomega.Expect(published[0].OrderID).To(gomega.Equal("ORD1"))
				gomega.Expect(published[0].Outcome).To(gomega.Equal("created"))
				gomega.Expect(published[0].Source).To(gomega.Equal(paymentpkg.SourceWebhook))
			})
		})

		ginkgo.Context("when the order is pending", func() {
			ginkgo.It("should transition it to completed", func() {
				created, err := service.RegisterPending(ctx, "ORD2", decimal.RequireFromString("80"))
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(created).To(gomega.BeTrue())

				result, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD2", TransactionID: "TX2"})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.Created).To(gomega.BeFalse())
				gomega.Expect(result.Outcome).To(gomega.Equal(paymentpkg.OutcomeCompleted))
				gomega.Expect(repo.count()).To(gomega.Equal(1))
				gomega.Expect(repo.get("ORD2").Status).To(gomega.Equal(payment.StatusCompleted))
				gomega.Expect(*repo.get("ORD2").MonCashTransactionID).To(gomega.Equal("TX2"))
			})
		})

		ginkgo.Context("when called twice with the same input", func() {
			ginkgo.It("should write once and succeed both times", func() {
				in := paymentpkg.ReconcileInput{OrderID: "ORD3", TransactionID: "TX3", Amount: amountOf("10"), RawPayload: "x"}

				first, err := service.Reconcile(ctx, in)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				writesAfterFirst := repo.writes

				second, err := service.Reconcile(ctx, in)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(first.Outcome).To(gomega.Equal(paymentpkg.OutcomeCreated))
				gomega.Expect(second.Outcome).To(gomega.Equal(paymentpkg.OutcomeAlreadyCompleted))
				gomega.Expect(second.Created).To(gomega.BeFalse())
				gomega.Expect(repo.writes).To(gomega.Equal(writesAfterFirst))
				gomega.Expect(repo.count()).To(gomega.Equal(1))
				gomega.Expect(published).To(gomega.HaveLen(1))
			})
		})

		ginkgo.Context("when many triggers race on one order", func() {
			ginkgo.It("should end with a single completed record", func() {
				var wg sync.WaitGroup
				for i := 0; i < 10; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						defer ginkgo.GinkgoRecover()
						_, err := service.Reconcile(context.Background(), paymentpkg.ReconcileInput{
							OrderID:       "ORD-RACE",
							TransactionID: fmt.Sprintf("TX-%d", i),
						})
						gomega.Expect(err).ToNot(gomega.HaveOccurred())
					}(i)
				}
				wg.Wait()

				gomega.Expect(repo.count()).To(gomega.Equal(1))
				gomega.Expect(repo.get("ORD-RACE").Status).To(gomega.Equal(payment.StatusCompleted))
			})
		})

		ginkgo.Context("when an identifier is missing", func() {
			ginkgo.DescribeTable("should fail without touching storage",
				func(orderID, txID string) {
					result, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: orderID, TransactionID: txID})

					gomega.Expect(result).To(gomega.BeNil())
					gomega.Expect(errors.IsCode(err, errors.ErrCodeMissingIdentifier)).To(gomega.BeTrue())
					gomega.Expect(repo.callCount()).To(gomega.BeZero())
				},
				ginkgo.Entry("empty order id", "", "TX1"),
				ginkgo.Entry("empty transaction id", "ORD1", ""),
				ginkgo.Entry("blank order id", "   ", "TX1"),
				ginkgo.Entry("both empty", "", ""),
			)
		})

		ginkgo.Context("when storage fails", func() {
			ginkgo.It("should surface a storage error", func() {
				repo.failWith = fmt.Errorf("connection refused")

				_, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD1", TransactionID: "TX1"})

				appErr, ok := errors.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.Code).To(gomega.Equal(errors.ErrCodeStorage))
				gomega.Expect(appErr.StatusCode).To(gomega.Equal(500))
				gomega.Expect(err.Error()).To(gomega.ContainSubstring("connection refused"))
				gomega.Expect(published).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when an event handler fails", func() {
			ginkgo.It("should still report success", func() {
				bus.Subscribe(events.EventTypePaymentReconciled, func(ctx context.Context, e events.Event) error {
					return fmt.Errorf("audit sink down")
				})

				result, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD9", TransactionID: "TX9"})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.Created).To(gomega.BeTrue())
			})
		})
	})

	ginkgo.Describe("GetPayment", func() {
		ginkgo.It("should return not found for unknown orders", func() {
			_, err := service.GetPayment(ctx, "nope")

			gomega.Expect(errors.IsCode(err, errors.ErrCodePaymentNotFound)).To(gomega.BeTrue())
		})

		ginkgo.It("should map backend failures to storage errors", func() {
			repo.failWith = fmt.Errorf("timeout")

			_, err := service.GetPayment(ctx, "ORD1")

			gomega.Expect(errors.IsCode(err, errors.ErrCodeStorage)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("RegisterPending", func() {
		ginkgo.It("should leave an existing order untouched", func() {
			_, err := service.Reconcile(ctx, paymentpkg.ReconcileInput{OrderID: "ORD5", TransactionID: "TX5"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			created, err := service.RegisterPending(ctx, "ORD5", decimal.RequireFromString("1"))

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(created).To(gomega.BeFalse())
			gomega.Expect(repo.get("ORD5").Status).To(gomega.Equal(payment.StatusCompleted))
		})

		ginkgo.It("should reject an empty order id", func() {
			_, err := service.RegisterPending(ctx, "", decimal.Zero)

			gomega.Expect(errors.IsCode(err, errors.ErrCodeMissingIdentifier)).To(gomega.BeTrue())
		})
	})
})
