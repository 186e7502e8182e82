package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/moncash"
	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/internal/transport"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

func gatewayTransaction(txID, reference, cost string) *moncash.Transaction {
	raw, _ := json.Marshal(map[string]interface{}{
		"reference":      reference,
		"transaction_id": txID,
		"cost":           cost,
		"message":        "successful",
	})
	return &moncash.Transaction{
		TransactionID:    txID,
		ReferenceOrderID: reference,
		Amount:           decimal.RequireFromString(cost),
		Message:          "successful",
		Raw:              raw,
	}
}

var _ = ginkgo.Describe("VerifyService", func() {
	var (
		repo     *memoryRepository
		gateway  *mockGateway
		verifier *paymentpkg.VerifyService
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		repo = newMemoryRepository()
		gateway = &mockGateway{tx: gatewayTransaction("TX1", "ORD-REF", "250")}
		service := paymentpkg.NewService(repo, nil, logger.Discard(), paymentpkg.ServiceConfig{})
		verifier = paymentpkg.NewVerifyService(gateway, service, logger.Discard())
		ctx = context.Background()
	})

	ginkgo.It("should prefer the caller's order id", func() {
		result, err := verifier.Verify(ctx, "TX1", "ORD-QUERY")

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.OrderID).To(gomega.Equal("ORD-QUERY"))
		gomega.Expect(repo.get("ORD-QUERY")).ToNot(gomega.BeNil())
		gomega.Expect(repo.get("ORD-REF")).To(gomega.BeNil())
	})

	ginkgo.It("should fall back to the MonCash reference", func() {
		result, err := verifier.Verify(ctx, "TX1", "")

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.OrderID).To(gomega.Equal("ORD-REF"))
		gomega.Expect(result.Reconcile.Created).To(gomega.BeTrue())

		stored := repo.get("ORD-REF")
		gomega.Expect(stored.AmountHTG.Equal(decimal.RequireFromString("250"))).To(gomega.BeTrue())
		gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusCompleted))
		gomega.Expect(string(stored.Payload)).To(gomega.ContainSubstring(`"raw":{`))
	})

	ginkgo.It("should fail when no order id can be found", func() {
		gateway.tx = gatewayTransaction("TX1", "", "10")

		_, err := verifier.Verify(ctx, "TX1", "")

		gomega.Expect(errors.IsCode(err, errors.ErrCodeOrderIDUnresolved)).To(gomega.BeTrue())
		gomega.Expect(repo.callCount()).To(gomega.BeZero())
	})

	ginkgo.It("should pass gateway failures through", func() {
		gateway.err = errors.ErrTxNotFound

		_, err := verifier.Verify(ctx, "nope", "ORD1")

		gomega.Expect(errors.IsCode(err, errors.ErrCodeTxNotFound)).To(gomega.BeTrue())
		gomega.Expect(repo.callCount()).To(gomega.BeZero())
	})

	ginkgo.It("should require a transaction id before calling MonCash", func() {
		_, err := verifier.Verify(ctx, " ", "ORD1")

		gomega.Expect(errors.IsCode(err, errors.ErrCodeMissingIdentifier)).To(gomega.BeTrue())
		gomega.Expect(gateway.calls).To(gomega.BeZero())
	})
})

var _ = ginkgo.Describe("VerifyHandler", func() {
	var (
		repo     *memoryRepository
		gateway  *mockGateway
		handler  *paymentpkg.VerifyHandler
		recorder *httptest.ResponseRecorder
	)

	get := func(target string) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		handler.HandleVerify(recorder, req)
	}

	ginkgo.BeforeEach(func() {
		repo = newMemoryRepository()
		gateway = &mockGateway{tx: gatewayTransaction("TX1", "ORD1", "99.95")}
		service := paymentpkg.NewService(repo, nil, logger.Discard(), paymentpkg.ServiceConfig{})
		verifier := paymentpkg.NewVerifyService(gateway, service, logger.Discard())
		handler = paymentpkg.NewVerifyHandler(transport.NewBaseHandler(logger.Discard()), verifier, nil)
		recorder = httptest.NewRecorder()
	})

	ginkgo.Context("when MonCash confirms the transaction", func() {
		ginkgo.It("should record it and echo the payment", func() {
			get("/api/verify?transactionId=TX1&orderId=ORD1")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("success", true))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("message", "Payment verified and recorded"))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("order_id", "ORD1"))
			gomega.Expect(body["payment"]).To(gomega.HaveKeyWithValue("transaction_id", "TX1"))
			gomega.Expect(gateway.last).To(gomega.Equal("TX1"))
			gomega.Expect(repo.get("ORD1").Status).To(gomega.Equal(payment.StatusCompleted))
		})

		ginkgo.It("should accept snake case query parameters", func() {
			get("/api/verify?transaction_id=TX1")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("order_id", "ORD1"))
		})
	})

	ginkgo.Context("when MonCash does not know the transaction", func() {
		ginkgo.It("should answer 404", func() {
			gateway.err = errors.ErrTxNotFound

			get("/api/verify?transactionId=UNKNOWN")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("error", "Transaction not found in MonCash"))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("code", "TRANSACTION_NOT_FOUND"))
		})
	})

	ginkgo.Context("when the transaction id is missing", func() {
		ginkgo.It("should answer 400", func() {
			get("/api/verify?orderId=ORD1")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("error", "Transaction ID is required"))
			gomega.Expect(gateway.calls).To(gomega.BeZero())
		})
	})

	ginkgo.Context("when the order id cannot be resolved", func() {
		ginkgo.It("should answer 400", func() {
			gateway.tx = gatewayTransaction("TX1", "", "1")

			get("/api/verify?transactionId=TX1")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("error", "Order ID not found"))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("code", "ORDER_ID_UNRESOLVABLE"))
		})
	})

	ginkgo.Context("when MonCash is unavailable", func() {
		ginkgo.It("should answer 500", func() {
			gateway.err = errors.ErrUpstreamDown

			get("/api/verify?transactionId=TX1")

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusInternalServerError))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("code", "UPSTREAM_UNAVAILABLE"))
		})
	})
})
