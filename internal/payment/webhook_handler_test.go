package payment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/moncash-relay/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/moncash-relay/internal/payment"
	"github.com/frahmantamala/moncash-relay/internal/transport"
	"github.com/frahmantamala/moncash-relay/pkg/logger"
)

func decodeBody(recorder *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &body)).To(gomega.Succeed())
	return body
}

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		repo     *memoryRepository
		service  *paymentpkg.Service
		secret   string
		recorder *httptest.ResponseRecorder
	)

	newHandler := func() *paymentpkg.WebhookHandler {
		return paymentpkg.NewWebhookHandler(
			transport.NewBaseHandler(logger.Discard()),
			service,
			paymentpkg.NewSecretVerifier(secret),
			nil,
		)
	}

	post := func(contentType, body string, headers map[string]string) {
		req := httptest.NewRequest(http.MethodPost, "/api/moncash-webhook", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		newHandler().HandleMonCashWebhook(recorder, req)
	}

	ginkgo.BeforeEach(func() {
		repo = newMemoryRepository()
		service = paymentpkg.NewService(repo, nil, logger.Discard(), paymentpkg.ServiceConfig{})
		secret = ""
		recorder = httptest.NewRecorder()
	})

	ginkgo.Context("when a JSON notification arrives for a new order", func() {
		ginkgo.It("should record a completed payment", func() {
			post("application/json", `{"transactionId":"TX1","orderId":"ORD1","amount":"150.00"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("ok", true))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("created", true))

			stored := repo.get("ORD1")
			gomega.Expect(stored).ToNot(gomega.BeNil())
			gomega.Expect(*stored.MonCashTransactionID).To(gomega.Equal("TX1"))
			gomega.Expect(stored.AmountHTG.Equal(decimal.RequireFromString("150.00"))).To(gomega.BeTrue())
			gomega.Expect(stored.Status).To(gomega.Equal(payment.StatusCompleted))
		})
	})

	ginkgo.Context("when the amount is not a finite number", func() {
		ginkgo.It("should record the payment with a zero amount", func() {
			post("application/json", `{"transactionId":"TX9","orderId":"ORD9","amount":"NaN"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			stored := repo.get("ORD9")
			gomega.Expect(stored).ToNot(gomega.BeNil())
			gomega.Expect(stored.AmountHTG.IsZero()).To(gomega.BeTrue())
		})
	})

	ginkgo.Context("when the order is already pending", func() {
		ginkgo.It("should complete the existing record", func() {
			_, err := service.RegisterPending(context.Background(), "ORD2", decimal.RequireFromString("300"))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			post("application/json", `{"transactionId":"TX2","orderId":"ORD2"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("created", false))
			gomega.Expect(repo.count()).To(gomega.Equal(1))
			gomega.Expect(repo.get("ORD2").Status).To(gomega.Equal(payment.StatusCompleted))
			gomega.Expect(*repo.get("ORD2").MonCashTransactionID).To(gomega.Equal("TX2"))
		})
	})

	ginkgo.Context("when the body is form encoded", func() {
		ginkgo.It("should read the fields from the form", func() {
			post("application/x-www-form-urlencoded", "txn_id=TX7&client_order_id=ORD7&mc_gross=42.5", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			stored := repo.get("ORD7")
			gomega.Expect(*stored.MonCashTransactionID).To(gomega.Equal("TX7"))
			gomega.Expect(stored.AmountHTG.Equal(decimal.RequireFromString("42.5"))).To(gomega.BeTrue())
		})
	})

	ginkgo.DescribeTable("field aliases",
		func(body string) {
			post("application/json", body, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			stored := repo.get("O1")
			gomega.Expect(stored).ToNot(gomega.BeNil())
			gomega.Expect(*stored.MonCashTransactionID).To(gomega.Equal("T1"))
		},
		ginkgo.Entry("snake case", `{"transaction_id":"T1","order_id":"O1"}`),
		ginkgo.Entry("moncash names", `{"mc_transaction_id":"T1","order":"O1"}`),
		ginkgo.Entry("short names", `{"tid":"T1","reference":"O1"}`),
		ginkgo.Entry("order reference with numeric amount", `{"transactionId":"T1","orderRef":"O1","amount":12}`),
	)

	ginkgo.Context("when an identifier is missing", func() {
		ginkgo.It("should reject with 400 and not touch storage", func() {
			post("application/json", `{"transactionId":"TX1"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("error", "Missing transactionId or orderId"))
			gomega.Expect(body).To(gomega.HaveKeyWithValue("code", "MISSING_IDENTIFIER"))
			gomega.Expect(repo.callCount()).To(gomega.BeZero())
		})

		ginkgo.It("should reject a body that is not JSON", func() {
			post("text/plain", "hello moncash", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(repo.callCount()).To(gomega.BeZero())
		})
	})

	ginkgo.Context("when the method is not POST", func() {
		ginkgo.It("should answer 405 with an Allow header", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/moncash-webhook", nil)
			newHandler().HandleMonCashWebhook(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusMethodNotAllowed))
			gomega.Expect(recorder.Header().Get("Allow")).To(gomega.Equal("POST"))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("error", "Method Not Allowed"))
		})
	})

	ginkgo.Context("when a webhook secret is configured", func() {
		ginkgo.BeforeEach(func() {
			secret = "s3cr3t"
		})

		ginkgo.It("should reject a request without the secret", func() {
			post("application/json", `{"transactionId":"TX1","orderId":"ORD1"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(decodeBody(recorder)).To(gomega.HaveKeyWithValue("error", "Invalid webhook signature"))
			gomega.Expect(repo.callCount()).To(gomega.BeZero())
		})

		ginkgo.It("should reject a wrong secret", func() {
			post("application/json", `{"transactionId":"TX1","orderId":"ORD1"}`, map[string]string{"x-hook-secret": "guess"})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(repo.callCount()).To(gomega.BeZero())
		})

		ginkgo.DescribeTable("should accept the secret from any supported header",
			func(header, value string) {
				post("application/json", `{"transactionId":"TX1","orderId":"ORD1"}`, map[string]string{header: value})

				gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			},
			ginkgo.Entry("x-moncash-signature", "x-moncash-signature", "s3cr3t"),
			ginkgo.Entry("x-hook-secret", "x-hook-secret", "s3cr3t"),
			ginkgo.Entry("x-secret", "x-secret", "s3cr3t"),
			ginkgo.Entry("authorization", "Authorization", "s3cr3t"),
			ginkgo.Entry("bearer authorization", "Authorization", "Bearer s3cr3t"),
		)

		ginkgo.It("should accept the secret when configured as a bcrypt hash", func() {
			hash, err := bcrypt.GenerateFromPassword([]byte("s3cr3t"), bcrypt.MinCost)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			secret = string(hash)

			post("application/json", `{"transactionId":"TX1","orderId":"ORD1"}`, map[string]string{"x-secret": "s3cr3t"})

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		})
	})

	ginkgo.Context("when storage fails", func() {
		ginkgo.It("should answer 500 with a storage error", func() {
			repo.failWith = fmt.Errorf("db down")

			post("application/json", `{"transactionId":"TX1","orderId":"ORD1"}`, nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusInternalServerError))
			body := decodeBody(recorder)
			gomega.Expect(body).To(gomega.HaveKeyWithValue("code", "STORAGE_ERROR"))
			gomega.Expect(body).ToNot(gomega.HaveKey("details"))
			gomega.Expect(recorder.Body.String()).ToNot(gomega.ContainSubstring("db down"))
		})
	})
})
