package payment

import (
	"net/http"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/payload"
	"github.com/frahmantamala/moncash-relay/internal/transport"
)

type VerifyHandler struct {
	*transport.BaseHandler
	verifier VerifierAPI
	resolver *payload.Resolver
}

func NewVerifyHandler(baseHandler *transport.BaseHandler, verifier VerifierAPI, resolver *payload.Resolver) *VerifyHandler {
	if resolver == nil {
		resolver = payload.Default()
	}
	return &VerifyHandler{
		BaseHandler: baseHandler,
		verifier:    verifier,
		resolver:    resolver,
	}
}

// HandleVerify re-checks a transaction with MonCash and records it.
func (h *VerifyHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	fields := h.resolver.ResolveQuery(r.URL.Query())
	req := VerifyRequest{TransactionID: fields.TransactionID, OrderID: fields.OrderID}
	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	ctx := errors.ContextWithSource(r.Context(), SourceVerify)
	result, err := h.verifier.Verify(ctx, req.TransactionID, req.OrderID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, VerifyResponse{
		Success: true,
		Message: "Payment verified and recorded",
		Created: result.Reconcile.Created,
		OrderID: result.OrderID,
		Payment: result.Transaction.Raw,
	})
}
