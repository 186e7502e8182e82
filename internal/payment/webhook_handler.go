package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/payload"
	"github.com/frahmantamala/moncash-relay/internal/transport"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	*transport.BaseHandler
	reconciler ReconcilerAPI
	verifier   *SecretVerifier
	resolver   *payload.Resolver
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, reconciler ReconcilerAPI, verifier *SecretVerifier, resolver *payload.Resolver) *WebhookHandler {
	if resolver == nil {
		resolver = payload.Default()
	}
	return &WebhookHandler{
		BaseHandler: baseHandler,
		reconciler:  reconciler,
		verifier:    verifier,
		resolver:    resolver,
	}
}

// HandleMonCashWebhook records a payment notification pushed by MonCash.
func (h *WebhookHandler) HandleMonCashWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.HandleError(w, errors.ErrMethodNotAllowed)
		return
	}

	if !h.verifier.Verify(r) {
		h.Logger.Warn("invalid moncash webhook signature", "remote_addr", r.RemoteAddr)
		h.HandleError(w, errors.ErrInvalidSignature)
		return
	}

	raw, fields, err := h.parseBody(r)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("unable to read request body", errors.ErrCodeInvalidPayload).WithCause(err))
		return
	}

	if fields.TransactionID == "" || fields.OrderID == "" {
		h.Logger.Warn("webhook missing transactionId or orderId",
			"transaction_id", fields.TransactionID,
			"order_id", fields.OrderID)
		h.HandleError(w, errors.ErrMissingIdentifier)
		return
	}

	ctx := errors.ContextWithSource(r.Context(), SourceWebhook)
	result, err := h.reconciler.Reconcile(ctx, ReconcileInput{
		OrderID:       fields.OrderID,
		TransactionID: fields.TransactionID,
		Amount:        fields.Amount,
		RawPayload:    raw,
	})
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("moncash webhook recorded",
		"order_id", result.OrderID,
		"transaction_id", result.TransactionID,
		"outcome", result.Outcome)

	h.WriteJSON(w, http.StatusOK, WebhookResponse{OK: true, Created: result.Created})
}

// parseBody returns the payload as it should be stored and the canonical
// fields resolved from it. A body that is neither JSON nor a form is kept as
// a raw string and resolves to nothing.
func (h *WebhookHandler) parseBody(r *http.Request) (interface{}, payload.Fields, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return nil, payload.Fields{}, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return string(body), payload.Fields{}, nil
		}
		m := payload.FromValues(values)
		return m, h.resolver.ResolveAll(m), nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}, payload.Fields{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return strings.TrimSpace(string(body)), payload.Fields{}, nil
	}

	m, ok := decoded.(map[string]any)
	if !ok {
		return decoded, payload.Fields{}, nil
	}
	return m, h.resolver.ResolveAll(m), nil
}
