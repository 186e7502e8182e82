package payment

import (
	"embed"
	"html/template"
	"net/http"

	errors "github.com/frahmantamala/moncash-relay/internal"
	"github.com/frahmantamala/moncash-relay/internal/core/common/payload"
	"github.com/frahmantamala/moncash-relay/internal/transport"
)

//go:embed templates/*.html
var templateFS embed.FS

var statusTemplate = template.Must(template.ParseFS(templateFS, "templates/status.html"))

type pageState string

const (
	pageStateSuccess pageState = "success"
	pageStateError   pageState = "error"
	pageStateIdle    pageState = "idle"
)

type PageConfig struct {
	SupportContact string
	AppDeepLink    string
}

// PageData feeds templates/status.html.
type PageData struct {
	State          pageState
	Title          string
	Message        string
	Detail         string
	OrderID        string
	ReloadURL      string
	SupportContact string
	// AppDeepLink comes from operator config, so custom schemes are trusted.
	AppDeepLink template.URL
}

// PageHandler renders the landing page MonCash redirects the payer to. It is
// a fallback trigger for reconciliation when the webhook is late or lost.
type PageHandler struct {
	*transport.BaseHandler
	reconciler ReconcilerAPI
	verifier   VerifierAPI
	resolver   *payload.Resolver
	cfg        PageConfig
}

func NewPageHandler(baseHandler *transport.BaseHandler, reconciler ReconcilerAPI, verifier VerifierAPI, resolver *payload.Resolver, cfg PageConfig) *PageHandler {
	if resolver == nil {
		resolver = payload.Default()
	}
	if cfg.SupportContact == "" {
		cfg.SupportContact = "le support"
	}
	return &PageHandler{
		BaseHandler: baseHandler,
		reconciler:  reconciler,
		verifier:    verifier,
		resolver:    resolver,
		cfg:         cfg,
	}
}

func (h *PageHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fields := h.resolver.ResolveQuery(query)
	ctx := errors.ContextWithSource(r.Context(), SourceRedirect)

	data := PageData{
		OrderID:        fields.OrderID,
		ReloadURL:      r.URL.RequestURI(),
		SupportContact: h.cfg.SupportContact,
		AppDeepLink:    template.URL(h.cfg.AppDeepLink),
	}

	switch {
	case fields.TransactionID == "":
		data.State = pageStateIdle
		data.Title = "Aucune transaction"
		data.Message = "Aucun paramètre de transaction trouvé."
		h.render(w, http.StatusOK, data)
		return

	case fields.OrderID != "":
		_, err := h.reconciler.Reconcile(ctx, ReconcileInput{
			OrderID:       fields.OrderID,
			TransactionID: fields.TransactionID,
			Amount:        fields.Amount,
			RawPayload:    map[string]any{"raw_params": payload.FromValues(query)},
		})
		if err != nil {
			h.renderError(w, r, err, "Nous avons reçu votre paiement mais n'avons pas pu l'enregistrer automatiquement.")
			return
		}

	default:
		if h.verifier == nil {
			h.renderError(w, r, errors.ErrOrderIDUnresolved, "Impossible de vérifier la transaction.")
			return
		}
		result, err := h.verifier.Verify(ctx, fields.TransactionID, "")
		if err != nil {
			h.renderError(w, r, err, "Impossible de vérifier la transaction.")
			return
		}
		data.OrderID = result.OrderID
	}

	data.State = pageStateSuccess
	data.Title = "Paiement Réussi !"
	data.Message = "Merci ! Votre paiement a été confirmé avec succès."
	h.render(w, http.StatusOK, data)
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := http.StatusInternalServerError
	detail := ""
	if appErr, ok := errors.IsAppError(err); ok {
		status = appErr.StatusCode
		detail = appErr.Message
	}
	h.Logger.Warn("landing page reconciliation failed", "error", err, "status", status)

	h.render(w, status, PageData{
		State:          pageStateError,
		Title:          "Oups !",
		Message:        message,
		Detail:         detail,
		ReloadURL:      r.URL.RequestURI(),
		SupportContact: h.cfg.SupportContact,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, status int, data PageData) {
	if data.ReloadURL == "" {
		data.ReloadURL = "."
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := statusTemplate.Execute(w, data); err != nil {
		h.Logger.Error("failed to render landing page", "error", err)
	}
}
