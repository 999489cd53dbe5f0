// Package resource serves the redemption-status interface of the plugin.
//
// Routes, relative to the plugin root:
//
//	PUT /voucher           submit {"voucher": "<number>"} for redemption
//	GET /voucher           list every known voucher
//	GET /voucher/{number}  show one voucher
//
// Submitted vouchers are recorded in the ledger before the payment controller
// is asked to redeem them; the response does not wait for redemption.
package resource

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/zkapauthz/internal/store"
	"github.com/roach88/zkapauthz/internal/voucher"
)

// maxSubmitBytes bounds the size of a submission body.
const maxSubmitBytes = 64 << 10

// Ledger is the voucher persistence the resources read and write.
type Ledger interface {
	Add(ctx context.Context, number string, tokens ...voucher.RandomToken) error
	Get(ctx context.Context, number string) (voucher.Voucher, error)
	List(ctx context.Context) ([]voucher.Voucher, error)
}

// Controller is notified of every accepted voucher.
type Controller interface {
	Redeem(number string) error
}

// Handler serves the voucher collection and its members.
type Handler struct {
	logger     *slog.Logger
	ledger     Ledger
	controller Controller
}

// New creates a voucher Handler.
func New(ledger Ledger, controller Controller, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		ledger:     ledger,
		controller: controller,
	}
}

// Register registers the voucher routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Put("/voucher", h.handleSubmit)
	r.Get("/voucher", h.handleList)
	r.Get("/voucher/{number}", h.handleGet)
}

// handleSubmit records a voucher and starts its redemption.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	number, ok := parseSubmission(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	if !ok {
		h.logger.DebugContext(ctx, "rejected voucher submission", "request_id", requestID)
		badRequest(w)
		return
	}

	if err := h.ledger.Add(ctx, number); err != nil {
		h.logger.ErrorContext(ctx, "failed to record voucher",
			"request_id", requestID,
			"voucher", number,
			"error", err.Error(),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// The voucher is durable now. A failed trigger is picked up again when
	// the controller resumes unredeemed vouchers.
	if err := h.controller.Redeem(number); err != nil {
		h.logger.WarnContext(ctx, "failed to schedule redemption",
			"request_id", requestID,
			"voucher", number,
			"error", err.Error(),
		)
	}

	w.WriteHeader(http.StatusOK)
}

// handleList returns every known voucher.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vouchers, err := h.ledger.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list vouchers",
			"request_id", GetRequestID(ctx),
			"error", err.Error(),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := MarshalCollection(vouchers)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode vouchers", "error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, body)
}

// handleGet returns the view of a single voucher.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	number, err := pathParam(r, "number")
	if err != nil || !voucher.IsSyntactic(number) {
		badRequest(w)
		return
	}

	v, err := h.ledger.Get(ctx, number)
	if store.IsNotFound(err) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read voucher",
			"request_id", GetRequestID(ctx),
			"voucher", number,
			"error", err.Error(),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := v.Marshal()
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode voucher", "voucher", number, "error", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, body)
}

// parseSubmission extracts the voucher from a submission body. The body must
// be a JSON object whose only field is "voucher", holding a syntactically
// valid voucher.
func parseSubmission(body io.Reader) (string, bool) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", false
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	if len(payload) != 1 {
		return "", false
	}
	candidate, ok := payload["voucher"]
	if !ok || !voucher.IsSyntactic(candidate) {
		return "", false
	}
	return candidate.(string), true
}

// MarshalCollection renders the collection view: {"vouchers": [view, ...]}.
func MarshalCollection(vouchers []voucher.Voucher) ([]byte, error) {
	if vouchers == nil {
		vouchers = []voucher.Voucher{}
	}
	return json.Marshal(struct {
		Vouchers []voucher.Voucher `json:"vouchers"`
	}{vouchers})
}

// pathParam returns the named route parameter decoded exactly once. chi
// matches against r.URL.RawPath when it is set and r.URL.Path otherwise, so
// only a parameter taken from the raw path still needs unescaping.
func pathParam(r *http.Request, name string) (string, error) {
	value := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return value, nil
	}
	return url.PathUnescape(value)
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}
