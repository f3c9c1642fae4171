package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/templui/picsellart/internal/ctxkeys"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/service"
)

const maxCallbackBody = 256 << 10

type OrderHandler struct {
	reconciler *service.Reconciler
}

func NewOrderHandler(reconciler *service.Reconciler) *OrderHandler {
	return &OrderHandler{
		reconciler: reconciler,
	}
}

type photoOrderRequest struct {
	PhotoID string `json:"photoId"`
}

type packOrderRequest struct {
	PackID string `json:"packId"`
}

type ignoredResponse struct {
	Status string `json:"status"`
}

// CreatePhotoOrder opens a checkout for one listing. The price always comes
// from the listing.
func (h *OrderHandler) CreatePhotoOrder(w http.ResponseWriter, r *http.Request) {
	var req photoOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PhotoID) == "" {
		writeError(w, r, service.ValidationError("photoId is required"))
		return
	}
	h.createOrder(w, r, model.OrderKindListing, req.PhotoID)
}

func (h *OrderHandler) CreatePackOrder(w http.ResponseWriter, r *http.Request) {
	var req packOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PackID) == "" {
		writeError(w, r, service.ValidationError("packId is required"))
		return
	}
	h.createOrder(w, r, model.OrderKindPlan, req.PackID)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request, kind model.OrderKind, subjectID string) {
	identity := ctxkeys.Identity(r.Context())

	order, err := h.reconciler.CreateOrder(r.Context(), kind, subjectID, *identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// VerifyPhotoPayment settles a listing order from the raw checkout callback
// forwarded by the buyer's client.
func (h *OrderHandler) VerifyPhotoPayment(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, model.OrderKindListing)
}

func (h *OrderHandler) VerifyPackPayment(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, model.OrderKindPlan)
}

func (h *OrderHandler) verify(w http.ResponseWriter, r *http.Request, kind model.OrderKind) {
	payload, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.reconciler.VerifyAndSettle(r.Context(), service.Callback{
		Payload:   payload,
		Headers:   r.Header,
		Requester: ctxkeys.Identity(r.Context()),
		Kind:      kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusAccepted, ignoredResponse{Status: "ignored"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Webhook receives server-to-server gateway events. Outcomes that a
// redelivery cannot change are acknowledged so the gateway stops retrying.
func (h *OrderHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	_, err = h.reconciler.VerifyAndSettle(r.Context(), service.Callback{
		Payload: payload,
		Headers: r.Header,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrOrderFailed), errors.Is(err, service.ErrAmountMismatch):
		slog.Warn("webhook acknowledged without effect", "error", err)
	default:
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBody)
	defer func() {
		closeErr := r.Body.Close()
		if closeErr != nil {
			slog.Error("failed to close request body", "error", closeErr)
		}
	}()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, service.ValidationError("empty callback payload")
	}
	return payload, nil
}
