package handler

import (
	"net/http"

	"github.com/templui/picsellart/internal/ctxkeys"
	"github.com/templui/picsellart/internal/model"
	"github.com/templui/picsellart/internal/service"
)

type AccountHandler struct {
	quota      *service.QuotaLedger
	reconciler *service.Reconciler
	currency   string
}

func NewAccountHandler(quota *service.QuotaLedger, reconciler *service.Reconciler, currency string) *AccountHandler {
	return &AccountHandler{
		quota:      quota,
		reconciler: reconciler,
		currency:   currency,
	}
}

type packResponse struct {
	model.Pack
	DisplayPrice    string `json:"displayPrice"`
	DisplayMaxPrice string `json:"displayMaxPricePerItem"`
}

func (h *AccountHandler) Packs(w http.ResponseWriter, r *http.Request) {
	packs := model.Packs()
	out := make([]packResponse, 0, len(packs))
	for _, p := range packs {
		out = append(out, packResponse{
			Pack:            p,
			DisplayPrice:    model.FormatAmount(p.Price, h.currency),
			DisplayMaxPrice: model.FormatAmount(p.MaxPricePerItem, h.currency),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type planResponse struct {
	*model.SellerPlan
	Active    bool `json:"active"`
	Remaining int  `json:"remaining"`
}

// Plan returns the caller's seller plan.
func (h *AccountHandler) Plan(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	plan, err := h.quota.Plan(r.Context(), identity.UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		SellerPlan: plan,
		Active:     h.quota.Active(plan),
		Remaining:  plan.Remaining(),
	})
}

// Purchases lists what the caller owns.
func (h *AccountHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	identity := ctxkeys.Identity(r.Context())

	purchases, err := h.reconciler.Purchases(r.Context(), identity.UID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if purchases == nil {
		purchases = []*model.Purchase{}
	}
	writeJSON(w, http.StatusOK, purchases)
}
