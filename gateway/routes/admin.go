package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	nativelending "lendhub/native/lending"
	lendingsvc "lendhub/services/lending"
)

type registerPoolRequest struct {
	Asset  string                   `json:"asset"`
	Params nativelending.PoolParams `json:"params"`
}

func (h *handlers) registerPool(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req registerPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	address, err := h.svc.RegisterPool(ctx, from, assetID(req.Asset), req.Params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"asset": strings.TrimSpace(req.Asset), "address": address.String()})
}

func (h *handlers) upgradePool(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var params nativelending.PoolParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.UpgradePool(ctx, from, assetID(chi.URLParam(r, "asset")), params); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type riskRequest struct {
	LoanToValue          *uint64 `json:"loanToValue"`
	LiquidationThreshold *uint64 `json:"liquidationThreshold"`
	LiquidationBonus     *uint64 `json:"liquidationBonus"`
}

func (h *handlers) setRisk(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	update := lendingsvc.RiskUpdate{
		LoanToValue:          req.LoanToValue,
		LiquidationThreshold: req.LiquidationThreshold,
		LiquidationBonus:     req.LiquidationBonus,
	}
	if err := h.svc.SetRisk(ctx, from, assetID(chi.URLParam(r, "asset")), update); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type collectionRequest struct {
	Collection  string `json:"collection"`
	FloorPrice  string `json:"floorPrice"`
	LoanToValue uint64 `json:"loanToValue"`
}

func (h *handlers) addCollection(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req collectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	floor, err := parseAmount(req.FloorPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.AddCollection(ctx, from, req.Collection, floor, req.LoanToValue); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type priceRequest struct {
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

func (h *handlers) setPrice(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetPrice(from, assetID(chi.URLParam(r, "asset")), price, req.Decimals); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type valueRequest struct {
	Value uint64 `json:"value"`
}

func (h *handlers) setMaxLiquidationThreshold(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req valueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.SetMaxLiquidationThreshold(ctx, from, req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (h *handlers) setPaused(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.SetPaused(ctx, from, chi.URLParam(r, "action"), req.Paused); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type creditRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (h *handlers) credit(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	holder, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.Credit(ctx, from, holder, assetID(req.Asset), amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type mintRequest struct {
	Address    string `json:"address"`
	Collection string `json:"collection"`
}

func (h *handlers) mintNFT(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	holder, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	nonce, err := h.svc.MintNFT(ctx, from, holder, strings.TrimSpace(req.Collection))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"nonce": nonce})
}
