package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	lendingsvc "lendhub/services/lending"
)

type accountJSON struct {
	Account  uint64         `json:"account"`
	Active   bool           `json:"active"`
	Deposits []*depositJSON `json:"deposits"`
	Borrows  []*borrowJSON  `json:"borrows"`
}

func accountView(v *lendingsvc.AccountView) *accountJSON {
	return &accountJSON{
		Account:  v.Account,
		Active:   v.Active,
		Deposits: depositViews(v.Deposits),
		Borrows:  borrowViews(v.Borrows),
	}
}

func (h *handlers) listPools(w http.ResponseWriter, _ *http.Request) {
	pools, err := h.svc.Pools()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*poolJSON, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolView(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pools": out})
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request) {
	pool, err := h.svc.Pool(assetID(chi.URLParam(r, "asset")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolView(pool))
}

type collectionJSON struct {
	Collection  string `json:"collection"`
	FloorPrice  string `json:"floorPrice"`
	LoanToValue uint64 `json:"loanToValue"`
}

func (h *handlers) listCollections(w http.ResponseWriter, _ *http.Request) {
	collections, err := h.svc.Collections()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]collectionJSON, 0, len(collections))
	for _, c := range collections {
		out = append(out, collectionJSON{Collection: c.Collection, FloorPrice: amountString(c.FloorPrice), LoanToValue: c.LoanToValue})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"collections": out})
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseUint(chi.URLParam(r, "nonce"), "account")
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.svc.Account(account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(view))
}

func (h *handlers) getAccountHealth(w http.ResponseWriter, r *http.Request) {
	account, err := parseUint(chi.URLParam(r, "nonce"), "account")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	health, err := h.svc.AccountHealth(ctx, account)
	if err != nil {
		writeError(w, err)
		return
	}
	out := map[string]interface{}{
		"account":         account,
		"collateralValue": amountString(health.CollateralValue),
		"debtValue":       amountString(health.DebtValue),
		"liquidatable":    health.Liquidatable,
	}
	if health.HealthFactor != nil {
		out["healthFactor"] = health.HealthFactor.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getDebt(w http.ResponseWriter, r *http.Request) {
	certificate, err := parseUint(chi.URLParam(r, "certificate"), "certificate")
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.svc.NFTBorrowPosition(certificate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowView(pos))
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	var nonce uint64
	if raw := r.URL.Query().Get("nonce"); raw != "" {
		if nonce, err = parseUint(raw, "nonce"); err != nil {
			writeError(w, err)
			return
		}
	}
	asset := string(assetID(chi.URLParam(r, "asset")))
	balance, err := h.svc.Balance(holder, asset, nonce)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": holder.String(),
		"asset":   asset,
		"nonce":   nonce,
		"balance": amountString(balance),
	})
}
