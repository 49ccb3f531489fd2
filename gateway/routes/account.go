package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendhub/crypto"
	"lendhub/gateway/middleware"
	nativelending "lendhub/native/lending"
	lendingsvc "lendhub/services/lending"
)

func (h *handlers) context(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

func caller(r *http.Request) (crypto.Address, error) {
	addr, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return crypto.Address{}, lendingsvc.ErrUnauthenticated
	}
	return addr, nil
}

func (h *handlers) enterMarket(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	account, err := h.svc.EnterMarket(ctx, from)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"account": account})
}

type exitRequest struct {
	Account uint64 `json:"account"`
}

func (h *handlers) exitMarket(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req exitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	if err := h.svc.ExitMarket(ctx, from, req.Account); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addCollateralRequest struct {
	Account uint64      `json:"account"`
	Payment paymentJSON `json:"payment"`
}

func (h *handlers) addCollateral(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req addCollateralRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := req.Payment.payment()
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	pos, err := h.svc.AddCollateral(ctx, from, req.Account, payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositView(pos))
}

type removeCollateralRequest struct {
	Account uint64 `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

func (h *handlers) removeCollateral(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req removeCollateralRequest
	if err := decodeJSON(r, &req); err != nil {
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
	pos, err := h.svc.RemoveCollateral(ctx, from, req.Account, assetID(req.Asset), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if pos == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"closed": true})
		return
	}
	writeJSON(w, http.StatusOK, depositView(pos))
}

type borrowRequest struct {
	Account         uint64 `json:"account"`
	CollateralAsset string `json:"collateralAsset"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
}

func (h *handlers) borrow(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req borrowRequest
	if err := decodeJSON(r, &req); err != nil {
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
	pos, err := h.svc.Borrow(ctx, from, req.Account,
		assetID(req.CollateralAsset),
		assetID(req.Asset), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowView(pos))
}

type borrowNFTsRequest struct {
	Asset  string        `json:"asset"`
	Amount string        `json:"amount"`
	NFTs   []paymentJSON `json:"nfts"`
}

type borrowNFTsResponse struct {
	Positions []*borrowJSON `json:"positions"`
	Returned  []*nftRefJSON `json:"returned"`
}

func (h *handlers) borrowWithNFTs(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req borrowNFTsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	nfts := make([]nativelending.Payment, 0, len(req.NFTs))
	for _, n := range req.NFTs {
		p, err := n.payment()
		if err != nil {
			writeError(w, err)
			return
		}
		nfts = append(nfts, p)
	}
	ctx, cancel := h.context(r)
	defer cancel()
	result, err := h.svc.BorrowWithNFTs(ctx, from, assetID(req.Asset), amount, nfts)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := borrowNFTsResponse{Positions: borrowViews(result.Positions), Returned: make([]*nftRefJSON, 0, len(result.Returned))}
	for _, ref := range result.Returned {
		resp.Returned = append(resp.Returned, nftRefView(ref))
	}
	writeJSON(w, http.StatusOK, resp)
}

type repayRequest struct {
	Account uint64      `json:"account"`
	Payment paymentJSON `json:"payment"`
}

func (h *handlers) repay(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req repayRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := req.Payment.payment()
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	result, err := h.svc.Repay(ctx, from, req.Account, payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"position": borrowView(result.Position),
		"applied":  amountString(result.Applied),
		"refund":   amountString(result.Refund),
	})
}

type repayNFTsRequest struct {
	Payment      paymentJSON `json:"payment"`
	Certificates []uint64    `json:"certificates"`
}

func (h *handlers) repayNFTDebt(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req repayNFTsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := req.Payment.payment()
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	result, err := h.svc.RepayNFTDebt(ctx, from, payment, req.Certificates)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": borrowViews(result.Positions),
		"closed":    result.Closed,
		"refund":    amountString(result.Refund),
	})
}

type liquidateRequest struct {
	Account      uint64      `json:"account"`
	Threshold    uint64      `json:"threshold"`
	AssetToSeize string      `json:"assetToSeize"`
	Payment      paymentJSON `json:"payment"`
}

type seizureJSON struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (h *handlers) liquidate(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req liquidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := req.Payment.payment()
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	result, err := h.svc.Liquidate(ctx, from, req.Account, req.Threshold, assetID(req.AssetToSeize), payment)
	if err != nil {
		writeError(w, err)
		return
	}
	seized := make([]seizureJSON, 0, len(result.Seized))
	for _, s := range result.Seized {
		seized = append(seized, seizureJSON{Asset: string(s.Asset), Amount: amountString(s.Amount)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":     amountString(result.Applied),
		"refund":      amountString(result.Refund),
		"payoutValue": amountString(result.PayoutValue),
		"unpaid":      amountString(result.Unpaid),
		"seized":      seized,
	})
}

func (h *handlers) refreshAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseUint(chi.URLParam(r, "nonce"), "account")
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	view, err := h.svc.RefreshPositions(ctx, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(view))
}
