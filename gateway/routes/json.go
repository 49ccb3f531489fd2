package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"lendhub/crypto"
	nativelending "lendhub/native/lending"
	lendingsvc "lendhub/services/lending"
)

const requestLimit = 1 << 20 // 1 MiB

var errBadRequest = errors.New("bad request")

func decodeJSON(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("%w: missing request body", errBadRequest)
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode request: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	status, message := lendingsvc.StatusFor(err)
	writeJSON(w, status, map[string]string{"error": message})
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount %q", errBadRequest, raw)
	}
	return value, nil
}

func parseUint(raw, name string) (uint64, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, raw)
	}
	return value, nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: invalid address: %v", errBadRequest, err)
	}
	return addr, nil
}

// assetID folds compatibility forms so that a fullwidth or otherwise
// decorated identifier resolves to the registered pool.
func assetID(raw string) nativelending.AssetID {
	return nativelending.AssetID(norm.NFKC.String(strings.TrimSpace(raw)))
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type paymentJSON struct {
	Asset  string `json:"asset"`
	Nonce  uint64 `json:"nonce,omitempty"`
	Amount string `json:"amount"`
}

func (p paymentJSON) payment() (nativelending.Payment, error) {
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nativelending.Payment{}, err
	}
	return nativelending.Payment{Asset: assetID(p.Asset), Nonce: p.Nonce, Amount: amount}, nil
}

type nftRefJSON struct {
	Collection string `json:"collection"`
	Nonce      uint64 `json:"nonce"`
	Units      uint64 `json:"units"`
}

func nftRefView(ref nativelending.NFTRef) *nftRefJSON {
	if !ref.IsSet() {
		return nil
	}
	return &nftRefJSON{Collection: ref.Collection, Nonce: ref.Nonce, Units: ref.Units}
}

type depositJSON struct {
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Account     uint64 `json:"account"`
	Round       uint64 `json:"round"`
	SupplyIndex string `json:"supplyIndex"`
}

func depositView(p *nativelending.DepositPosition) *depositJSON {
	if p == nil {
		return nil
	}
	return &depositJSON{
		Asset:       string(p.Asset),
		Amount:      amountString(p.Amount),
		Account:     p.Owner,
		Round:       p.Round,
		SupplyIndex: amountString(p.SupplyIndex),
	}
}

type borrowJSON struct {
	Asset       string      `json:"asset"`
	Amount      string      `json:"amount"`
	Account     uint64      `json:"account,omitempty"`
	Certificate uint64      `json:"certificate,omitempty"`
	Round       uint64      `json:"round"`
	BorrowIndex string      `json:"borrowIndex"`
	Collateral  *nftRefJSON `json:"collateral,omitempty"`
}

func borrowView(p *nativelending.BorrowPosition) *borrowJSON {
	if p == nil {
		return nil
	}
	return &borrowJSON{
		Asset:       string(p.Asset),
		Amount:      amountString(p.Amount),
		Account:     p.Owner,
		Certificate: p.Certificate,
		Round:       p.Round,
		BorrowIndex: amountString(p.BorrowIndex),
		Collateral:  nftRefView(p.Collateral),
	}
}

func borrowViews(list []*nativelending.BorrowPosition) []*borrowJSON {
	out := make([]*borrowJSON, 0, len(list))
	for _, p := range list {
		out = append(out, borrowView(p))
	}
	return out
}

func depositViews(list []*nativelending.DepositPosition) []*depositJSON {
	out := make([]*depositJSON, 0, len(list))
	for _, p := range list {
		out = append(out, depositView(p))
	}
	return out
}

type poolJSON struct {
	Asset           string                   `json:"asset"`
	Address         string                   `json:"address"`
	Reserves        string                   `json:"reserves"`
	TotalSupplied   string                   `json:"totalSupplied"`
	TotalBorrowed   string                   `json:"totalBorrowed"`
	SupplyIndex     string                   `json:"supplyIndex"`
	BorrowIndex     string                   `json:"borrowIndex"`
	LastUpdateRound uint64                   `json:"lastUpdateRound"`
	BorrowRate      string                   `json:"borrowRate"`
	DepositRate     string                   `json:"depositRate"`
	Utilisation     string                   `json:"utilisation"`
	Params          nativelending.PoolParams `json:"params"`
}

func poolView(v *lendingsvc.PoolView) *poolJSON {
	out := &poolJSON{
		Asset:           string(v.Ledger.Asset),
		Address:         v.Address.String(),
		Reserves:        amountString(v.Ledger.Reserves),
		TotalSupplied:   amountString(v.Ledger.TotalSupplied),
		TotalBorrowed:   amountString(v.Ledger.TotalBorrowed),
		SupplyIndex:     amountString(v.Ledger.SupplyIndex),
		BorrowIndex:     amountString(v.Ledger.BorrowIndex),
		LastUpdateRound: v.Ledger.LastUpdateRound,
		Params:          v.Ledger.Params,
	}
	if v.Rates != nil {
		out.BorrowRate = amountString(v.Rates.BorrowRate)
		out.DepositRate = amountString(v.Rates.DepositRate)
		out.Utilisation = amountString(v.Rates.Utilisation)
	}
	return out
}
