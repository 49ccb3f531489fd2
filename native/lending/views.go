package lending

import (
	"context"
	"fmt"
	"math/big"
)

// The views below never write. Amounts are projected to the router's round
// with the same accrual path the pools use, so a view matches what a
// mark-to-market in that round would store.

// projectedLedger returns the ledger of asset refreshed in memory.
func (r *Router) projectedLedger(asset AssetID) (*PoolLedger, error) {
	ledger, ok, err := r.state.PoolLedger(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	if err := accrue(ledger, r.round); err != nil {
		return nil, err
	}
	return ledger, nil
}

// PoolLedger returns the ledger of asset as of the current round.
func (r *Router) PoolLedger(asset AssetID) (*PoolLedger, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.projectedLedger(asset)
}

// PoolRates reports the current borrow rate, deposit rate and utilisation of
// asset.
type PoolRates struct {
	BorrowRate  *big.Int
	DepositRate *big.Int
	Utilisation *big.Int
}

// Rates returns the rates implied by the current ledger of asset.
func (r *Router) Rates(asset AssetID) (*PoolRates, error) {
	ledger, err := r.PoolLedger(asset)
	if err != nil {
		return nil, err
	}
	borrowRate, depositRate, err := ledger.Params.Rates.Rates(ledger.TotalBorrowed, ledger.Reserves)
	if err != nil {
		return nil, err
	}
	return &PoolRates{
		BorrowRate:  borrowRate,
		DepositRate: depositRate,
		Utilisation: ledger.Params.Rates.Utilisation(ledger.TotalBorrowed, ledger.Reserves),
	}, nil
}

// Pools lists the registered assets in registration order.
func (r *Router) Pools() ([]AssetID, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.state.PoolAssets()
}

// Collections lists the registered NFT collections.
func (r *Router) Collections() ([]*CollectionParams, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ids, err := r.state.Collections()
	if err != nil {
		return nil, err
	}
	out := make([]*CollectionParams, 0, len(ids))
	for _, id := range ids {
		params, ok, err := r.state.Collection(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, params)
		}
	}
	return out, nil
}

// ActiveAccounts lists the active membership nonces.
func (r *Router) ActiveAccounts() ([]uint64, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	return r.state.ActiveAccounts()
}

// DepositPositions returns the account's deposits brought to the current
// round.
func (r *Router) DepositPositions(account uint64) ([]*DepositPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	stored, err := r.state.DepositPositions(account)
	if err != nil {
		return nil, err
	}
	out := make([]*DepositPosition, 0, len(stored))
	for _, pos := range stored {
		ledger, err := r.projectedLedger(pos.Asset)
		if err != nil {
			return nil, err
		}
		out = append(out, currentDeposit(ledger, pos, r.round))
	}
	return out, nil
}

// BorrowPositions returns the account's debts brought to the current round.
func (r *Router) BorrowPositions(account uint64) ([]*BorrowPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	stored, err := r.state.BorrowPositions(account)
	if err != nil {
		return nil, err
	}
	out := make([]*BorrowPosition, 0, len(stored))
	for _, pos := range stored {
		ledger, err := r.projectedLedger(pos.Asset)
		if err != nil {
			return nil, err
		}
		out = append(out, currentBorrow(ledger, pos, r.round))
	}
	return out, nil
}

// NFTBorrowPosition returns the debt behind a certificate, brought to the
// current round.
func (r *Router) NFTBorrowPosition(certificate uint64) (*BorrowPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	pos, ok, err := r.state.NFTBorrowPosition(certificate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: certificate %d", ErrPositionNotFound, certificate)
	}
	ledger, err := r.projectedLedger(pos.Asset)
	if err != nil {
		return nil, err
	}
	return currentBorrow(ledger, pos, r.round), nil
}

// CollateralAmount returns the account's current deposit of asset.
func (r *Router) CollateralAmount(account uint64, asset AssetID) (*big.Int, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	pos, ok, err := r.state.DepositPosition(account, asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	ledger, err := r.projectedLedger(asset)
	if err != nil {
		return nil, err
	}
	return currentDeposit(ledger, pos, r.round).Amount, nil
}

// TotalCollateralValue values every deposit of the account in the quote
// currency.
func (r *Router) TotalCollateralValue(ctx context.Context, account uint64) (*big.Int, error) {
	deposits, err := r.DepositPositions(account)
	if err != nil {
		return nil, err
	}
	return r.depositsValue(ctx, deposits)
}

// TotalBorrowValue values every debt of the account in the quote currency.
func (r *Router) TotalBorrowValue(ctx context.Context, account uint64) (*big.Int, error) {
	borrows, err := r.BorrowPositions(account)
	if err != nil {
		return nil, err
	}
	return r.borrowsValue(ctx, borrows)
}

// AccountHealth summarises an account's valuation.
type AccountHealth struct {
	CollateralValue *big.Int
	DebtValue       *big.Int
	// HealthFactor is in base points and nil when the account has no debt.
	HealthFactor *big.Int
	Liquidatable bool
}

// AccountHealth values the account with each deposit weighted by its own
// asset's liquidation threshold.
func (r *Router) AccountHealth(ctx context.Context, account uint64) (*AccountHealth, error) {
	deposits, err := r.DepositPositions(account)
	if err != nil {
		return nil, err
	}
	borrows, err := r.BorrowPositions(account)
	if err != nil {
		return nil, err
	}
	collateral, err := r.depositsValue(ctx, deposits)
	if err != nil {
		return nil, err
	}
	debt, err := r.borrowsValue(ctx, borrows)
	if err != nil {
		return nil, err
	}
	out := &AccountHealth{CollateralValue: collateral, DebtValue: debt}
	if debt.Sign() == 0 {
		return out, nil
	}
	weighted, err := r.weightedCollateral(ctx, deposits)
	if err != nil {
		return nil, err
	}
	hf, err := HealthFactor(weighted, debt, BP)
	if err != nil {
		return nil, err
	}
	out.HealthFactor = hf
	out.Liquidatable = IsLiquidatable(weighted, debt, BP)
	return out, nil
}
