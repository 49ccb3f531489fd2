package lending

import (
	"context"
	"fmt"
	"math/big"

	"lendhub/core/events"
	"lendhub/crypto"
)

// Seizure is one collateral transfer made to a liquidator.
type Seizure struct {
	Asset  AssetID
	Amount *big.Int
}

// LiquidationResult reports what a liquidation applied and paid out.
type LiquidationResult struct {
	Applied     *big.Int
	Refund      *big.Int
	PayoutValue *big.Int
	// Unpaid is the payout value left over when the account's collateral ran
	// out first.
	Unpaid *big.Int
	Seized []Seizure
}

// Liquidate repays debt of an unhealthy account with payment, already held by
// the router, and hands the liquidator collateral worth the applied payment
// plus the liquidation bonus of assetToSeize. Collateral is taken first-fit
// from the deposits in stored order: a position worth less than the payout
// still owed is drained entirely, the first one that is not is drained
// partially and the walk stops.
func (r *Router) Liquidate(ctx context.Context, liquidator crypto.Address, account uint64, threshold uint64, assetToSeize AssetID, payment Payment) (*LiquidationResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionLiquidate)
	if err != nil {
		return nil, err
	}
	if liquidator.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := positiveAmount(payment.Amount); err != nil {
		return nil, err
	}
	if err := r.member(account); err != nil {
		return nil, err
	}
	if threshold == 0 {
		return nil, fmt.Errorf("%w: liquidation threshold must be positive", ErrInvalidParameter)
	}
	if threshold > settings.MaxLiquidationThreshold {
		return nil, fmt.Errorf("%w: %d > %d", ErrThresholdTooHigh, threshold, settings.MaxLiquidationThreshold)
	}
	if !payment.IsFungible() || payment.Asset != assetToSeize {
		return nil, fmt.Errorf("%w: paid %s, seizing %s", ErrAssetMismatch, payment.Asset, assetToSeize)
	}
	seizePool, err := r.pool(assetToSeize)
	if err != nil {
		return nil, err
	}

	deposits, borrows, err := r.markToMarket(account)
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
	if !IsLiquidatable(collateral, debt, threshold) {
		return nil, fmt.Errorf("%w: collateral %s, debt %s", ErrNotLiquidatable, collateral, debt)
	}
	quote, err := r.price(ctx, assetToSeize)
	if err != nil {
		return nil, err
	}
	required := mulBP(debt, threshold)
	if quote.Value(payment.Amount).Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: need value %s", ErrPaymentTooSmall, required)
	}

	var debtPos *BorrowPosition
	for _, b := range borrows {
		if b.Asset == assetToSeize {
			debtPos = b
			break
		}
	}
	if debtPos == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDebtInAsset, assetToSeize)
	}
	repaid, refund, err := seizePool.Repay(r.call(), liquidator, debtPos, payment)
	if err != nil {
		return nil, err
	}
	if err := r.storeBorrow(repaid); err != nil {
		return nil, err
	}
	applied := new(big.Int).Sub(payment.Amount, refund)

	ledger, err := seizePool.Ledger()
	if err != nil {
		return nil, err
	}
	payout := quote.Value(applied)
	payout.Mul(payout, new(big.Int).SetUint64(BP+ledger.Params.Risk.LiquidationBonus))
	payout.Quo(payout, basePoints)

	remaining := new(big.Int).Set(payout)
	var seized []Seizure
	for _, pos := range deposits {
		if remaining.Sign() == 0 {
			break
		}
		q, err := r.price(ctx, pos.Asset)
		if err != nil {
			return nil, err
		}
		value := q.Value(pos.Amount)
		take := new(big.Int).Set(pos.Amount)
		if value.Cmp(remaining) < 0 {
			remaining.Sub(remaining, value)
		} else {
			take = q.Units(remaining)
			remaining.SetInt64(0)
		}
		if take.Sign() == 0 {
			continue
		}
		pool, err := r.pool(pos.Asset)
		if err != nil {
			return nil, err
		}
		if err := pool.SendTokens(r.call(), liquidator, take); err != nil {
			return nil, err
		}
		drained := pos.Clone()
		drained.Amount = new(big.Int).Sub(pos.Amount, take)
		if err := r.storeDeposit(drained); err != nil {
			return nil, err
		}
		seized = append(seized, Seizure{Asset: pos.Asset, Amount: take})
	}

	evtSeized := make([]events.Seizure, len(seized))
	for i, s := range seized {
		evtSeized[i] = events.Seizure{Asset: string(s.Asset), Amount: s.Amount}
	}
	r.emitter.Emit(events.Liquidated{
		Account:     account,
		Liquidator:  liquidator.String(),
		Asset:       string(assetToSeize),
		Payment:     applied,
		PayoutValue: payout,
		Seized:      evtSeized,
	})
	r.logger.Info("lending liquidation",
		"account", account,
		"liquidator", liquidator.String(),
		"asset", string(assetToSeize),
		"applied", applied.String(),
		"payoutValue", payout.String(),
		"seizedPositions", len(seized))

	return &LiquidationResult{
		Applied:     applied,
		Refund:      refund,
		PayoutValue: payout,
		Unpaid:      remaining,
		Seized:      seized,
	}, nil
}
