package lending

import (
	"context"
	"errors"
	"math/big"
)

var errZeroDebt = errors.New("lending: health factor undefined without debt")

// HealthFactor returns collateral*threshold/debt in base points: BP means the
// account sits exactly at the threshold. It fails when debt is zero.
func HealthFactor(collateralValue, debtValue *big.Int, threshold uint64) (*big.Int, error) {
	if debtValue == nil || debtValue.Sign() == 0 {
		return nil, errZeroDebt
	}
	hf := new(big.Int).Mul(bigOrZero(collateralValue), new(big.Int).SetUint64(threshold))
	return hf.Quo(hf, debtValue), nil
}

// IsLiquidatable reports collateral*threshold < debt*BP. The comparison is
// exact, so an account sitting on the boundary is not liquidatable, and an
// account without debt never is.
func IsLiquidatable(collateralValue, debtValue *big.Int, threshold uint64) bool {
	if debtValue == nil || debtValue.Sign() == 0 {
		return false
	}
	lhs := new(big.Int).Mul(bigOrZero(collateralValue), new(big.Int).SetUint64(threshold))
	rhs := new(big.Int).Mul(debtValue, basePoints)
	return lhs.Cmp(rhs) < 0
}

func (r *Router) depositsValue(ctx context.Context, deposits []*DepositPosition) (*big.Int, error) {
	total := big.NewInt(0)
	for _, pos := range deposits {
		quote, err := r.price(ctx, pos.Asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, quote.Value(pos.Amount))
	}
	return total, nil
}

func (r *Router) borrowsValue(ctx context.Context, borrows []*BorrowPosition) (*big.Int, error) {
	total := big.NewInt(0)
	for _, pos := range borrows {
		quote, err := r.price(ctx, pos.Asset)
		if err != nil {
			return nil, err
		}
		total.Add(total, quote.Value(pos.Amount))
	}
	return total, nil
}

// weightedCollateral sums value_i * liquidation_threshold_i / BP over the
// deposits, using each asset's own threshold.
func (r *Router) weightedCollateral(ctx context.Context, deposits []*DepositPosition) (*big.Int, error) {
	total := big.NewInt(0)
	for _, pos := range deposits {
		quote, err := r.price(ctx, pos.Asset)
		if err != nil {
			return nil, err
		}
		ledger, ok, err := r.state.PoolLedger(pos.Asset)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAssetNotRegistered
		}
		total.Add(total, mulBP(quote.Value(pos.Amount), ledger.Params.Risk.LiquidationThreshold))
	}
	return total, nil
}
