package lending

import (
	"math/big"
)

// accrue advances both indices of ledger to round using the rates implied by
// the ledger totals before the refresh. Calling it again in the same round is
// a no-op, and a round older than the last update never moves the indices.
func accrue(ledger *PoolLedger, round uint64) error {
	ledger.ensureDefaults()
	if round <= ledger.LastUpdateRound {
		return nil
	}
	delta := round - ledger.LastUpdateRound
	borrowRate, depositRate, err := ledger.Params.Rates.Rates(ledger.TotalBorrowed, ledger.Reserves)
	if err != nil {
		return err
	}
	denominator := new(big.Int).Mul(basePoints, new(big.Int).SetUint64(ledger.Params.roundsPerYear()))
	ledger.BorrowIndex = grow(ledger.BorrowIndex, borrowRate, delta, denominator)
	ledger.SupplyIndex = grow(ledger.SupplyIndex, depositRate, delta, denominator)
	ledger.LastUpdateRound = round
	return nil
}

// grow returns index + index*rate*delta/denominator.
func grow(index, rate *big.Int, delta uint64, denominator *big.Int) *big.Int {
	if rate == nil || rate.Sign() == 0 || delta == 0 {
		return new(big.Int).Set(index)
	}
	step := new(big.Int).Mul(index, rate)
	step.Mul(step, new(big.Int).SetUint64(delta))
	step.Quo(step, denominator)
	return step.Add(step, index)
}

// currentDeposit brings pos forward to the ledger's supply index.
func currentDeposit(ledger *PoolLedger, pos *DepositPosition, round uint64) *DepositPosition {
	out := pos.Clone()
	out.Amount = compound(pos.Amount, ledger.SupplyIndex, pos.SupplyIndex)
	out.SupplyIndex = new(big.Int).Set(ledger.SupplyIndex)
	out.Round = round
	return out
}

// currentBorrow brings pos forward to the ledger's borrow index and realizes
// the accrued interest into the ledger's total borrowed.
func currentBorrow(ledger *PoolLedger, pos *BorrowPosition, round uint64) *BorrowPosition {
	out := pos.Clone()
	out.Amount = compound(pos.Amount, ledger.BorrowIndex, pos.BorrowIndex)
	if interest := new(big.Int).Sub(out.Amount, bigOrZero(pos.Amount)); interest.Sign() > 0 {
		ledger.TotalBorrowed = new(big.Int).Add(ledger.TotalBorrowed, interest)
	}
	out.BorrowIndex = new(big.Int).Set(ledger.BorrowIndex)
	out.Round = round
	return out
}
