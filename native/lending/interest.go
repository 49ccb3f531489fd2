package lending

import (
	"fmt"
	"math/big"
)

// RateModel holds the kinked borrow curve of a pool. Every field is expressed
// in base points.
type RateModel struct {
	BaseRate           uint64 `toml:"base_rate" json:"baseRate"`
	Slope1             uint64 `toml:"slope1" json:"slope1"`
	Slope2             uint64 `toml:"slope2" json:"slope2"`
	OptimalUtilisation uint64 `toml:"optimal_utilisation" json:"optimalUtilisation"`
	ReserveFactor      uint64 `toml:"reserve_factor" json:"reserveFactor"`
}

// Validate rejects parameter sets that would divide by zero or exceed 100%.
func (m RateModel) Validate() error {
	if m.OptimalUtilisation == 0 || m.OptimalUtilisation >= BP {
		return fmt.Errorf("%w: optimal utilisation %d outside (0, %d)", ErrRateModelMisconfigured, m.OptimalUtilisation, BP)
	}
	if m.ReserveFactor > BP {
		return fmt.Errorf("%w: reserve factor %d above %d", ErrRateModelMisconfigured, m.ReserveFactor, BP)
	}
	return nil
}

// BorrowRate evaluates the kinked curve at utilisation.
func BorrowRate(base, slope1, slope2, optimal, utilisation *big.Int) (*big.Int, error) {
	if optimal == nil || optimal.Sign() == 0 {
		return nil, fmt.Errorf("%w: optimal utilisation is zero", ErrRateModelMisconfigured)
	}
	u := bigOrZero(utilisation)
	rate := cloneBig(base)
	if u.Cmp(optimal) < 0 {
		step := new(big.Int).Mul(u, bigOrZero(slope1))
		step.Quo(step, optimal)
		return rate.Add(rate, step), nil
	}
	denominator := new(big.Int).Sub(basePoints, optimal)
	if denominator.Sign() <= 0 {
		return nil, fmt.Errorf("%w: optimal utilisation leaves no room above the kink", ErrRateModelMisconfigured)
	}
	excess := new(big.Int).Sub(u, optimal)
	excess.Mul(excess, bigOrZero(slope2))
	excess.Quo(excess, denominator)
	rate.Add(rate, bigOrZero(slope1))
	return rate.Add(rate, excess), nil
}

// DepositRate returns u^2 * borrowRate * (BP - reserveFactor) / BP^3.
func DepositRate(utilisation, borrowRate, reserveFactor *big.Int) *big.Int {
	keep := new(big.Int).Sub(basePoints, bigOrZero(reserveFactor))
	if keep.Sign() <= 0 {
		return big.NewInt(0)
	}
	u := bigOrZero(utilisation)
	rate := new(big.Int).Mul(u, u)
	rate.Mul(rate, bigOrZero(borrowRate))
	rate.Mul(rate, keep)
	denominator := new(big.Int).Exp(basePoints, big.NewInt(3), nil)
	return rate.Quo(rate, denominator)
}

// CapitalUtilisation returns borrowed * BP / reserves. Empty reserves are an
// error; callers decide how an empty pool is treated.
func CapitalUtilisation(borrowed, reserves *big.Int) (*big.Int, error) {
	if reserves == nil || reserves.Sign() == 0 {
		return nil, fmt.Errorf("lending: capital utilisation: division by zero reserves")
	}
	u := new(big.Int).Mul(bigOrZero(borrowed), basePoints)
	return u.Quo(u, reserves), nil
}

// Utilisation is the pool-level view of CapitalUtilisation: empty pools are
// idle unless they still carry debt, and the ratio is capped at BP.
func (m RateModel) Utilisation(borrowed, reserves *big.Int) *big.Int {
	if bigOrZero(reserves).Sign() == 0 {
		if bigOrZero(borrowed).Sign() == 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Set(basePoints)
	}
	u, _ := CapitalUtilisation(borrowed, reserves)
	if u.Cmp(basePoints) > 0 {
		return new(big.Int).Set(basePoints)
	}
	return u
}

// Rates returns the borrow and deposit rates implied by the ledger totals.
func (m RateModel) Rates(borrowed, reserves *big.Int) (borrowRate, depositRate *big.Int, err error) {
	u := m.Utilisation(borrowed, reserves)
	borrowRate, err = BorrowRate(
		new(big.Int).SetUint64(m.BaseRate),
		new(big.Int).SetUint64(m.Slope1),
		new(big.Int).SetUint64(m.Slope2),
		new(big.Int).SetUint64(m.OptimalUtilisation),
		u,
	)
	if err != nil {
		return nil, nil, err
	}
	depositRate = DepositRate(u, borrowRate, new(big.Int).SetUint64(m.ReserveFactor))
	return borrowRate, depositRate, nil
}
