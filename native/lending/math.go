package lending

import "math/big"

// BP is the base-points scale: BP represents 100%.
const BP = 100_000

// DefaultRoundsPerYear assumes six second rounds.
const DefaultRoundsPerYear = 5_256_000

var (
	basePoints = big.NewInt(BP)
	// ray is the fixed-point unit of every index.
	ray = mustBigInt("1000000000000000000000000000")
)

// Ray returns a copy of the index unit.
func Ray() *big.Int { return new(big.Int).Set(ray) }

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func indexOrRay(v *big.Int) *big.Int {
	if v == nil || v.Sign() == 0 {
		return new(big.Int).Set(ray)
	}
	return new(big.Int).Set(v)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// compound brings amount recorded against snapshot forward to index,
// truncating.
func compound(amount, index, snapshot *big.Int) *big.Int {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	snap := indexOrRay(snapshot)
	out := new(big.Int).Mul(amount, indexOrRay(index))
	return out.Quo(out, snap)
}

// mulBP returns value * bp / BP.
func mulBP(value *big.Int, bp uint64) *big.Int {
	out := new(big.Int).Mul(bigOrZero(value), new(big.Int).SetUint64(bp))
	return out.Quo(out, basePoints)
}
