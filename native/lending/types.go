package lending

import (
	"math/big"
)

// AssetID is an opaque token identifier such as "USDC-123456".
type AssetID string

// Payment is an asset-tagged transfer attached to a call. Nonce zero marks a
// fungible amount; a non-zero nonce names one non-fungible unit of the
// collection given by Asset, with Amount counting units.
type Payment struct {
	Asset  AssetID
	Nonce  uint64
	Amount *big.Int
}

// IsFungible reports whether the payment carries a fungible amount.
func (p Payment) IsFungible() bool { return p.Nonce == 0 }

// Clone returns a deep copy of the payment.
func (p Payment) Clone() Payment {
	return Payment{Asset: p.Asset, Nonce: p.Nonce, Amount: cloneBig(p.Amount)}
}

// NFTRef points at a collateral unit held in router custody.
type NFTRef struct {
	Collection string
	Nonce      uint64
	Units      uint64
}

// IsSet reports whether the reference names a unit.
func (r NFTRef) IsSet() bool { return r.Collection != "" && r.Nonce != 0 }

// DepositPosition records an account's collateral in one asset.
type DepositPosition struct {
	Asset AssetID
	// Amount already includes interest up to Round.
	Amount *big.Int
	// Owner is the nonce of the account's market membership token.
	Owner       uint64
	Round       uint64
	SupplyIndex *big.Int
}

// NewDepositPosition returns an empty position stamped with the unit index.
func NewDepositPosition(asset AssetID, owner, round uint64) *DepositPosition {
	return &DepositPosition{
		Asset:       asset,
		Amount:      big.NewInt(0),
		Owner:       owner,
		Round:       round,
		SupplyIndex: Ray(),
	}
}

// Clone returns a deep copy of the position.
func (p *DepositPosition) Clone() *DepositPosition {
	if p == nil {
		return nil
	}
	return &DepositPosition{
		Asset:       p.Asset,
		Amount:      cloneBig(p.Amount),
		Owner:       p.Owner,
		Round:       p.Round,
		SupplyIndex: indexOrRay(p.SupplyIndex),
	}
}

// BorrowPosition records debt in one asset. Account-keyed positions have a
// zero Certificate; positions opened against NFT collateral are keyed by the
// debt certificate nonce and reference the pledged unit.
type BorrowPosition struct {
	Asset       AssetID
	Amount      *big.Int
	Owner       uint64
	Round       uint64
	BorrowIndex *big.Int
	Collateral  NFTRef
	Certificate uint64
}

// NewBorrowPosition returns an empty account-keyed position.
func NewBorrowPosition(asset AssetID, owner, round uint64) *BorrowPosition {
	return &BorrowPosition{
		Asset:       asset,
		Amount:      big.NewInt(0),
		Owner:       owner,
		Round:       round,
		BorrowIndex: Ray(),
	}
}

// Clone returns a deep copy of the position.
func (p *BorrowPosition) Clone() *BorrowPosition {
	if p == nil {
		return nil
	}
	return &BorrowPosition{
		Asset:       p.Asset,
		Amount:      cloneBig(p.Amount),
		Owner:       p.Owner,
		Round:       p.Round,
		BorrowIndex: indexOrRay(p.BorrowIndex),
		Collateral:  p.Collateral,
		Certificate: p.Certificate,
	}
}

// RiskParams are the per-asset valuation parameters, in base points.
type RiskParams struct {
	LiquidationThreshold uint64 `toml:"liquidation_threshold" json:"liquidationThreshold"`
	LoanToValue          uint64 `toml:"loan_to_value" json:"loanToValue"`
	LiquidationBonus     uint64 `toml:"liquidation_bonus" json:"liquidationBonus"`
}

// PoolParams configure one pool.
type PoolParams struct {
	Rates         RateModel  `toml:"rates" json:"rates"`
	Risk          RiskParams `toml:"risk" json:"risk"`
	RoundsPerYear uint64     `toml:"rounds_per_year" json:"roundsPerYear"`
}

// Validate checks the rate model and the risk bounds.
func (p PoolParams) Validate() error {
	if err := p.Rates.Validate(); err != nil {
		return err
	}
	if p.Risk.LoanToValue > BP || p.Risk.LiquidationThreshold > BP {
		return ErrInvalidParameter
	}
	return nil
}

func (p PoolParams) roundsPerYear() uint64 {
	if p.RoundsPerYear == 0 {
		return DefaultRoundsPerYear
	}
	return p.RoundsPerYear
}

// PoolLedger is the state owned by one pool.
type PoolLedger struct {
	Asset         AssetID
	Reserves      *big.Int
	TotalSupplied *big.Int
	// TotalBorrowed equals the sum of recorded debt amounts: principal plus
	// interest realized whenever a debt position is brought current.
	TotalBorrowed   *big.Int
	SupplyIndex     *big.Int
	BorrowIndex     *big.Int
	LastUpdateRound uint64
	Params          PoolParams
}

// NewPoolLedger returns an empty ledger with unit indices.
func NewPoolLedger(asset AssetID, params PoolParams, round uint64) *PoolLedger {
	return &PoolLedger{
		Asset:           asset,
		Reserves:        big.NewInt(0),
		TotalSupplied:   big.NewInt(0),
		TotalBorrowed:   big.NewInt(0),
		SupplyIndex:     Ray(),
		BorrowIndex:     Ray(),
		LastUpdateRound: round,
		Params:          params,
	}
}

// Clone returns a deep copy of the ledger.
func (l *PoolLedger) Clone() *PoolLedger {
	if l == nil {
		return nil
	}
	return &PoolLedger{
		Asset:           l.Asset,
		Reserves:        cloneBig(l.Reserves),
		TotalSupplied:   cloneBig(l.TotalSupplied),
		TotalBorrowed:   cloneBig(l.TotalBorrowed),
		SupplyIndex:     indexOrRay(l.SupplyIndex),
		BorrowIndex:     indexOrRay(l.BorrowIndex),
		LastUpdateRound: l.LastUpdateRound,
		Params:          l.Params,
	}
}

func (l *PoolLedger) ensureDefaults() {
	if l.Reserves == nil {
		l.Reserves = big.NewInt(0)
	}
	if l.TotalSupplied == nil {
		l.TotalSupplied = big.NewInt(0)
	}
	if l.TotalBorrowed == nil {
		l.TotalBorrowed = big.NewInt(0)
	}
	if l.SupplyIndex == nil || l.SupplyIndex.Sign() == 0 {
		l.SupplyIndex = Ray()
	}
	if l.BorrowIndex == nil || l.BorrowIndex.Sign() == 0 {
		l.BorrowIndex = Ray()
	}
}

// PoolRecord is the registry entry binding an asset to its pool identity.
type PoolRecord struct {
	Asset   AssetID
	Address []byte
}

// CollectionParams are the NFT-collateral risk parameters of a collection.
type CollectionParams struct {
	Collection  string
	FloorPrice  *big.Int
	LoanToValue uint64
}

// Clone returns a deep copy of the parameters.
func (c *CollectionParams) Clone() *CollectionParams {
	if c == nil {
		return nil
	}
	return &CollectionParams{Collection: c.Collection, FloorPrice: cloneBig(c.FloorPrice), LoanToValue: c.LoanToValue}
}

// Settings are the protocol-wide router parameters.
type Settings struct {
	MaxLiquidationThreshold uint64
	MembershipCollection    string
	DebtCollection          string
	Paused                  []string
}

// DefaultSettings mirror the token identifiers used by the reference
// deployment.
func DefaultSettings() Settings {
	return Settings{
		MaxLiquidationThreshold: BP,
		MembershipCollection:    "LACC-abcdef",
		DebtCollection:          "XDEBT-abcdef",
	}
}

// IsPaused implements common.PauseView over the stored pause list.
func (s Settings) IsPaused(action string) bool {
	for _, p := range s.Paused {
		if p == action {
			return true
		}
	}
	return false
}
