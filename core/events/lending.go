package events

import (
	"math/big"
	"strconv"
	"strings"

	"lendhub/core/types"
)

const (
	TypeMarketEntered     = "lending.market.entered"
	TypeMarketExited      = "lending.market.exited"
	TypeCollateralAdded   = "lending.collateral.added"
	TypeCollateralRemoved = "lending.collateral.removed"
	TypeBorrowed          = "lending.borrowed"
	TypeBorrowedWithNFTs  = "lending.borrowed.nfts"
	TypeRepaid            = "lending.repaid"
	TypeNFTDebtRepaid     = "lending.repaid.nfts"
	TypeLiquidated        = "lending.liquidated"
	TypePoolRegistered    = "lending.pool.registered"
	TypePoolUpgraded      = "lending.pool.upgraded"
	TypeRiskUpdated       = "lending.risk.updated"
	TypeCollectionAdded   = "lending.collection.added"
)

type MarketEntered struct {
	Account uint64
	Owner   string
}

func (MarketEntered) EventType() string { return TypeMarketEntered }

func (e MarketEntered) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketEntered,
		Attributes: map[string]string{
			"account": uintToString(e.Account),
			"owner":   e.Owner,
		},
	}
}

type MarketExited struct {
	Account uint64
	Owner   string
}

func (MarketExited) EventType() string { return TypeMarketExited }

func (e MarketExited) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketExited,
		Attributes: map[string]string{
			"account": uintToString(e.Account),
			"owner":   e.Owner,
		},
	}
}

// CollateralChanged is emitted for both collateral additions and removals.
type CollateralChanged struct {
	Removed  bool
	Account  uint64
	Asset    string
	Amount   *big.Int
	Position *big.Int
}

func (e CollateralChanged) EventType() string {
	if e.Removed {
		return TypeCollateralRemoved
	}
	return TypeCollateralAdded
}

func (e CollateralChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"account":  uintToString(e.Account),
			"asset":    normalizeAsset(e.Asset),
			"amount":   formatAmount(e.Amount),
			"position": formatAmount(e.Position),
		},
	}
}

type Borrowed struct {
	Account uint64
	Asset   string
	Amount  *big.Int
	Debt    *big.Int
}

func (Borrowed) EventType() string { return TypeBorrowed }

func (e Borrowed) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowed,
		Attributes: map[string]string{
			"account": uintToString(e.Account),
			"asset":   normalizeAsset(e.Asset),
			"amount":  formatAmount(e.Amount),
			"debt":    formatAmount(e.Debt),
		},
	}
}

type BorrowedWithNFTs struct {
	Borrower     string
	Asset        string
	Amount       *big.Int
	Certificates []uint64
	Returned     int
}

func (BorrowedWithNFTs) EventType() string { return TypeBorrowedWithNFTs }

func (e BorrowedWithNFTs) Event() *types.Event {
	return &types.Event{
		Type: TypeBorrowedWithNFTs,
		Attributes: map[string]string{
			"borrower":     e.Borrower,
			"asset":        normalizeAsset(e.Asset),
			"amount":       formatAmount(e.Amount),
			"certificates": joinUints(e.Certificates),
			"returned":     strconv.Itoa(e.Returned),
		},
	}
}

type Repaid struct {
	Account   uint64
	Asset     string
	Paid      *big.Int
	Refund    *big.Int
	Remaining *big.Int
}

func (Repaid) EventType() string { return TypeRepaid }

func (e Repaid) Event() *types.Event {
	return &types.Event{
		Type: TypeRepaid,
		Attributes: map[string]string{
			"account":   uintToString(e.Account),
			"asset":     normalizeAsset(e.Asset),
			"paid":      formatAmount(e.Paid),
			"refund":    formatAmount(e.Refund),
			"remaining": formatAmount(e.Remaining),
		},
	}
}

type NFTDebtRepaid struct {
	Payer  string
	Asset  string
	Paid   *big.Int
	Refund *big.Int
	Closed []uint64
}

func (NFTDebtRepaid) EventType() string { return TypeNFTDebtRepaid }

func (e NFTDebtRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeNFTDebtRepaid,
		Attributes: map[string]string{
			"payer":  e.Payer,
			"asset":  normalizeAsset(e.Asset),
			"paid":   formatAmount(e.Paid),
			"refund": formatAmount(e.Refund),
			"closed": joinUints(e.Closed),
		},
	}
}

// Seizure is one collateral transfer made to a liquidator.
type Seizure struct {
	Asset  string
	Amount *big.Int
}

type Liquidated struct {
	Account     uint64
	Liquidator  string
	Asset       string
	Payment     *big.Int
	PayoutValue *big.Int
	Seized      []Seizure
}

func (Liquidated) EventType() string { return TypeLiquidated }

func (e Liquidated) Event() *types.Event {
	seized := make([]string, 0, len(e.Seized))
	for _, s := range e.Seized {
		seized = append(seized, normalizeAsset(s.Asset)+":"+formatAmount(s.Amount))
	}
	return &types.Event{
		Type: TypeLiquidated,
		Attributes: map[string]string{
			"account":     uintToString(e.Account),
			"liquidator":  e.Liquidator,
			"asset":       normalizeAsset(e.Asset),
			"payment":     formatAmount(e.Payment),
			"payoutValue": formatAmount(e.PayoutValue),
			"seized":      strings.Join(seized, ","),
		},
	}
}

// PoolChanged covers pool registration and upgrades.
type PoolChanged struct {
	Upgraded bool
	Asset    string
	Pool     string
}

func (e PoolChanged) EventType() string {
	if e.Upgraded {
		return TypePoolUpgraded
	}
	return TypePoolRegistered
}

func (e PoolChanged) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"asset": normalizeAsset(e.Asset),
			"pool":  e.Pool,
		},
	}
}

type RiskUpdated struct {
	Asset string
	Field string
	Value uint64
}

func (RiskUpdated) EventType() string { return TypeRiskUpdated }

func (e RiskUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRiskUpdated,
		Attributes: map[string]string{
			"asset": normalizeAsset(e.Asset),
			"field": e.Field,
			"value": uintToString(e.Value),
		},
	}
}

type CollectionAdded struct {
	Collection  string
	FloorPrice  *big.Int
	LoanToValue uint64
}

func (CollectionAdded) EventType() string { return TypeCollectionAdded }

func (e CollectionAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeCollectionAdded,
		Attributes: map[string]string{
			"collection":  normalizeAsset(e.Collection),
			"floorPrice":  formatAmount(e.FloorPrice),
			"loanToValue": uintToString(e.LoanToValue),
		},
	}
}
