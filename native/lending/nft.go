package lending

import (
	"context"
	"fmt"
	"math/big"

	"lendhub/core/events"
	"lendhub/crypto"
)

// NFTCollateral is one supplied unit priced with its collection parameters.
type NFTCollateral struct {
	Ref         NFTRef
	FloorPrice  *big.Int
	LoanToValue uint64
}

// MaxBorrow returns floor * units * ltv / BP.
func (c NFTCollateral) MaxBorrow() *big.Int {
	return mulBP(c.FloorValue(), c.LoanToValue)
}

// FloorValue returns floor * units.
func (c NFTCollateral) FloorValue() *big.Int {
	return new(big.Int).Mul(bigOrZero(c.FloorPrice), new(big.Int).SetUint64(c.Ref.Units))
}

// AllocatedUnit is a consumed unit and the value it backs.
type AllocatedUnit struct {
	Unit   NFTCollateral
	Backed *big.Int
}

// NFTAllocation is the outcome of a first-fit walk.
type NFTAllocation struct {
	Consumed []AllocatedUnit
	Unused   []NFTCollateral
	// Pledged is the floor value of every consumed unit.
	Pledged   *big.Int
	Remaining *big.Int
}

// AllocateNFTCollateral walks units in the supplied order until requested is
// covered. A unit whose capacity fits in what is still needed is consumed for
// its full capacity; the first unit that exceeds it backs exactly the rest.
// Units met after the request is covered come back unused.
func AllocateNFTCollateral(requested *big.Int, units []NFTCollateral) NFTAllocation {
	alloc := NFTAllocation{Pledged: big.NewInt(0), Remaining: cloneBig(requested)}
	for _, unit := range units {
		if alloc.Remaining.Sign() == 0 {
			alloc.Unused = append(alloc.Unused, unit)
			continue
		}
		capacity := unit.MaxBorrow()
		backed := capacity
		if capacity.Cmp(alloc.Remaining) > 0 {
			backed = new(big.Int).Set(alloc.Remaining)
		}
		alloc.Remaining.Sub(alloc.Remaining, backed)
		alloc.Pledged.Add(alloc.Pledged, unit.FloorValue())
		alloc.Consumed = append(alloc.Consumed, AllocatedUnit{Unit: unit, Backed: backed})
	}
	return alloc
}

// NFTBorrowResult reports the certificates minted for an NFT-backed borrow.
type NFTBorrowResult struct {
	Positions []*BorrowPosition
	Returned  []NFTRef
}

// BorrowWithNFTs borrows amount of asset against the supplied NFT units,
// already held by the router. Each consumed unit gets its own debt
// certificate minted to caller; unconsumed units go back to caller.
func (r *Router) BorrowWithNFTs(ctx context.Context, caller crypto.Address, asset AssetID, amount *big.Int, nfts []Payment) (*NFTBorrowResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionBorrowNFTs)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	if len(nfts) == 0 {
		return nil, fmt.Errorf("%w: no collateral supplied", ErrInsufficientCollateral)
	}
	pool, err := r.pool(asset)
	if err != nil {
		return nil, err
	}
	units := make([]NFTCollateral, 0, len(nfts))
	for _, nft := range nfts {
		if nft.IsFungible() || nft.Amount == nil || nft.Amount.Sign() <= 0 || !nft.Amount.IsUint64() {
			return nil, fmt.Errorf("%w: %s is not an NFT unit", ErrAssetMismatch, nft.Asset)
		}
		params, ok, err := r.state.Collection(string(nft.Asset))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCollectionUnknown, nft.Asset)
		}
		units = append(units, NFTCollateral{
			Ref:         NFTRef{Collection: string(nft.Asset), Nonce: nft.Nonce, Units: nft.Amount.Uint64()},
			FloorPrice:  params.FloorPrice,
			LoanToValue: params.LoanToValue,
		})
	}

	quote, err := r.price(ctx, asset)
	if err != nil {
		return nil, err
	}
	requested := quote.Value(amount)
	alloc := AllocateNFTCollateral(requested, units)
	if alloc.Remaining.Sign() > 0 {
		return nil, fmt.Errorf("%w: %s of %s left uncovered", ErrInsufficientCollateral, alloc.Remaining, requested)
	}
	if alloc.Pledged.Cmp(requested) <= 0 {
		return nil, fmt.Errorf("%w: pledged %s for %s", ErrInsufficientCollateral, alloc.Pledged, requested)
	}

	positions := make([]*BorrowPosition, len(alloc.Consumed))
	assigned := big.NewInt(0)
	for i, unit := range alloc.Consumed {
		share := quote.Units(unit.Backed)
		if i == len(alloc.Consumed)-1 {
			share = new(big.Int).Sub(amount, assigned)
		}
		assigned.Add(assigned, share)
		certificate, err := r.tokens.MintNFT(settings.DebtCollection, caller, 1)
		if err != nil {
			return nil, err
		}
		positions[i] = &BorrowPosition{
			Asset:       asset,
			Amount:      share,
			Round:       r.round,
			BorrowIndex: Ray(),
			Collateral:  unit.Unit.Ref,
			Certificate: certificate,
		}
	}
	opened, err := pool.BorrowBulk(r.call(), caller, positions, amount)
	if err != nil {
		return nil, err
	}
	certificates := make([]uint64, len(opened))
	for i, pos := range opened {
		if err := r.state.PutNFTBorrowPosition(pos); err != nil {
			return nil, err
		}
		certificates[i] = pos.Certificate
	}
	returned := make([]NFTRef, 0, len(alloc.Unused))
	for _, unit := range alloc.Unused {
		if err := r.releaseNFT(caller, unit.Ref); err != nil {
			return nil, err
		}
		returned = append(returned, unit.Ref)
	}
	r.emitter.Emit(events.BorrowedWithNFTs{
		Borrower:     caller.String(),
		Asset:        string(asset),
		Amount:       amount,
		Certificates: certificates,
		Returned:     len(returned),
	})
	return &NFTBorrowResult{Positions: opened, Returned: returned}, nil
}

// NFTRepayResult reports an NFT debt repayment.
type NFTRepayResult struct {
	Positions []*BorrowPosition
	Closed    []uint64
	Refund    *big.Int
}

// RepayNFTDebt settles the named certificates, in the supplied order, with
// payment already held by the router. A fully repaid certificate is burned
// and its collateral unit returned to caller.
func (r *Router) RepayNFTDebt(caller crypto.Address, payment Payment, certificates []uint64) (*NFTRepayResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionRepay)
	if err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := positiveAmount(payment.Amount); err != nil {
		return nil, err
	}
	if len(certificates) == 0 {
		return nil, fmt.Errorf("%w: no certificates", ErrPositionNotFound)
	}
	seen := make(map[uint64]struct{}, len(certificates))
	positions := make([]*BorrowPosition, 0, len(certificates))
	for _, certificate := range certificates {
		if _, dup := seen[certificate]; dup {
			return nil, fmt.Errorf("%w: certificate %d listed twice", ErrInvalidParameter, certificate)
		}
		seen[certificate] = struct{}{}
		pos, ok, err := r.state.NFTBorrowPosition(certificate)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: certificate %d", ErrPositionNotFound, certificate)
		}
		owns, err := r.tokens.Owns(caller, settings.DebtCollection, certificate, 1)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, fmt.Errorf("%w: certificate %d", ErrNotTokenOwner, certificate)
		}
		if pos.Asset != payment.Asset {
			return nil, fmt.Errorf("%w: certificate %d owes %s", ErrAssetMismatch, certificate, pos.Asset)
		}
		positions = append(positions, pos)
	}
	pool, err := r.pool(payment.Asset)
	if err != nil {
		return nil, err
	}
	settled, refund, err := pool.RepayMany(r.call(), caller, positions, payment)
	if err != nil {
		return nil, err
	}
	var closed []uint64
	for _, pos := range settled {
		if pos.Amount.Sign() > 0 {
			if err := r.state.PutNFTBorrowPosition(pos); err != nil {
				return nil, err
			}
			continue
		}
		if err := r.tokens.BurnNFT(caller, settings.DebtCollection, pos.Certificate, 1); err != nil {
			return nil, err
		}
		if err := r.state.DeleteNFTBorrowPosition(pos.Certificate); err != nil {
			return nil, err
		}
		if err := r.releaseNFT(caller, pos.Collateral); err != nil {
			return nil, err
		}
		closed = append(closed, pos.Certificate)
	}
	r.emitter.Emit(events.NFTDebtRepaid{
		Payer:  caller.String(),
		Asset:  string(payment.Asset),
		Paid:   new(big.Int).Sub(payment.Amount, refund),
		Refund: refund,
		Closed: closed,
	})
	return &NFTRepayResult{Positions: settled, Closed: closed, Refund: refund}, nil
}

// releaseNFT hands a unit in router custody back to its depositor.
func (r *Router) releaseNFT(to crypto.Address, ref NFTRef) error {
	if !ref.IsSet() {
		return nil
	}
	units := ref.Units
	if units == 0 {
		units = 1
	}
	return r.tokens.Transfer(r.self, to, ref.Collection, ref.Nonce, new(big.Int).SetUint64(units))
}
