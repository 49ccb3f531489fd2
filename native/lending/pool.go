package lending

import (
	"fmt"
	"math/big"

	"lendhub/crypto"
)

// Call identifies the component invoking a pool entry point and the round the
// enclosing external call executes in.
type Call struct {
	Caller crypto.Address
	Round  uint64
}

// PoolEngine is the call surface the router uses to reach a pool. Every
// mutating method rejects callers other than the router before touching
// state.
type PoolEngine interface {
	Asset() AssetID
	Address() crypto.Address
	Open(call Call, params PoolParams) error
	Upgrade(call Call, params PoolParams) error
	SetRisk(call Call, risk RiskParams) error
	UpdateCollateralWithInterest(call Call, pos *DepositPosition) (*DepositPosition, error)
	UpdateBorrowsWithDebt(call Call, pos *BorrowPosition) (*BorrowPosition, error)
	Deposit(call Call, pos *DepositPosition, payment Payment) (*DepositPosition, error)
	Withdraw(call Call, to crypto.Address, pos *DepositPosition, amount *big.Int) (*DepositPosition, error)
	Borrow(call Call, to crypto.Address, pos *BorrowPosition, amount *big.Int) (*BorrowPosition, error)
	BorrowBulk(call Call, to crypto.Address, positions []*BorrowPosition, amount *big.Int) ([]*BorrowPosition, error)
	Repay(call Call, refundTo crypto.Address, pos *BorrowPosition, payment Payment) (*BorrowPosition, *big.Int, error)
	RepayMany(call Call, refundTo crypto.Address, positions []*BorrowPosition, payment Payment) ([]*BorrowPosition, *big.Int, error)
	SendTokens(call Call, to crypto.Address, amount *big.Int) error
	Ledger() (*PoolLedger, error)
}

// Pool is the Pool Engine of one asset. It owns that asset's ledger and the
// pool's token balance.
type Pool struct {
	asset   AssetID
	address crypto.Address
	router  crypto.Address
	store   PoolStore
	tokens  Tokens
}

var _ PoolEngine = (*Pool)(nil)

// PoolAddress derives the identity holding the reserves of asset.
func PoolAddress(asset AssetID) crypto.Address {
	return crypto.ModuleAddress("pool/" + string(asset))
}

// NewPool binds a pool to its asset, its own identity and the router allowed
// to call it.
func NewPool(asset AssetID, address, router crypto.Address, store PoolStore, tokens Tokens) *Pool {
	return &Pool{asset: asset, address: address, router: router, store: store, tokens: tokens}
}

func (p *Pool) Asset() AssetID { return p.asset }

func (p *Pool) Address() crypto.Address { return p.address }

func (p *Pool) authorize(call Call) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("lending pool not configured")
	}
	if call.Caller.IsZero() || !call.Caller.Equal(p.router) {
		return ErrUnauthorized
	}
	return nil
}

// begin authorizes the call, loads the ledger and refreshes its indices.
func (p *Pool) begin(call Call) (*PoolLedger, error) {
	if err := p.authorize(call); err != nil {
		return nil, err
	}
	ledger, ok, err := p.store.PoolLedger(p.asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, p.asset)
	}
	if err := accrue(ledger, call.Round); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (p *Pool) checkPayment(payment Payment) error {
	if !payment.IsFungible() || payment.Asset != p.asset {
		return fmt.Errorf("%w: pool %s received %s", ErrAssetMismatch, p.asset, payment.Asset)
	}
	if payment.Amount == nil || payment.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p *Pool) checkAsset(asset AssetID) error {
	if asset != p.asset {
		return fmt.Errorf("%w: pool %s given position in %s", ErrAssetMismatch, p.asset, asset)
	}
	return nil
}

// Open creates the ledger. The rate model is validated first.
func (p *Pool) Open(call Call, params PoolParams) error {
	if err := p.authorize(call); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if _, ok, err := p.store.PoolLedger(p.asset); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrAssetRegistered, p.asset)
	}
	return p.store.PutPoolLedger(NewPoolLedger(p.asset, params, call.Round))
}

// Upgrade swaps the pool parameters. Interest up to the current round accrues
// under the previous rate model.
func (p *Pool) Upgrade(call Call, params PoolParams) error {
	if err := p.authorize(call); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return err
	}
	ledger, err := p.begin(call)
	if err != nil {
		return err
	}
	ledger.Params = params
	return p.store.PutPoolLedger(ledger)
}

// SetRisk replaces the risk parameters only.
func (p *Pool) SetRisk(call Call, risk RiskParams) error {
	ledger, err := p.begin(call)
	if err != nil {
		return err
	}
	if risk.LoanToValue > BP || risk.LiquidationThreshold > BP {
		return ErrInvalidParameter
	}
	ledger.Params.Risk = risk
	return p.store.PutPoolLedger(ledger)
}

// UpdateCollateralWithInterest brings a deposit position current. Reserves and
// totals are untouched.
func (p *Pool) UpdateCollateralWithInterest(call Call, pos *DepositPosition) (*DepositPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if err := p.checkAsset(pos.Asset); err != nil {
		return nil, err
	}
	out := currentDeposit(ledger, pos, call.Round)
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateBorrowsWithDebt brings a borrow position current. The accrued interest
// becomes part of total borrowed.
func (p *Pool) UpdateBorrowsWithDebt(call Call, pos *BorrowPosition) (*BorrowPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if err := p.checkAsset(pos.Asset); err != nil {
		return nil, err
	}
	out := currentBorrow(ledger, pos, call.Round)
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// Deposit adds payment to the position after applying interest. The payment
// must already be held by the caller.
func (p *Pool) Deposit(call Call, pos *DepositPosition, payment Payment) (*DepositPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if err := p.checkPayment(payment); err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if err := p.checkAsset(pos.Asset); err != nil {
		return nil, err
	}
	out := currentDeposit(ledger, pos, call.Round)
	out.Amount.Add(out.Amount, payment.Amount)

	if err := p.tokens.Transfer(call.Caller, p.address, string(p.asset), 0, payment.Amount); err != nil {
		return nil, err
	}
	ledger.Reserves = new(big.Int).Add(ledger.Reserves, payment.Amount)
	ledger.TotalSupplied = new(big.Int).Add(ledger.TotalSupplied, payment.Amount)
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw pays amount out of the position to the recipient. The position is
// brought current first, so interest is withdrawable.
func (p *Pool) Withdraw(call Call, to crypto.Address, pos *DepositPosition, amount *big.Int) (*DepositPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if to.IsZero() {
		return nil, ErrZeroAddress
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if err := p.checkAsset(pos.Asset); err != nil {
		return nil, err
	}
	out := currentDeposit(ledger, pos, call.Round)
	if out.Amount.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: position holds %s, requested %s", ErrInsufficientBalance, out.Amount, amount)
	}
	if ledger.Reserves.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: reserves %s, requested %s", ErrInsufficientLiquidity, ledger.Reserves, amount)
	}
	out.Amount.Sub(out.Amount, amount)
	ledger.Reserves = new(big.Int).Sub(ledger.Reserves, amount)
	ledger.TotalSupplied = new(big.Int).Sub(ledger.TotalSupplied, minBig(amount, ledger.TotalSupplied))

	if err := p.tokens.Transfer(p.address, to, string(p.asset), 0, amount); err != nil {
		return nil, err
	}
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// Borrow applies debt interest to the position, adds amount and transfers it
// out of reserves.
func (p *Pool) Borrow(call Call, to crypto.Address, pos *BorrowPosition, amount *big.Int) (*BorrowPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if to.IsZero() {
		return nil, ErrZeroAddress
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	if err := p.checkAsset(pos.Asset); err != nil {
		return nil, err
	}
	if ledger.Reserves.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: reserves %s, requested %s", ErrInsufficientLiquidity, ledger.Reserves, amount)
	}
	out := currentBorrow(ledger, pos, call.Round)
	out.Amount.Add(out.Amount, amount)
	ledger.TotalBorrowed = new(big.Int).Add(ledger.TotalBorrowed, amount)
	ledger.Reserves = new(big.Int).Sub(ledger.Reserves, amount)

	if err := p.tokens.Transfer(p.address, to, string(p.asset), 0, amount); err != nil {
		return nil, err
	}
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// BorrowBulk opens fresh positions that together owe amount. Each position is
// stamped with the refreshed borrow index; no past debt is accrued.
func (p *Pool) BorrowBulk(call Call, to crypto.Address, positions []*BorrowPosition, amount *big.Int) ([]*BorrowPosition, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if to.IsZero() {
		return nil, ErrZeroAddress
	}
	if len(positions) == 0 {
		return nil, ErrPositionNotFound
	}
	sum := big.NewInt(0)
	for _, pos := range positions {
		if pos == nil {
			return nil, ErrPositionNotFound
		}
		if err := p.checkAsset(pos.Asset); err != nil {
			return nil, err
		}
		sum.Add(sum, bigOrZero(pos.Amount))
	}
	if sum.Cmp(amount) != 0 {
		return nil, fmt.Errorf("%w: positions owe %s, borrowing %s", ErrInvalidParameter, sum, amount)
	}
	if ledger.Reserves.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: reserves %s, requested %s", ErrInsufficientLiquidity, ledger.Reserves, amount)
	}
	out := make([]*BorrowPosition, len(positions))
	for i, pos := range positions {
		stamped := pos.Clone()
		stamped.BorrowIndex = new(big.Int).Set(ledger.BorrowIndex)
		stamped.Round = call.Round
		out[i] = stamped
	}
	ledger.TotalBorrowed = new(big.Int).Add(ledger.TotalBorrowed, amount)
	ledger.Reserves = new(big.Int).Sub(ledger.Reserves, amount)

	if err := p.tokens.Transfer(p.address, to, string(p.asset), 0, amount); err != nil {
		return nil, err
	}
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, err
	}
	return out, nil
}

// Repay settles debt with payment. Interest is settled first because the
// position is brought current before the payment is applied; any excess over
// the amount owed is refunded.
func (p *Pool) Repay(call Call, refundTo crypto.Address, pos *BorrowPosition, payment Payment) (*BorrowPosition, *big.Int, error) {
	results, refund, err := p.RepayMany(call, refundTo, []*BorrowPosition{pos}, payment)
	if err != nil {
		return nil, nil, err
	}
	return results[0], refund, nil
}

// RepayMany walks positions in the supplied order. A position the remaining
// payment covers is zeroed; the first one it does not cover is reduced by what
// is left and settlement stops there. Unconsumed payment is refunded.
func (p *Pool) RepayMany(call Call, refundTo crypto.Address, positions []*BorrowPosition, payment Payment) ([]*BorrowPosition, *big.Int, error) {
	ledger, err := p.begin(call)
	if err != nil {
		return nil, nil, err
	}
	if err := p.checkPayment(payment); err != nil {
		return nil, nil, err
	}
	if refundTo.IsZero() {
		return nil, nil, ErrZeroAddress
	}
	if len(positions) == 0 {
		return nil, nil, ErrPositionNotFound
	}
	for _, pos := range positions {
		if pos == nil {
			return nil, nil, ErrPositionNotFound
		}
		if err := p.checkAsset(pos.Asset); err != nil {
			return nil, nil, err
		}
	}

	remaining := new(big.Int).Set(payment.Amount)
	out := make([]*BorrowPosition, len(positions))
	for i, pos := range positions {
		current := currentBorrow(ledger, pos, call.Round)
		switch {
		case remaining.Cmp(current.Amount) >= 0:
			remaining.Sub(remaining, current.Amount)
			current.Amount = big.NewInt(0)
		case remaining.Sign() > 0:
			current.Amount = new(big.Int).Sub(current.Amount, remaining)
			remaining = big.NewInt(0)
		}
		out[i] = current
	}
	applied := new(big.Int).Sub(payment.Amount, remaining)

	if err := p.tokens.Transfer(call.Caller, p.address, string(p.asset), 0, payment.Amount); err != nil {
		return nil, nil, err
	}
	if remaining.Sign() > 0 {
		if err := p.tokens.Transfer(p.address, refundTo, string(p.asset), 0, remaining); err != nil {
			return nil, nil, err
		}
	}
	ledger.TotalBorrowed = new(big.Int).Sub(ledger.TotalBorrowed, minBig(applied, ledger.TotalBorrowed))
	ledger.Reserves = new(big.Int).Add(ledger.Reserves, applied)
	if err := p.store.PutPoolLedger(ledger); err != nil {
		return nil, nil, err
	}
	return out, remaining, nil
}

// SendTokens transfers amount of pool liquidity to the recipient. The router
// uses it to hand seized collateral to liquidators, so the amount also leaves
// total supplied.
func (p *Pool) SendTokens(call Call, to crypto.Address, amount *big.Int) error {
	ledger, err := p.begin(call)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	if ledger.Reserves.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserves %s, requested %s", ErrInsufficientLiquidity, ledger.Reserves, amount)
	}
	ledger.Reserves = new(big.Int).Sub(ledger.Reserves, amount)
	ledger.TotalSupplied = new(big.Int).Sub(ledger.TotalSupplied, minBig(amount, ledger.TotalSupplied))
	if err := p.tokens.Transfer(p.address, to, string(p.asset), 0, amount); err != nil {
		return err
	}
	return p.store.PutPoolLedger(ledger)
}

// Ledger returns a copy of the stored ledger without refreshing it.
func (p *Pool) Ledger() (*PoolLedger, error) {
	if p == nil || p.store == nil {
		return nil, fmt.Errorf("lending pool not configured")
	}
	ledger, ok, err := p.store.PoolLedger(p.asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, p.asset)
	}
	ledger.ensureDefaults()
	return ledger, nil
}
