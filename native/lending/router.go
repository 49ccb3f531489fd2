package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"lendhub/core/events"
	"lendhub/crypto"
	"lendhub/native/common"
	"lendhub/native/oracle"
)

var errNilRouter = errors.New("lending router: state not configured")

// Action names accepted by the pause switches.
const (
	ActionAddCollateral    = "lending.add_collateral"
	ActionRemoveCollateral = "lending.remove_collateral"
	ActionBorrow           = "lending.borrow"
	ActionBorrowNFTs       = "lending.borrow_with_nfts"
	ActionRepay            = "lending.repay"
	ActionLiquidate        = "lending.liquidate"
	ActionEnterMarket      = "lending.enter_market"
)

// PoolFactory builds the engine serving one registered asset.
type PoolFactory func(rec *PoolRecord, router crypto.Address, store PoolStore, tokens Tokens) PoolEngine

// DefaultPoolFactory binds a Pool to the identity stored in the registry.
// Records without a valid address fall back to the derived pool address.
func DefaultPoolFactory(rec *PoolRecord, router crypto.Address, store PoolStore, tokens Tokens) PoolEngine {
	address := PoolAddress(rec.Asset)
	if len(rec.Address) == crypto.AddressLength {
		address = crypto.NewAddress(crypto.ModulePrefix, rec.Address)
	}
	return NewPool(rec.Asset, address, router, store, tokens)
}

// Router is the risk engine: it owns the asset registry and the position
// store, values accounts through the price source and drives every pool
// through the pool call surface. A Router is configured for one external call
// at a time; it holds no state across calls other than its wiring.
type Router struct {
	self     crypto.Address
	operator crypto.Address
	state    State
	tokens   Tokens
	prices   PriceSource
	round    uint64
	pools    PoolFactory
	emitter  events.Emitter
	logger   *slog.Logger

	quotes map[AssetID]oracle.Quote
}

// NewRouter constructs a router acting as self and administered by operator.
func NewRouter(self, operator crypto.Address) *Router {
	return &Router{
		self:     self,
		operator: operator,
		pools:    DefaultPoolFactory,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
}

// Self returns the router identity pools accept calls from.
func (r *Router) Self() crypto.Address { return r.self }

// Operator returns the protocol operator identity.
func (r *Router) Operator() crypto.Address { return r.operator }

// SetState wires the router to the persistence layer of the current call.
func (r *Router) SetState(state State) { r.state = state }

// SetTokens wires the token primitives of the hosting environment.
func (r *Router) SetTokens(tokens Tokens) { r.tokens = tokens }

// SetPriceSource configures the oracle adapter. Quotes cached by a previous
// call are dropped.
func (r *Router) SetPriceSource(prices PriceSource) {
	r.prices = prices
	r.quotes = nil
}

// SetRound records the round the current call executes in and drops quotes
// cached for the previous call.
func (r *Router) SetRound(round uint64) {
	r.round = round
	r.quotes = nil
}

// SetPoolFactory overrides how pool engines are built from registry records.
func (r *Router) SetPoolFactory(f PoolFactory) {
	if f == nil {
		f = DefaultPoolFactory
	}
	r.pools = f
}

// SetEmitter configures the event sink.
func (r *Router) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	r.emitter = e
}

// SetLogger configures the structured logger.
func (r *Router) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	r.logger = l
}

func (r *Router) ready() error {
	if r == nil || r.state == nil || r.tokens == nil {
		return errNilRouter
	}
	return nil
}

func (r *Router) call() Call {
	return Call{Caller: r.self, Round: r.round}
}

func (r *Router) guard(action string) (Settings, error) {
	settings, err := r.state.Settings()
	if err != nil {
		return Settings{}, err
	}
	if err := common.Guard(settings, action); err != nil {
		return Settings{}, fmt.Errorf("%w: %s", err, action)
	}
	return settings, nil
}

// pool resolves the engine registered for asset.
func (r *Router) pool(asset AssetID) (PoolEngine, error) {
	rec, ok, err := r.state.PoolRecord(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, asset)
	}
	return r.pools(rec, r.self, r.state, r.tokens), nil
}

// price returns the quote for asset, asking the oracle at most once per call.
func (r *Router) price(ctx context.Context, asset AssetID) (oracle.Quote, error) {
	if q, ok := r.quotes[asset]; ok {
		return q, nil
	}
	if r.prices == nil {
		return oracle.Quote{}, fmt.Errorf("%w: no price source", ErrPriceUnavailable)
	}
	q, err := r.prices.Price(ctx, string(asset))
	if err != nil {
		if !errors.Is(err, ErrPriceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
		}
		return oracle.Quote{}, err
	}
	if r.quotes == nil {
		r.quotes = make(map[AssetID]oracle.Quote)
	}
	r.quotes[asset] = q
	return q, nil
}

// member checks that account is an active membership.
func (r *Router) member(account uint64) error {
	if account == 0 {
		return ErrNotMarketMember
	}
	active, err := r.state.IsActiveAccount(account)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: %d", ErrNotMarketMember, account)
	}
	return nil
}

// holder checks that caller owns the membership token of an active account.
func (r *Router) holder(caller crypto.Address, account uint64, settings Settings) error {
	if caller.IsZero() {
		return ErrZeroAddress
	}
	if err := r.member(account); err != nil {
		return err
	}
	owns, err := r.tokens.Owns(caller, settings.MembershipCollection, account, 1)
	if err != nil {
		return err
	}
	if !owns {
		return fmt.Errorf("%w: membership %d", ErrNotTokenOwner, account)
	}
	return nil
}

func positiveAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// EnterMarket mints a membership token to caller and activates it.
func (r *Router) EnterMarket(caller crypto.Address) (uint64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	settings, err := r.guard(ActionEnterMarket)
	if err != nil {
		return 0, err
	}
	if caller.IsZero() {
		return 0, ErrZeroAddress
	}
	account, err := r.tokens.MintNFT(settings.MembershipCollection, caller, 1)
	if err != nil {
		return 0, err
	}
	if err := r.state.AddActiveAccount(account); err != nil {
		return 0, err
	}
	r.emitter.Emit(events.MarketEntered{Account: account, Owner: caller.String()})
	return account, nil
}

// ExitMarket burns the membership token of an account with no positions.
func (r *Router) ExitMarket(caller crypto.Address, account uint64) error {
	if err := r.ready(); err != nil {
		return err
	}
	settings, err := r.state.Settings()
	if err != nil {
		return err
	}
	if err := r.holder(caller, account, settings); err != nil {
		return err
	}
	deposits, err := r.state.DepositPositions(account)
	if err != nil {
		return err
	}
	borrows, err := r.state.BorrowPositions(account)
	if err != nil {
		return err
	}
	if len(deposits) > 0 || len(borrows) > 0 {
		return fmt.Errorf("%w: %d deposits, %d borrows", ErrPositionsNotEmpty, len(deposits), len(borrows))
	}
	if err := r.tokens.BurnNFT(caller, settings.MembershipCollection, account, 1); err != nil {
		return err
	}
	if err := r.state.RemoveActiveAccount(account); err != nil {
		return err
	}
	r.emitter.Emit(events.MarketExited{Account: account, Owner: caller.String()})
	return nil
}

// AddCollateral deposits payment, already held by the router, into the pool
// of its asset on behalf of account.
func (r *Router) AddCollateral(caller crypto.Address, account uint64, payment Payment) (*DepositPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionAddCollateral)
	if err != nil {
		return nil, err
	}
	if err := positiveAmount(payment.Amount); err != nil {
		return nil, err
	}
	if !payment.IsFungible() {
		return nil, fmt.Errorf("%w: collateral must be fungible", ErrAssetMismatch)
	}
	if err := r.holder(caller, account, settings); err != nil {
		return nil, err
	}
	pool, err := r.pool(payment.Asset)
	if err != nil {
		return nil, err
	}
	pos, ok, err := r.state.DepositPosition(account, payment.Asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		pos = NewDepositPosition(payment.Asset, account, r.round)
	}
	updated, err := pool.Deposit(r.call(), pos, payment)
	if err != nil {
		return nil, err
	}
	if err := r.state.PutDepositPosition(updated); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.CollateralChanged{
		Account:  account,
		Asset:    string(payment.Asset),
		Amount:   payment.Amount,
		Position: updated.Amount,
	})
	return updated, nil
}

// RemoveCollateral withdraws amount of asset to caller. An account carrying
// debt must keep collateral_after * ltv(asset) >= debt after the withdrawal.
func (r *Router) RemoveCollateral(ctx context.Context, caller crypto.Address, account uint64, asset AssetID, amount *big.Int) (*DepositPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionRemoveCollateral)
	if err != nil {
		return nil, err
	}
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	if err := r.holder(caller, account, settings); err != nil {
		return nil, err
	}
	pool, err := r.pool(asset)
	if err != nil {
		return nil, err
	}
	if _, ok, err := r.state.DepositPosition(account, asset); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: no %s collateral", ErrInsufficientBalance, asset)
	}

	deposits, borrows, err := r.markToMarket(account)
	if err != nil {
		return nil, err
	}
	if len(borrows) > 0 {
		collateral, err := r.depositsValue(ctx, deposits)
		if err != nil {
			return nil, err
		}
		debt, err := r.borrowsValue(ctx, borrows)
		if err != nil {
			return nil, err
		}
		quote, err := r.price(ctx, asset)
		if err != nil {
			return nil, err
		}
		ledger, err := pool.Ledger()
		if err != nil {
			return nil, err
		}
		after := new(big.Int).Sub(collateral, quote.Value(amount))
		if after.Sign() < 0 {
			after.SetInt64(0)
		}
		power := new(big.Int).Mul(after, new(big.Int).SetUint64(ledger.Params.Risk.LoanToValue))
		if power.Cmp(new(big.Int).Mul(debt, basePoints)) < 0 {
			return nil, fmt.Errorf("%w: withdrawal leaves collateral below loan-to-value", ErrInsufficientCollateral)
		}
	}

	pos, _, err := r.state.DepositPosition(account, asset)
	if err != nil {
		return nil, err
	}
	updated, err := pool.Withdraw(r.call(), caller, pos, amount)
	if err != nil {
		return nil, err
	}
	if err := r.storeDeposit(updated); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.CollateralChanged{
		Removed:  true,
		Account:  account,
		Asset:    string(asset),
		Amount:   amount,
		Position: updated.Amount,
	})
	return updated, nil
}

// Borrow draws amount of asset against the account's collateral, valued with
// the loan-to-value ratio of the hinted collateral asset.
func (r *Router) Borrow(ctx context.Context, caller crypto.Address, account uint64, collateralHint, asset AssetID, amount *big.Int) (*BorrowPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	settings, err := r.guard(ActionBorrow)
	if err != nil {
		return nil, err
	}
	if err := positiveAmount(amount); err != nil {
		return nil, err
	}
	if err := r.holder(caller, account, settings); err != nil {
		return nil, err
	}
	if collateralHint == asset {
		return nil, fmt.Errorf("%w: %s", ErrSameAsset, asset)
	}
	hintPool, err := r.pool(collateralHint)
	if err != nil {
		return nil, err
	}
	pool, err := r.pool(asset)
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
	quote, err := r.price(ctx, asset)
	if err != nil {
		return nil, err
	}
	hintLedger, err := hintPool.Ledger()
	if err != nil {
		return nil, err
	}
	power := new(big.Int).Mul(collateral, new(big.Int).SetUint64(hintLedger.Params.Risk.LoanToValue))
	needed := new(big.Int).Add(debt, quote.Value(amount))
	needed.Mul(needed, basePoints)
	if power.Cmp(needed) <= 0 {
		return nil, fmt.Errorf("%w: collateral %s, debt after borrow %s", ErrInsufficientCollateral, collateral, new(big.Int).Quo(needed, basePoints))
	}

	var pos *BorrowPosition
	for _, b := range borrows {
		if b.Asset == asset {
			pos = b
			break
		}
	}
	if pos == nil {
		pos = NewBorrowPosition(asset, account, r.round)
	}
	updated, err := pool.Borrow(r.call(), caller, pos, amount)
	if err != nil {
		return nil, err
	}
	if err := r.state.PutBorrowPosition(updated); err != nil {
		return nil, err
	}
	r.emitter.Emit(events.Borrowed{Account: account, Asset: string(asset), Amount: amount, Debt: updated.Amount})
	return updated, nil
}

// RepayResult reports a repayment.
type RepayResult struct {
	Position *BorrowPosition
	Applied  *big.Int
	Refund   *big.Int
}

// Repay applies payment, already held by the router, to the account's debt
// in the payment asset. Anyone may repay an active account's debt; the excess
// is refunded to caller.
func (r *Router) Repay(caller crypto.Address, account uint64, payment Payment) (*RepayResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if _, err := r.guard(ActionRepay); err != nil {
		return nil, err
	}
	if err := positiveAmount(payment.Amount); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ErrZeroAddress
	}
	if err := r.member(account); err != nil {
		return nil, err
	}
	pool, err := r.pool(payment.Asset)
	if err != nil {
		return nil, err
	}
	pos, ok, err := r.state.BorrowPosition(account, payment.Asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no %s debt", ErrPositionNotFound, payment.Asset)
	}
	updated, refund, err := pool.Repay(r.call(), caller, pos, payment)
	if err != nil {
		return nil, err
	}
	if err := r.storeBorrow(updated); err != nil {
		return nil, err
	}
	applied := new(big.Int).Sub(payment.Amount, refund)
	r.emitter.Emit(events.Repaid{
		Account:   account,
		Asset:     string(payment.Asset),
		Paid:      applied,
		Refund:    refund,
		Remaining: updated.Amount,
	})
	return &RepayResult{Position: updated, Applied: applied, Refund: refund}, nil
}

// UpdateCollateralWithInterest brings every deposit position of the account
// current and persists it.
func (r *Router) UpdateCollateralWithInterest(account uint64) ([]*DepositPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := r.member(account); err != nil {
		return nil, err
	}
	return r.refreshDeposits(account)
}

// UpdateBorrowsWithDebt brings every borrow position of the account current
// and persists it.
func (r *Router) UpdateBorrowsWithDebt(account uint64) ([]*BorrowPosition, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if err := r.member(account); err != nil {
		return nil, err
	}
	return r.refreshBorrows(account)
}

// markToMarket refreshes both sides of the account, deposits first.
func (r *Router) markToMarket(account uint64) ([]*DepositPosition, []*BorrowPosition, error) {
	deposits, err := r.refreshDeposits(account)
	if err != nil {
		return nil, nil, err
	}
	borrows, err := r.refreshBorrows(account)
	if err != nil {
		return nil, nil, err
	}
	return deposits, borrows, nil
}

func (r *Router) refreshDeposits(account uint64) ([]*DepositPosition, error) {
	stored, err := r.state.DepositPositions(account)
	if err != nil {
		return nil, err
	}
	out := make([]*DepositPosition, 0, len(stored))
	for _, pos := range stored {
		pool, err := r.pool(pos.Asset)
		if err != nil {
			return nil, err
		}
		updated, err := pool.UpdateCollateralWithInterest(r.call(), pos)
		if err != nil {
			return nil, err
		}
		if err := r.state.PutDepositPosition(updated); err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

func (r *Router) refreshBorrows(account uint64) ([]*BorrowPosition, error) {
	stored, err := r.state.BorrowPositions(account)
	if err != nil {
		return nil, err
	}
	out := make([]*BorrowPosition, 0, len(stored))
	for _, pos := range stored {
		pool, err := r.pool(pos.Asset)
		if err != nil {
			return nil, err
		}
		updated, err := pool.UpdateBorrowsWithDebt(r.call(), pos)
		if err != nil {
			return nil, err
		}
		if err := r.state.PutBorrowPosition(updated); err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// storeDeposit persists pos or removes it once empty.
func (r *Router) storeDeposit(pos *DepositPosition) error {
	if pos.Amount == nil || pos.Amount.Sign() == 0 {
		return r.state.DeleteDepositPosition(pos.Owner, pos.Asset)
	}
	return r.state.PutDepositPosition(pos)
}

// storeBorrow persists pos or removes it once repaid.
func (r *Router) storeBorrow(pos *BorrowPosition) error {
	if pos.Amount == nil || pos.Amount.Sign() == 0 {
		return r.state.DeleteBorrowPosition(pos.Owner, pos.Asset)
	}
	return r.state.PutBorrowPosition(pos)
}
