package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lendhub/core/events"
	"lendhub/crypto"
	nativelending "lendhub/native/lending"
	"lendhub/native/oracle"
	"lendhub/services/lending/audit"
	"lendhub/storage"
)

const (
	usdc = nativelending.AssetID("USDC-123456")
	weth = nativelending.AssetID("WETH-abcdef")
)

type recordingJournal struct {
	entries []audit.Entry
}

func (j *recordingJournal) Append(_ context.Context, entry audit.Entry) (uuid.UUID, error) {
	j.entries = append(j.entries, entry)
	return uuid.New(), nil
}

func accountAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = 0xa0
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func testParams() nativelending.PoolParams {
	return nativelending.PoolParams{
		Rates: nativelending.RateModel{
			BaseRate:           2000,
			Slope1:             4000,
			Slope2:             75000,
			OptimalUtilisation: 80000,
			ReserveFactor:      10000,
		},
		Risk: nativelending.RiskParams{
			LiquidationThreshold: 80000,
			LoanToValue:          75000,
			LiquidationBonus:     5000,
		},
		RoundsPerYear: 100,
	}
}

type serviceFixture struct {
	svc      *Service
	db       *storage.MemDB
	rounds   *ManualRounds
	journal  *recordingJournal
	operator crypto.Address
	alice    crypto.Address
	lp       crypto.Address
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		db:       storage.NewMemDB(),
		rounds:   NewManualRounds(10),
		journal:  &recordingJournal{},
		operator: accountAddress(1),
		alice:    accountAddress(2),
		lp:       accountAddress(3),
	}
	svc, err := New(f.db, Options{
		Router:   crypto.ModuleAddress(DefaultRouterName),
		Operator: f.operator,
		Rounds:   f.rounds,
		Manual:   oracle.NewManualFeed(),
		Journal:  f.journal,
	})
	require.NoError(t, err)
	f.svc = svc

	ctx := context.Background()
	_, err = svc.RegisterPool(ctx, f.operator, usdc, testParams())
	require.NoError(t, err)
	_, err = svc.RegisterPool(ctx, f.operator, weth, testParams())
	require.NoError(t, err)
	require.NoError(t, svc.SetPrice(f.operator, usdc, big.NewInt(1), 0))
	require.NoError(t, svc.SetPrice(f.operator, weth, big.NewInt(2000), 0))
	require.NoError(t, svc.Credit(ctx, f.operator, f.lp, usdc, big.NewInt(100000)))
	require.NoError(t, svc.Credit(ctx, f.operator, f.alice, weth, big.NewInt(10)))
	f.journal.entries = nil
	return f
}

func (f *serviceFixture) balance(t *testing.T, holder crypto.Address, asset nativelending.AssetID) int64 {
	t.Helper()
	bal, err := f.svc.Balance(holder, string(asset), 0)
	require.NoError(t, err)
	return bal.Int64()
}

func payment(asset nativelending.AssetID, amount int64) nativelending.Payment {
	return nativelending.Payment{Asset: asset, Amount: big.NewInt(amount)}
}

func TestNewRequiresIdentities(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
	_, err = New(storage.NewMemDB(), Options{Operator: accountAddress(1)})
	require.ErrorIs(t, err, nativelending.ErrZeroAddress)
}

func TestBorrowFlowCommitsAndPublishes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	lpAccount, err := f.svc.EnterMarket(ctx, f.lp)
	require.NoError(t, err)
	_, err = f.svc.AddCollateral(ctx, f.lp, lpAccount, payment(usdc, 50000))
	require.NoError(t, err)
	require.Equal(t, int64(50000), f.balance(t, f.lp, usdc))

	aliceAccount, err := f.svc.EnterMarket(ctx, f.alice)
	require.NoError(t, err)
	_, err = f.svc.AddCollateral(ctx, f.alice, aliceAccount, payment(weth, 10))
	require.NoError(t, err)

	pos, err := f.svc.Borrow(ctx, f.alice, aliceAccount, weth, usdc, big.NewInt(10000))
	require.NoError(t, err)
	require.Equal(t, int64(10000), pos.Amount.Int64())
	require.Equal(t, int64(10000), f.balance(t, f.alice, usdc))

	pool, err := f.svc.Pool(usdc)
	require.NoError(t, err)
	require.Equal(t, int64(40000), pool.Ledger.Reserves.Int64())
	require.Equal(t, int64(10000), pool.Ledger.TotalBorrowed.Int64())

	require.NotEmpty(t, f.journal.entries)
	last := f.journal.entries[len(f.journal.entries)-1]
	require.Equal(t, OpBorrow, last.Operation)
	require.Equal(t, uint64(10), last.Round)
	require.Equal(t, events.TypeBorrowed, last.Events[0].Type)

	health, err := f.svc.AccountHealth(ctx, aliceAccount)
	require.NoError(t, err)
	require.Equal(t, int64(20000), health.CollateralValue.Int64())
	require.False(t, health.Liquidatable)
}

func TestFailedCallRollsBackAttachedPayment(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCollateral(ctx, f.alice, 99, payment(weth, 4))
	require.ErrorIs(t, err, nativelending.ErrNotMarketMember)
	require.Equal(t, int64(10), f.balance(t, f.alice, weth))
	require.Empty(t, f.journal.entries)

	_, err = f.svc.AddCollateral(ctx, f.alice, 1, payment(weth, 11))
	require.ErrorIs(t, err, nativelending.ErrInsufficientBalance)
}

func TestInterestAccruesAcrossRounds(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	lpAccount, err := f.svc.EnterMarket(ctx, f.lp)
	require.NoError(t, err)
	_, err = f.svc.AddCollateral(ctx, f.lp, lpAccount, payment(usdc, 50000))
	require.NoError(t, err)
	aliceAccount, err := f.svc.EnterMarket(ctx, f.alice)
	require.NoError(t, err)
	_, err = f.svc.AddCollateral(ctx, f.alice, aliceAccount, payment(weth, 10))
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, f.alice, aliceAccount, weth, usdc, big.NewInt(10000))
	require.NoError(t, err)

	f.rounds.Advance(50)
	view, err := f.svc.RefreshPositions(ctx, aliceAccount)
	require.NoError(t, err)
	require.Len(t, view.Borrows, 1)
	require.Equal(t, 1, view.Borrows[0].Amount.Cmp(big.NewInt(10000)))
	require.Equal(t, uint64(60), view.Borrows[0].Round)

	pool, err := f.svc.Pool(usdc)
	require.NoError(t, err)
	require.Equal(t, 0, pool.Ledger.TotalBorrowed.Cmp(view.Borrows[0].Amount))
}

func TestMissingPriceAbortsBorrow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	aliceAccount, err := f.svc.EnterMarket(ctx, f.alice)
	require.NoError(t, err)
	_, err = f.svc.AddCollateral(ctx, f.alice, aliceAccount, payment(weth, 10))
	require.NoError(t, err)
	require.NoError(t, f.svc.SetOracleFeed(f.operator, oracle.NewManualFeed()))

	_, err = f.svc.Borrow(ctx, f.alice, aliceAccount, weth, usdc, big.NewInt(1))
	require.ErrorIs(t, err, nativelending.ErrPriceUnavailable)
	status, _ := StatusFor(err)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestOracleAdministrationRequiresOperator(t *testing.T) {
	f := newServiceFixture(t)
	require.ErrorIs(t, f.svc.SetOracleFeed(f.alice, oracle.NewManualFeed()), nativelending.ErrNotOperator)
	require.ErrorIs(t, f.svc.SetPrice(f.alice, usdc, big.NewInt(1), 0), nativelending.ErrNotOperator)
	require.ErrorIs(t, f.svc.Credit(context.Background(), f.alice, f.alice, usdc, big.NewInt(1)), nativelending.ErrNotOperator)
}

func TestSetRiskUpdatesSelectedFields(t *testing.T) {
	f := newServiceFixture(t)
	ltv := uint64(50000)
	require.NoError(t, f.svc.SetRisk(context.Background(), f.operator, usdc, RiskUpdate{LoanToValue: &ltv}))

	pool, err := f.svc.Pool(usdc)
	require.NoError(t, err)
	require.Equal(t, uint64(50000), pool.Ledger.Params.Risk.LoanToValue)
	require.Equal(t, uint64(80000), pool.Ledger.Params.Risk.LiquidationThreshold)
}

func TestGenesisAppliesOnce(t *testing.T) {
	operator := accountAddress(1)
	holder := accountAddress(9)
	doc := fmt.Sprintf(`
operator = %q

[settings]
max_liquidation_threshold = 90000

[[pools]]
asset = "USDC-123456"
[pools.params]
rounds_per_year = 100
[pools.params.rates]
base_rate = 2000
slope1 = 4000
slope2 = 75000
optimal_utilisation = 80000
reserve_factor = 10000
[pools.params.risk]
liquidation_threshold = 80000
loan_to_value = 75000
liquidation_bonus = 5000

[[collections]]
collection = "APE-abcdef"
floor_price = "7000000000"
loan_to_value = 50000

[[prices]]
asset = "USDC-123456"
price = "1"

[[balances]]
address = %q
asset = "USDC-123456"
amount = "500"

[[nfts]]
address = %q
collection = "APE-abcdef"
count = 2
`, operator.String(), holder.String(), holder.String())

	path := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	genesis, err := LoadGenesis(path)
	require.NoError(t, err)

	svc, err := New(storage.NewMemDB(), Options{
		Router:   genesis.RouterAddress(),
		Operator: operator,
		Rounds:   NewManualRounds(1),
		Manual:   oracle.NewManualFeed(),
	})
	require.NoError(t, err)

	applied, err := svc.ApplyGenesis(context.Background(), genesis)
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = svc.ApplyGenesis(context.Background(), genesis)
	require.NoError(t, err)
	require.False(t, applied)

	pools, err := svc.Pools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	settings, err := svc.Settings()
	require.NoError(t, err)
	require.Equal(t, uint64(90000), settings.MaxLiquidationThreshold)

	bal, err := svc.Balance(holder, "USDC-123456", 0)
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Int64())
	owned, err := svc.Balance(holder, "APE-abcdef", 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), owned.Int64())
}

func TestLoadGenesisRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.toml")
	doc := fmt.Sprintf("operator = %q\nsurprise = 1\n", accountAddress(1).String())
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	_, err := LoadGenesis(path)
	require.Error(t, err)
}

func TestClockRoundsNeverDecrease(t *testing.T) {
	clock := NewClockRounds(10 * time.Second)
	now := time.Unix(1000, 0)
	clock.now = func() time.Time { return now }
	require.Equal(t, uint64(100), clock.Round())
	now = time.Unix(500, 0)
	require.Equal(t, uint64(100), clock.Round())
	now = time.Unix(1105, 0)
	require.Equal(t, uint64(110), clock.Round())
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "nil", err: nil, code: http.StatusOK},
		{name: "unauthenticated", err: ErrUnauthenticated, code: http.StatusUnauthorized},
		{name: "operator", err: fmt.Errorf("wrap: %w", nativelending.ErrNotOperator), code: http.StatusForbidden},
		{name: "paused", err: fmt.Errorf("wrap: %w", nativelending.ErrPaused), code: http.StatusServiceUnavailable},
		{name: "invalid amount", err: nativelending.ErrInvalidAmount, code: http.StatusBadRequest},
		{name: "collateral", err: nativelending.ErrInsufficientCollateral, code: http.StatusUnprocessableEntity},
		{name: "liquidity", err: nativelending.ErrInsufficientLiquidity, code: http.StatusConflict},
		{name: "missing position", err: nativelending.ErrPositionNotFound, code: http.StatusNotFound},
		{name: "unknown", err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, _ := StatusFor(tc.err)
			if code != tc.code {
				t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, code, tc.code)
			}
		})
	}
}

func TestJournalIntegration(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	journal, err := audit.Open(audit.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	operator := accountAddress(1)
	svc, err := New(storage.NewMemDB(), Options{
		Router:   crypto.ModuleAddress(DefaultRouterName),
		Operator: operator,
		Rounds:   NewManualRounds(3),
		Journal:  journal,
	})
	require.NoError(t, err)
	_, err = svc.RegisterPool(context.Background(), operator, usdc, testParams())
	require.NoError(t, err)
	_, err = svc.EnterMarket(context.Background(), accountAddress(2))
	require.NoError(t, err)

	recorded, err := journal.List(context.Background(), audit.Query{})
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	require.Equal(t, events.TypePoolRegistered, recorded[0].Type)
	require.Equal(t, events.TypeMarketEntered, recorded[1].Type)
}
