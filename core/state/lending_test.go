package state

import (
	"math/big"
	"testing"

	"lendhub/native/lending"
	"lendhub/storage"
)

func newTestManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func TestDepositPositionsKeepInsertionOrder(t *testing.T) {
	m := newTestManager()
	for _, asset := range []lending.AssetID{"WETH-abcdef", "USDC-123456", "WBTC-000001"} {
		pos := lending.NewDepositPosition(asset, 7, 3)
		pos.Amount = big.NewInt(100)
		if err := m.PutDepositPosition(pos); err != nil {
			t.Fatalf("put %s: %v", asset, err)
		}
	}
	// Rewriting a position must not move it in the index.
	again, ok, err := m.DepositPosition(7, "WETH-abcdef")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	again.Amount = big.NewInt(250)
	if err := m.PutDepositPosition(again); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	positions, err := m.DepositPositions(7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []lending.AssetID{"WETH-abcdef", "USDC-123456", "WBTC-000001"}
	if len(positions) != len(want) {
		t.Fatalf("expected %d positions, got %d", len(want), len(positions))
	}
	for i, pos := range positions {
		if pos.Asset != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], pos.Asset)
		}
	}
	if positions[0].Amount.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected rewritten amount, got %s", positions[0].Amount)
	}

	if err := m.DeleteDepositPosition(7, "USDC-123456"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	positions, err = m.DepositPositions(7)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(positions) != 2 || positions[0].Asset != "WETH-abcdef" || positions[1].Asset != "WBTC-000001" {
		t.Fatalf("unexpected positions after delete: %+v", positions)
	}
	if _, ok, _ := m.DepositPosition(7, "USDC-123456"); ok {
		t.Fatalf("deleted position still readable")
	}
}

func TestBorrowPositionsAreScopedByOwner(t *testing.T) {
	m := newTestManager()
	a := lending.NewBorrowPosition("USDC-123456", 1, 5)
	a.Amount = big.NewInt(10)
	b := lending.NewBorrowPosition("USDC-123456", 2, 5)
	b.Amount = big.NewInt(20)
	if err := m.PutBorrowPosition(a); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := m.PutBorrowPosition(b); err != nil {
		t.Fatalf("put b: %v", err)
	}
	one, err := m.BorrowPositions(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(one) != 1 || one[0].Amount.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected positions for owner 1: %+v", one)
	}
	if err := m.DeleteBorrowPosition(1, "USDC-123456"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left, _ := m.BorrowPositions(1); len(left) != 0 {
		t.Fatalf("expected no positions for owner 1, got %d", len(left))
	}
	if left, _ := m.BorrowPositions(2); len(left) != 1 {
		t.Fatalf("owner 2 must keep its position")
	}
}

func TestActiveAccountsIndex(t *testing.T) {
	m := newTestManager()
	for _, nonce := range []uint64{3, 1, 2, 3} {
		if err := m.AddActiveAccount(nonce); err != nil {
			t.Fatalf("add %d: %v", nonce, err)
		}
	}
	accounts, err := m.ActiveAccounts()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != 3 || accounts[0] != 3 || accounts[1] != 1 || accounts[2] != 2 {
		t.Fatalf("unexpected accounts: %v", accounts)
	}
	if err := m.RemoveActiveAccount(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if active, _ := m.IsActiveAccount(1); active {
		t.Fatalf("account 1 should be inactive")
	}
	if active, _ := m.IsActiveAccount(2); !active {
		t.Fatalf("account 2 should be active")
	}
}

func TestSettingsDefaultAndGenesisMarker(t *testing.T) {
	m := newTestManager()
	settings, err := m.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.MaxLiquidationThreshold != lending.BP {
		t.Fatalf("expected default threshold, got %d", settings.MaxLiquidationThreshold)
	}
	settings.Paused = []string{"borrow"}
	if err := m.PutSettings(settings); err != nil {
		t.Fatalf("put settings: %v", err)
	}
	stored, err := m.Settings()
	if err != nil || !stored.IsPaused("borrow") {
		t.Fatalf("expected borrow paused, err=%v", err)
	}

	if _, done, err := m.GenesisRound(); err != nil || done {
		t.Fatalf("fresh state must not carry a genesis marker: done=%v err=%v", done, err)
	}
	if err := m.MarkGenesis(0); err != nil {
		t.Fatalf("mark: %v", err)
	}
	round, done, err := m.GenesisRound()
	if err != nil || !done || round != 0 {
		t.Fatalf("expected marker at round 0, got round=%d done=%v err=%v", round, done, err)
	}
}

func TestTokenBalancesAndNonces(t *testing.T) {
	m := newTestManager()
	holder := []byte{0xaa}
	if err := m.SetTokenBalance(holder, "USDC-123456", 0, big.NewInt(42)); err != nil {
		t.Fatalf("set: %v", err)
	}
	bal, err := m.TokenBalance(holder, "USDC-123456", 0)
	if err != nil || bal.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected balance %v err %v", bal, err)
	}
	if err := m.SetTokenBalance(holder, "USDC-123456", 0, new(big.Int)); err != nil {
		t.Fatalf("zero: %v", err)
	}
	if bal, _ := m.TokenBalance(holder, "USDC-123456", 0); bal.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", bal)
	}

	for want := uint64(1); want <= 3; want++ {
		nonce, err := m.NextTokenNonce("LACC-abcdef")
		if err != nil || nonce != want {
			t.Fatalf("expected nonce %d, got %d err %v", want, nonce, err)
		}
	}
	if nonce, _ := m.NextTokenNonce("XDEBT-abcdef"); nonce != 1 {
		t.Fatalf("collections must allocate independently, got %d", nonce)
	}
}
