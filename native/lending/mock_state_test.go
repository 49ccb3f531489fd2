package lending

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"lendhub/crypto"
	"lendhub/native/oracle"
)

type mockState struct {
	ledgers     map[AssetID]*PoolLedger
	deposits    map[uint64][]*DepositPosition
	borrows     map[uint64][]*BorrowPosition
	nftBorrows  map[uint64]*BorrowPosition
	records     map[AssetID]*PoolRecord
	assets      []AssetID
	collections map[string]*CollectionParams
	collOrder   []string
	active      []uint64
	settings    *Settings
}

var _ State = (*mockState)(nil)

func newMockState() *mockState {
	return &mockState{
		ledgers:     make(map[AssetID]*PoolLedger),
		deposits:    make(map[uint64][]*DepositPosition),
		borrows:     make(map[uint64][]*BorrowPosition),
		nftBorrows:  make(map[uint64]*BorrowPosition),
		records:     make(map[AssetID]*PoolRecord),
		collections: make(map[string]*CollectionParams),
	}
}

func (m *mockState) PoolLedger(asset AssetID) (*PoolLedger, bool, error) {
	l, ok := m.ledgers[asset]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (m *mockState) PutPoolLedger(ledger *PoolLedger) error {
	m.ledgers[ledger.Asset] = ledger.Clone()
	return nil
}

func (m *mockState) DepositPositions(owner uint64) ([]*DepositPosition, error) {
	out := make([]*DepositPosition, 0, len(m.deposits[owner]))
	for _, p := range m.deposits[owner] {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockState) DepositPosition(owner uint64, asset AssetID) (*DepositPosition, bool, error) {
	for _, p := range m.deposits[owner] {
		if p.Asset == asset {
			return p.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (m *mockState) PutDepositPosition(pos *DepositPosition) error {
	list := m.deposits[pos.Owner]
	for i, p := range list {
		if p.Asset == pos.Asset {
			list[i] = pos.Clone()
			return nil
		}
	}
	m.deposits[pos.Owner] = append(list, pos.Clone())
	return nil
}

func (m *mockState) DeleteDepositPosition(owner uint64, asset AssetID) error {
	list := m.deposits[owner]
	for i, p := range list {
		if p.Asset == asset {
			m.deposits[owner] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockState) BorrowPositions(owner uint64) ([]*BorrowPosition, error) {
	out := make([]*BorrowPosition, 0, len(m.borrows[owner]))
	for _, p := range m.borrows[owner] {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *mockState) BorrowPosition(owner uint64, asset AssetID) (*BorrowPosition, bool, error) {
	for _, p := range m.borrows[owner] {
		if p.Asset == asset {
			return p.Clone(), true, nil
		}
	}
	return nil, false, nil
}

func (m *mockState) PutBorrowPosition(pos *BorrowPosition) error {
	list := m.borrows[pos.Owner]
	for i, p := range list {
		if p.Asset == pos.Asset {
			list[i] = pos.Clone()
			return nil
		}
	}
	m.borrows[pos.Owner] = append(list, pos.Clone())
	return nil
}

func (m *mockState) DeleteBorrowPosition(owner uint64, asset AssetID) error {
	list := m.borrows[owner]
	for i, p := range list {
		if p.Asset == asset {
			m.borrows[owner] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockState) NFTBorrowPosition(certificate uint64) (*BorrowPosition, bool, error) {
	p, ok := m.nftBorrows[certificate]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PutNFTBorrowPosition(pos *BorrowPosition) error {
	m.nftBorrows[pos.Certificate] = pos.Clone()
	return nil
}

func (m *mockState) DeleteNFTBorrowPosition(certificate uint64) error {
	delete(m.nftBorrows, certificate)
	return nil
}

func (m *mockState) PoolRecord(asset AssetID) (*PoolRecord, bool, error) {
	rec, ok := m.records[asset]
	return rec, ok, nil
}

func (m *mockState) PutPoolRecord(rec *PoolRecord) error {
	if _, ok := m.records[rec.Asset]; !ok {
		m.assets = append(m.assets, rec.Asset)
	}
	m.records[rec.Asset] = rec
	return nil
}

func (m *mockState) PoolAssets() ([]AssetID, error) {
	return append([]AssetID(nil), m.assets...), nil
}

func (m *mockState) Collection(id string) (*CollectionParams, bool, error) {
	c, ok := m.collections[id]
	return c.Clone(), ok, nil
}

func (m *mockState) PutCollection(params *CollectionParams) error {
	if _, ok := m.collections[params.Collection]; !ok {
		m.collOrder = append(m.collOrder, params.Collection)
	}
	m.collections[params.Collection] = params.Clone()
	return nil
}

func (m *mockState) Collections() ([]string, error) {
	return append([]string(nil), m.collOrder...), nil
}

func (m *mockState) IsActiveAccount(nonce uint64) (bool, error) {
	for _, a := range m.active {
		if a == nonce {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockState) AddActiveAccount(nonce uint64) error {
	m.active = append(m.active, nonce)
	return nil
}

func (m *mockState) RemoveActiveAccount(nonce uint64) error {
	for i, a := range m.active {
		if a == nonce {
			m.active = append(m.active[:i:i], m.active[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockState) ActiveAccounts() ([]uint64, error) {
	return append([]uint64(nil), m.active...), nil
}

func (m *mockState) Settings() (Settings, error) {
	if m.settings == nil {
		return DefaultSettings(), nil
	}
	return *m.settings, nil
}

func (m *mockState) PutSettings(settings Settings) error {
	m.settings = &settings
	return nil
}

type mockTokens struct {
	balances map[string]*big.Int
	nonces   map[string]uint64
}

var _ Tokens = (*mockTokens)(nil)

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[string]*big.Int), nonces: make(map[string]uint64)}
}

func (t *mockTokens) key(holder crypto.Address, asset string, nonce uint64) string {
	return fmt.Sprintf("%x/%s/%d", holder.Bytes(), asset, nonce)
}

func (t *mockTokens) Balance(holder crypto.Address, asset string, nonce uint64) (*big.Int, error) {
	if bal, ok := t.balances[t.key(holder, asset, nonce)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (t *mockTokens) credit(to crypto.Address, asset string, nonce uint64, amount *big.Int) {
	bal, _ := t.Balance(to, asset, nonce)
	t.balances[t.key(to, asset, nonce)] = bal.Add(bal, amount)
}

func (t *mockTokens) Transfer(from, to crypto.Address, asset string, nonce uint64, amount *big.Int) error {
	bal, _ := t.Balance(from, asset, nonce)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s/%d: have %s, need %s", asset, nonce, bal, amount)
	}
	t.balances[t.key(from, asset, nonce)] = bal.Sub(bal, amount)
	t.credit(to, asset, nonce, amount)
	return nil
}

func (t *mockTokens) MintNFT(collection string, to crypto.Address, units uint64) (uint64, error) {
	t.nonces[collection]++
	nonce := t.nonces[collection]
	t.credit(to, collection, nonce, new(big.Int).SetUint64(units))
	return nonce, nil
}

func (t *mockTokens) BurnNFT(from crypto.Address, collection string, nonce uint64, units uint64) error {
	bal, _ := t.Balance(from, collection, nonce)
	want := new(big.Int).SetUint64(units)
	if bal.Cmp(want) < 0 {
		return fmt.Errorf("burn %s/%d: not held", collection, nonce)
	}
	t.balances[t.key(from, collection, nonce)] = bal.Sub(bal, want)
	return nil
}

func (t *mockTokens) Owns(holder crypto.Address, collection string, nonce uint64, units uint64) (bool, error) {
	bal, _ := t.Balance(holder, collection, nonce)
	return bal.Cmp(new(big.Int).SetUint64(units)) >= 0, nil
}

type mockPrices map[AssetID]*big.Int

func (m mockPrices) Price(_ context.Context, asset string) (oracle.Quote, error) {
	price, ok := m[AssetID(asset)]
	if !ok {
		return oracle.Quote{}, fmt.Errorf("%w: %s", oracle.ErrPriceUnavailable, asset)
	}
	return oracle.Quote{Price: new(big.Int).Set(price)}, nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(prefix, raw)
}

func requireAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %v, want %d", label, got, want)
	}
}

func fungible(asset AssetID, amount int64) Payment {
	return Payment{Asset: asset, Amount: big.NewInt(amount)}
}
