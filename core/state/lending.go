package state

import (
	"encoding/binary"
	"fmt"

	"lendhub/native/lending"
)

var _ lending.State = (*Manager)(nil)

// PoolLedger loads the ledger of asset.
func (m *Manager) PoolLedger(asset lending.AssetID) (*lending.PoolLedger, bool, error) {
	ledger := new(lending.PoolLedger)
	ok, err := m.KVGet(poolLedgerKey(string(asset)), ledger)
	if err != nil || !ok {
		return nil, ok, err
	}
	return ledger, true, nil
}

// PutPoolLedger stores the ledger under its asset.
func (m *Manager) PutPoolLedger(ledger *lending.PoolLedger) error {
	if ledger == nil {
		return fmt.Errorf("state: nil pool ledger")
	}
	return m.KVPut(poolLedgerKey(string(ledger.Asset)), ledger)
}

func (m *Manager) DepositPositions(owner uint64) ([]*lending.DepositPosition, error) {
	var assets [][]byte
	if err := m.KVGetList(depositIndexKey(owner), &assets); err != nil {
		return nil, err
	}
	out := make([]*lending.DepositPosition, 0, len(assets))
	for _, asset := range assets {
		pos, ok, err := m.DepositPosition(owner, lending.AssetID(asset))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *Manager) DepositPosition(owner uint64, asset lending.AssetID) (*lending.DepositPosition, bool, error) {
	pos := new(lending.DepositPosition)
	ok, err := m.KVGet(depositKey(owner, string(asset)), pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pos, true, nil
}

func (m *Manager) PutDepositPosition(pos *lending.DepositPosition) error {
	if pos == nil {
		return fmt.Errorf("state: nil deposit position")
	}
	if err := m.KVPut(depositKey(pos.Owner, string(pos.Asset)), pos); err != nil {
		return err
	}
	return m.KVAppend(depositIndexKey(pos.Owner), []byte(pos.Asset))
}

func (m *Manager) DeleteDepositPosition(owner uint64, asset lending.AssetID) error {
	if err := m.KVDelete(depositKey(owner, string(asset))); err != nil {
		return err
	}
	return m.KVRemove(depositIndexKey(owner), []byte(asset))
}

func (m *Manager) BorrowPositions(owner uint64) ([]*lending.BorrowPosition, error) {
	var assets [][]byte
	if err := m.KVGetList(borrowIndexKey(owner), &assets); err != nil {
		return nil, err
	}
	out := make([]*lending.BorrowPosition, 0, len(assets))
	for _, asset := range assets {
		pos, ok, err := m.BorrowPosition(owner, lending.AssetID(asset))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *Manager) BorrowPosition(owner uint64, asset lending.AssetID) (*lending.BorrowPosition, bool, error) {
	pos := new(lending.BorrowPosition)
	ok, err := m.KVGet(borrowKey(owner, string(asset)), pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pos, true, nil
}

func (m *Manager) PutBorrowPosition(pos *lending.BorrowPosition) error {
	if pos == nil {
		return fmt.Errorf("state: nil borrow position")
	}
	if err := m.KVPut(borrowKey(pos.Owner, string(pos.Asset)), pos); err != nil {
		return err
	}
	return m.KVAppend(borrowIndexKey(pos.Owner), []byte(pos.Asset))
}

func (m *Manager) DeleteBorrowPosition(owner uint64, asset lending.AssetID) error {
	if err := m.KVDelete(borrowKey(owner, string(asset))); err != nil {
		return err
	}
	return m.KVRemove(borrowIndexKey(owner), []byte(asset))
}

func (m *Manager) NFTBorrowPosition(certificate uint64) (*lending.BorrowPosition, bool, error) {
	pos := new(lending.BorrowPosition)
	ok, err := m.KVGet(nftBorrowKey(certificate), pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	return pos, true, nil
}

func (m *Manager) PutNFTBorrowPosition(pos *lending.BorrowPosition) error {
	if pos == nil || pos.Certificate == 0 {
		return fmt.Errorf("state: nft borrow position requires a certificate nonce")
	}
	return m.KVPut(nftBorrowKey(pos.Certificate), pos)
}

func (m *Manager) DeleteNFTBorrowPosition(certificate uint64) error {
	return m.KVDelete(nftBorrowKey(certificate))
}

func (m *Manager) PoolRecord(asset lending.AssetID) (*lending.PoolRecord, bool, error) {
	rec := new(lending.PoolRecord)
	ok, err := m.KVGet(poolRecordKey(string(asset)), rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec, true, nil
}

func (m *Manager) PutPoolRecord(rec *lending.PoolRecord) error {
	if rec == nil {
		return fmt.Errorf("state: nil pool record")
	}
	if err := m.KVPut(poolRecordKey(string(rec.Asset)), rec); err != nil {
		return err
	}
	return m.KVAppend([]byte(poolAssetsKey), []byte(rec.Asset))
}

func (m *Manager) PoolAssets() ([]lending.AssetID, error) {
	var raw [][]byte
	if err := m.KVGetList([]byte(poolAssetsKey), &raw); err != nil {
		return nil, err
	}
	out := make([]lending.AssetID, len(raw))
	for i, asset := range raw {
		out[i] = lending.AssetID(asset)
	}
	return out, nil
}

func (m *Manager) Collection(id string) (*lending.CollectionParams, bool, error) {
	params := new(lending.CollectionParams)
	ok, err := m.KVGet(collectionKey(id), params)
	if err != nil || !ok {
		return nil, ok, err
	}
	return params, true, nil
}

func (m *Manager) PutCollection(params *lending.CollectionParams) error {
	if params == nil {
		return fmt.Errorf("state: nil collection params")
	}
	if err := m.KVPut(collectionKey(params.Collection), params); err != nil {
		return err
	}
	return m.KVAppend([]byte(collectionsKey), []byte(params.Collection))
}

func (m *Manager) Collections() ([]string, error) {
	var raw [][]byte
	if err := m.KVGetList([]byte(collectionsKey), &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, id := range raw {
		out[i] = string(id)
	}
	return out, nil
}

func (m *Manager) IsActiveAccount(nonce uint64) (bool, error) {
	var active bool
	ok, err := m.KVGet(activeAccountKey(nonce), &active)
	if err != nil {
		return false, err
	}
	return ok && active, nil
}

func (m *Manager) AddActiveAccount(nonce uint64) error {
	if err := m.KVPut(activeAccountKey(nonce), true); err != nil {
		return err
	}
	return m.KVAppend([]byte(activeAccountsKey), uint64Bytes(nonce))
}

func (m *Manager) RemoveActiveAccount(nonce uint64) error {
	if err := m.KVDelete(activeAccountKey(nonce)); err != nil {
		return err
	}
	return m.KVRemove([]byte(activeAccountsKey), uint64Bytes(nonce))
}

func (m *Manager) ActiveAccounts() ([]uint64, error) {
	var raw [][]byte
	if err := m.KVGetList([]byte(activeAccountsKey), &raw); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("state: malformed account index entry")
		}
		out = append(out, binary.BigEndian.Uint64(entry))
	}
	return out, nil
}

// Settings returns the stored protocol settings, or the defaults before the
// first write.
func (m *Manager) Settings() (lending.Settings, error) {
	var settings lending.Settings
	ok, err := m.KVGet([]byte(settingsKey), &settings)
	if err != nil {
		return lending.Settings{}, err
	}
	if !ok {
		return lending.DefaultSettings(), nil
	}
	return settings, nil
}

func (m *Manager) PutSettings(settings lending.Settings) error {
	return m.KVPut([]byte(settingsKey), settings)
}

// GenesisRound reports the round the protocol genesis was applied in.
func (m *Manager) GenesisRound() (uint64, bool, error) {
	var round uint64
	ok, err := m.KVGet([]byte(genesisKey), &round)
	if err != nil {
		return 0, false, err
	}
	return round, ok, nil
}

// MarkGenesis records that the protocol genesis was applied in round.
func (m *Manager) MarkGenesis(round uint64) error {
	return m.KVPut([]byte(genesisKey), round)
}
