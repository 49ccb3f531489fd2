package lending

import (
	"context"
	"math/big"

	"lendhub/crypto"
	nativelending "lendhub/native/lending"
)

// PoolView is a pool's ledger together with the rates it implies.
type PoolView struct {
	Address crypto.Address
	Ledger  *nativelending.PoolLedger
	Rates   *nativelending.PoolRates
}

// AccountView lists an account's positions brought to the current round.
type AccountView struct {
	Account  uint64
	Active   bool
	Deposits []*nativelending.DepositPosition
	Borrows  []*nativelending.BorrowPosition
}

// Pools returns every registered pool in registration order.
func (s *Service) Pools() ([]*PoolView, error) {
	var out []*PoolView
	err := s.view("pools", func(tx *txn) error {
		assets, err := tx.router.Pools()
		if err != nil {
			return err
		}
		out = make([]*PoolView, 0, len(assets))
		for _, asset := range assets {
			view, err := poolView(tx, asset)
			if err != nil {
				return err
			}
			out = append(out, view)
		}
		return nil
	})
	return out, err
}

// Pool returns the pool of asset.
func (s *Service) Pool(asset nativelending.AssetID) (*PoolView, error) {
	var out *PoolView
	err := s.view("pool", func(tx *txn) error {
		var err error
		out, err = poolView(tx, asset)
		return err
	})
	return out, err
}

func poolView(tx *txn, asset nativelending.AssetID) (*PoolView, error) {
	ledger, err := tx.router.PoolLedger(asset)
	if err != nil {
		return nil, err
	}
	rates, err := tx.router.Rates(asset)
	if err != nil {
		return nil, err
	}
	address := nativelending.PoolAddress(asset)
	if rec, ok, err := tx.state.PoolRecord(asset); err != nil {
		return nil, err
	} else if ok && len(rec.Address) == crypto.AddressLength {
		address = crypto.NewAddress(crypto.ModulePrefix, rec.Address)
	}
	return &PoolView{Address: address, Ledger: ledger, Rates: rates}, nil
}

// Account returns the account's positions.
func (s *Service) Account(account uint64) (*AccountView, error) {
	out := &AccountView{Account: account}
	err := s.view("account", func(tx *txn) error {
		var err error
		if out.Active, err = tx.state.IsActiveAccount(account); err != nil {
			return err
		}
		if out.Deposits, err = tx.router.DepositPositions(account); err != nil {
			return err
		}
		out.Borrows, err = tx.router.BorrowPositions(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AccountHealth values the account in the quote currency.
func (s *Service) AccountHealth(ctx context.Context, account uint64) (*nativelending.AccountHealth, error) {
	var out *nativelending.AccountHealth
	err := s.view("account_health", func(tx *txn) error {
		var err error
		out, err = tx.router.AccountHealth(ctx, account)
		return err
	})
	return out, err
}

// NFTBorrowPosition returns the debt behind a certificate.
func (s *Service) NFTBorrowPosition(certificate uint64) (*nativelending.BorrowPosition, error) {
	var out *nativelending.BorrowPosition
	err := s.view("nft_borrow_position", func(tx *txn) error {
		var err error
		out, err = tx.router.NFTBorrowPosition(certificate)
		return err
	})
	return out, err
}

// Collections lists the registered NFT collections.
func (s *Service) Collections() ([]*nativelending.CollectionParams, error) {
	var out []*nativelending.CollectionParams
	err := s.view("collections", func(tx *txn) error {
		var err error
		out, err = tx.router.Collections()
		return err
	})
	return out, err
}

// ActiveAccounts lists the active membership nonces.
func (s *Service) ActiveAccounts() ([]uint64, error) {
	var out []uint64
	err := s.view("active_accounts", func(tx *txn) error {
		var err error
		out, err = tx.router.ActiveAccounts()
		return err
	})
	return out, err
}

// Settings returns the protocol settings.
func (s *Service) Settings() (nativelending.Settings, error) {
	var out nativelending.Settings
	err := s.view("settings", func(tx *txn) error {
		var err error
		out, err = tx.state.Settings()
		return err
	})
	return out, err
}

// Balance returns holder's balance of (asset, nonce).
func (s *Service) Balance(holder crypto.Address, asset string, nonce uint64) (*big.Int, error) {
	var out *big.Int
	err := s.view("balance", func(tx *txn) error {
		var err error
		out, err = tx.tokens.Balance(holder, asset, nonce)
		return err
	})
	return out, err
}
