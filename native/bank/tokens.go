package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lendhub/crypto"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrInvalidAddress    = errors.New("bank: address required")
	ErrInvalidAsset      = errors.New("bank: asset required")
)

// State persists balances keyed by (holder, asset, nonce). Fungible balances
// use nonce zero; every non-fungible unit has its own non-zero nonce.
type State interface {
	TokenBalance(holder []byte, asset string, nonce uint64) (*big.Int, error)
	SetTokenBalance(holder []byte, asset string, nonce uint64, amount *big.Int) error
	NextTokenNonce(collection string) (uint64, error)
}

// Ledger implements the token primitives: transfers, fungible credits and
// non-fungible mint/burn.
type Ledger struct {
	state State
}

// NewLedger constructs a ledger over the supplied state.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// Balance returns the holder's balance of (asset, nonce).
func (l *Ledger) Balance(holder crypto.Address, asset string, nonce uint64) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state not configured")
	}
	bal, err := l.state.TokenBalance(holder.Bytes(), asset, nonce)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return big.NewInt(0), nil
	}
	return bal, nil
}

// Transfer moves amount of (asset, nonce) from one holder to another.
func (l *Ledger) Transfer(from, to crypto.Address, asset string, nonce uint64, amount *big.Int) error {
	if err := validate(asset, amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAddress
	}
	if err := l.debit(from, asset, nonce, amount); err != nil {
		return err
	}
	return l.credit(to, asset, nonce, amount)
}

// Credit mints a fungible or semi-fungible amount to holder. Used to seed
// balances at genesis and in tests.
func (l *Ledger) Credit(to crypto.Address, asset string, nonce uint64, amount *big.Int) error {
	if err := validate(asset, amount); err != nil {
		return err
	}
	if to.IsZero() {
		return ErrInvalidAddress
	}
	return l.credit(to, asset, nonce, amount)
}

// MintNFT creates a fresh unit of collection owned by to and returns its
// nonce. Nonces start at one and never repeat.
func (l *Ledger) MintNFT(collection string, to crypto.Address, units uint64) (uint64, error) {
	if units == 0 {
		units = 1
	}
	if strings.TrimSpace(collection) == "" {
		return 0, ErrInvalidAsset
	}
	if to.IsZero() {
		return 0, ErrInvalidAddress
	}
	nonce, err := l.state.NextTokenNonce(collection)
	if err != nil {
		return 0, err
	}
	if err := l.credit(to, collection, nonce, new(big.Int).SetUint64(units)); err != nil {
		return 0, err
	}
	return nonce, nil
}

// BurnNFT destroys units of (collection, nonce) held by from.
func (l *Ledger) BurnNFT(from crypto.Address, collection string, nonce uint64, units uint64) error {
	if units == 0 {
		units = 1
	}
	return l.debit(from, collection, nonce, new(big.Int).SetUint64(units))
}

// Owns reports whether holder has at least units of (collection, nonce).
func (l *Ledger) Owns(holder crypto.Address, collection string, nonce uint64, units uint64) (bool, error) {
	if units == 0 {
		units = 1
	}
	bal, err := l.Balance(holder, collection, nonce)
	if err != nil {
		return false, err
	}
	return bal.Cmp(new(big.Int).SetUint64(units)) >= 0, nil
}

func (l *Ledger) debit(from crypto.Address, asset string, nonce uint64, amount *big.Int) error {
	bal, err := l.Balance(from, asset, nonce)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientFunds, from, bal, label(asset, nonce), amount)
	}
	return l.state.SetTokenBalance(from.Bytes(), asset, nonce, new(big.Int).Sub(bal, amount))
}

func (l *Ledger) credit(to crypto.Address, asset string, nonce uint64, amount *big.Int) error {
	bal, err := l.Balance(to, asset, nonce)
	if err != nil {
		return err
	}
	return l.state.SetTokenBalance(to.Bytes(), asset, nonce, new(big.Int).Add(bal, amount))
}

func validate(asset string, amount *big.Int) error {
	if strings.TrimSpace(asset) == "" {
		return ErrInvalidAsset
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func label(asset string, nonce uint64) string {
	if nonce == 0 {
		return asset
	}
	return fmt.Sprintf("%s#%d", asset, nonce)
}
