package state

import (
	"math/big"

	"lendhub/native/bank"
)

var _ bank.State = (*Manager)(nil)

// TokenBalance returns the stored balance or zero.
func (m *Manager) TokenBalance(holder []byte, asset string, nonce uint64) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(tokenBalanceKey(holder, asset, nonce), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

// SetTokenBalance stores amount; a zero balance removes the record.
func (m *Manager) SetTokenBalance(holder []byte, asset string, nonce uint64, amount *big.Int) error {
	key := tokenBalanceKey(holder, asset, nonce)
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}

// NextTokenNonce allocates the next nonce of collection, starting at one.
func (m *Manager) NextTokenNonce(collection string) (uint64, error) {
	var last uint64
	if _, err := m.KVGet(tokenNonceKey(collection), &last); err != nil {
		return 0, err
	}
	last++
	if err := m.KVPut(tokenNonceKey(collection), last); err != nil {
		return 0, err
	}
	return last, nil
}
