package lending

import (
	"context"
	"math/big"

	"lendhub/crypto"
	"lendhub/native/oracle"
)

// PoolStore persists pool ledgers. Only the Pool Engine that owns an asset
// writes its ledger.
type PoolStore interface {
	PoolLedger(asset AssetID) (*PoolLedger, bool, error)
	PutPoolLedger(ledger *PoolLedger) error
}

// PositionStore persists account-keyed and certificate-keyed positions.
// Deposit and borrow listings come back in insertion order.
type PositionStore interface {
	DepositPositions(owner uint64) ([]*DepositPosition, error)
	DepositPosition(owner uint64, asset AssetID) (*DepositPosition, bool, error)
	PutDepositPosition(pos *DepositPosition) error
	DeleteDepositPosition(owner uint64, asset AssetID) error

	BorrowPositions(owner uint64) ([]*BorrowPosition, error)
	BorrowPosition(owner uint64, asset AssetID) (*BorrowPosition, bool, error)
	PutBorrowPosition(pos *BorrowPosition) error
	DeleteBorrowPosition(owner uint64, asset AssetID) error

	NFTBorrowPosition(certificate uint64) (*BorrowPosition, bool, error)
	PutNFTBorrowPosition(pos *BorrowPosition) error
	DeleteNFTBorrowPosition(certificate uint64) error
}

// RegistryStore persists the asset registry, NFT collections, market
// membership and protocol settings.
type RegistryStore interface {
	PoolRecord(asset AssetID) (*PoolRecord, bool, error)
	PutPoolRecord(rec *PoolRecord) error
	PoolAssets() ([]AssetID, error)

	Collection(id string) (*CollectionParams, bool, error)
	PutCollection(params *CollectionParams) error
	Collections() ([]string, error)

	IsActiveAccount(nonce uint64) (bool, error)
	AddActiveAccount(nonce uint64) error
	RemoveActiveAccount(nonce uint64) error
	ActiveAccounts() ([]uint64, error)

	Settings() (Settings, error)
	PutSettings(settings Settings) error
}

// State is the full persistence surface used by one router call.
type State interface {
	PoolStore
	PositionStore
	RegistryStore
}

// Tokens are the token primitives provided by the hosting environment.
type Tokens interface {
	Balance(holder crypto.Address, asset string, nonce uint64) (*big.Int, error)
	Transfer(from, to crypto.Address, asset string, nonce uint64, amount *big.Int) error
	MintNFT(collection string, to crypto.Address, units uint64) (uint64, error)
	BurnNFT(from crypto.Address, collection string, nonce uint64, units uint64) error
	Owns(holder crypto.Address, collection string, nonce uint64, units uint64) (bool, error)
}

// PriceSource resolves quote-currency prices for asset identifiers.
type PriceSource interface {
	Price(ctx context.Context, asset string) (oracle.Quote, error)
}
