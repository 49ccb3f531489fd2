package state

const (
	poolLedgerPrefix    = "lending/pool/ledger"
	poolRecordPrefix    = "lending/registry/pool"
	poolAssetsKey       = "lending/registry/assets"
	depositPrefix       = "lending/position/deposit"
	depositIndexPrefix  = "lending/position/deposit-index"
	borrowPrefix        = "lending/position/borrow"
	borrowIndexPrefix   = "lending/position/borrow-index"
	nftBorrowPrefix     = "lending/position/nft-borrow"
	collectionPrefix    = "lending/collection"
	collectionsKey      = "lending/collections"
	activeAccountPrefix = "lending/account/active"
	activeAccountsKey   = "lending/accounts"
	settingsKey         = "lending/settings"
	genesisKey          = "lending/genesis"
	tokenBalancePrefix  = "bank/balance"
	tokenNoncePrefix    = "bank/nonce"
)

func poolLedgerKey(asset string) []byte {
	return compositeKey(poolLedgerPrefix, []byte(asset))
}

func poolRecordKey(asset string) []byte {
	return compositeKey(poolRecordPrefix, []byte(asset))
}

func depositKey(owner uint64, asset string) []byte {
	return compositeKey(depositPrefix, uint64Bytes(owner), []byte(asset))
}

func depositIndexKey(owner uint64) []byte {
	return compositeKey(depositIndexPrefix, uint64Bytes(owner))
}

func borrowKey(owner uint64, asset string) []byte {
	return compositeKey(borrowPrefix, uint64Bytes(owner), []byte(asset))
}

func borrowIndexKey(owner uint64) []byte {
	return compositeKey(borrowIndexPrefix, uint64Bytes(owner))
}

func nftBorrowKey(certificate uint64) []byte {
	return compositeKey(nftBorrowPrefix, uint64Bytes(certificate))
}

func collectionKey(id string) []byte {
	return compositeKey(collectionPrefix, []byte(id))
}

func activeAccountKey(nonce uint64) []byte {
	return compositeKey(activeAccountPrefix, uint64Bytes(nonce))
}

func tokenBalanceKey(holder []byte, asset string, nonce uint64) []byte {
	return compositeKey(tokenBalancePrefix, holder, []byte(asset), uint64Bytes(nonce))
}

func tokenNonceKey(collection string) []byte {
	return compositeKey(tokenNoncePrefix, []byte(collection))
}
