package lending

import (
	"context"
	"math/big"

	"lendhub/crypto"
	nativelending "lendhub/native/lending"
)

// Operation names used for metrics, logs and the audit journal.
const (
	OpEnterMarket       = "enter_market"
	OpExitMarket        = "exit_market"
	OpAddCollateral     = "add_collateral"
	OpRemoveCollateral  = "remove_collateral"
	OpBorrow            = "borrow"
	OpBorrowWithNFTs    = "borrow_with_nfts"
	OpRepay             = "repay"
	OpRepayNFTDebt      = "repay_nft_debt"
	OpLiquidate         = "liquidate"
	OpRefreshPositions  = "refresh_positions"
	OpRegisterPool      = "register_pool"
	OpUpgradePool       = "upgrade_pool"
	OpSetRisk           = "set_risk"
	OpAddCollection     = "add_collection"
	OpSetMaxLiquidation = "set_max_liquidation_threshold"
	OpSetPaused         = "set_paused"
	OpCredit            = "credit"
	OpMintNFT           = "mint_nft"
	OpGenesis           = "genesis"
)

// EnterMarket mints a membership token to caller.
func (s *Service) EnterMarket(ctx context.Context, caller crypto.Address) (uint64, error) {
	var account uint64
	err := s.execute(ctx, OpEnterMarket, caller, nil, func(tx *txn) error {
		var err error
		account, err = tx.router.EnterMarket(caller)
		return err
	})
	return account, err
}

// ExitMarket burns the membership token of an account without positions.
func (s *Service) ExitMarket(ctx context.Context, caller crypto.Address, account uint64) error {
	return s.execute(ctx, OpExitMarket, caller, nil, func(tx *txn) error {
		return tx.router.ExitMarket(caller, account)
	})
}

// AddCollateral deposits payment, taken from caller, into the account.
func (s *Service) AddCollateral(ctx context.Context, caller crypto.Address, account uint64, payment nativelending.Payment) (*nativelending.DepositPosition, error) {
	var pos *nativelending.DepositPosition
	err := s.execute(ctx, OpAddCollateral, caller, []nativelending.Payment{payment}, func(tx *txn) error {
		var err error
		pos, err = tx.router.AddCollateral(caller, account, payment)
		return err
	})
	return pos, err
}

// RemoveCollateral withdraws amount of asset to caller.
func (s *Service) RemoveCollateral(ctx context.Context, caller crypto.Address, account uint64, asset nativelending.AssetID, amount *big.Int) (*nativelending.DepositPosition, error) {
	var pos *nativelending.DepositPosition
	err := s.execute(ctx, OpRemoveCollateral, caller, nil, func(tx *txn) error {
		var err error
		pos, err = tx.router.RemoveCollateral(ctx, caller, account, asset, amount)
		return err
	})
	return pos, err
}

// Borrow draws amount of asset against the account's collateral.
func (s *Service) Borrow(ctx context.Context, caller crypto.Address, account uint64, collateralHint, asset nativelending.AssetID, amount *big.Int) (*nativelending.BorrowPosition, error) {
	var pos *nativelending.BorrowPosition
	err := s.execute(ctx, OpBorrow, caller, nil, func(tx *txn) error {
		var err error
		pos, err = tx.router.Borrow(ctx, caller, account, collateralHint, asset, amount)
		return err
	})
	return pos, err
}

// BorrowWithNFTs pledges nfts, taken from caller, for a loan of amount.
func (s *Service) BorrowWithNFTs(ctx context.Context, caller crypto.Address, asset nativelending.AssetID, amount *big.Int, nfts []nativelending.Payment) (*nativelending.NFTBorrowResult, error) {
	var result *nativelending.NFTBorrowResult
	err := s.execute(ctx, OpBorrowWithNFTs, caller, nfts, func(tx *txn) error {
		var err error
		result, err = tx.router.BorrowWithNFTs(ctx, caller, asset, amount, nfts)
		return err
	})
	return result, err
}

// Repay applies payment, taken from caller, to the account's debt.
func (s *Service) Repay(ctx context.Context, caller crypto.Address, account uint64, payment nativelending.Payment) (*nativelending.RepayResult, error) {
	var result *nativelending.RepayResult
	err := s.execute(ctx, OpRepay, caller, []nativelending.Payment{payment}, func(tx *txn) error {
		var err error
		result, err = tx.router.Repay(caller, account, payment)
		return err
	})
	return result, err
}

// RepayNFTDebt applies payment to the certificates in the order given.
func (s *Service) RepayNFTDebt(ctx context.Context, caller crypto.Address, payment nativelending.Payment, certificates []uint64) (*nativelending.NFTRepayResult, error) {
	var result *nativelending.NFTRepayResult
	err := s.execute(ctx, OpRepayNFTDebt, caller, []nativelending.Payment{payment}, func(tx *txn) error {
		var err error
		result, err = tx.router.RepayNFTDebt(caller, payment, certificates)
		return err
	})
	return result, err
}

// Liquidate repays part of an unhealthy account's debt for a share of its
// collateral.
func (s *Service) Liquidate(ctx context.Context, liquidator crypto.Address, account, threshold uint64, assetToSeize nativelending.AssetID, payment nativelending.Payment) (*nativelending.LiquidationResult, error) {
	var result *nativelending.LiquidationResult
	err := s.execute(ctx, OpLiquidate, liquidator, []nativelending.Payment{payment}, func(tx *txn) error {
		var err error
		result, err = tx.router.Liquidate(ctx, liquidator, account, threshold, assetToSeize, payment)
		return err
	})
	return result, err
}

// RefreshPositions marks every position of the account to market and
// persists the result.
func (s *Service) RefreshPositions(ctx context.Context, account uint64) (*AccountView, error) {
	view := &AccountView{Account: account}
	err := s.execute(ctx, OpRefreshPositions, crypto.Address{}, nil, func(tx *txn) error {
		var err error
		if view.Deposits, err = tx.router.UpdateCollateralWithInterest(account); err != nil {
			return err
		}
		view.Borrows, err = tx.router.UpdateBorrowsWithDebt(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RegisterPool opens a pool for asset.
func (s *Service) RegisterPool(ctx context.Context, caller crypto.Address, asset nativelending.AssetID, params nativelending.PoolParams) (crypto.Address, error) {
	var address crypto.Address
	err := s.execute(ctx, OpRegisterPool, caller, nil, func(tx *txn) error {
		var err error
		address, err = tx.router.RegisterPool(caller, asset, params)
		return err
	})
	return address, err
}

// UpgradePool replaces the parameters of asset's pool.
func (s *Service) UpgradePool(ctx context.Context, caller crypto.Address, asset nativelending.AssetID, params nativelending.PoolParams) error {
	return s.execute(ctx, OpUpgradePool, caller, nil, func(tx *txn) error {
		return tx.router.UpgradePool(caller, asset, params)
	})
}

// RiskUpdate selects the risk parameters to change. Nil fields are kept.
type RiskUpdate struct {
	LoanToValue          *uint64
	LiquidationThreshold *uint64
	LiquidationBonus     *uint64
}

// SetRisk applies update to asset in one call.
func (s *Service) SetRisk(ctx context.Context, caller crypto.Address, asset nativelending.AssetID, update RiskUpdate) error {
	return s.execute(ctx, OpSetRisk, caller, nil, func(tx *txn) error {
		if update.LoanToValue != nil {
			if err := tx.router.SetAssetLTV(caller, asset, *update.LoanToValue); err != nil {
				return err
			}
		}
		if update.LiquidationThreshold != nil {
			if err := tx.router.SetLiquidationThreshold(caller, asset, *update.LiquidationThreshold); err != nil {
				return err
			}
		}
		if update.LiquidationBonus != nil {
			if err := tx.router.SetLiquidationBonus(caller, asset, *update.LiquidationBonus); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddCollection registers an NFT collection accepted as collateral.
func (s *Service) AddCollection(ctx context.Context, caller crypto.Address, collection string, floor *big.Int, ltv uint64) error {
	return s.execute(ctx, OpAddCollection, caller, nil, func(tx *txn) error {
		return tx.router.AddCollection(caller, collection, floor, ltv)
	})
}

// SetMaxLiquidationThreshold caps the threshold liquidators may supply.
func (s *Service) SetMaxLiquidationThreshold(ctx context.Context, caller crypto.Address, value uint64) error {
	return s.execute(ctx, OpSetMaxLiquidation, caller, nil, func(tx *txn) error {
		return tx.router.SetMaxLiquidationThreshold(caller, value)
	})
}

// SetPaused switches an action on or off.
func (s *Service) SetPaused(ctx context.Context, caller crypto.Address, action string, paused bool) error {
	return s.execute(ctx, OpSetPaused, caller, nil, func(tx *txn) error {
		return tx.router.SetPaused(caller, action, paused)
	})
}

// Credit mints a fungible amount to holder.
func (s *Service) Credit(ctx context.Context, caller, holder crypto.Address, asset nativelending.AssetID, amount *big.Int) error {
	return s.execute(ctx, OpCredit, caller, nil, func(tx *txn) error {
		if err := tx.router.AuthorizeOperator(caller); err != nil {
			return err
		}
		return tx.tokens.Credit(holder, string(asset), 0, amount)
	})
}

// MintNFT mints one unit of collection to holder and returns its nonce.
func (s *Service) MintNFT(ctx context.Context, caller, holder crypto.Address, collection string) (uint64, error) {
	var nonce uint64
	err := s.execute(ctx, OpMintNFT, caller, nil, func(tx *txn) error {
		if err := tx.router.AuthorizeOperator(caller); err != nil {
			return err
		}
		var err error
		nonce, err = tx.tokens.MintNFT(collection, holder, 1)
		return err
	})
	return nonce, err
}
