package lending

import (
	"fmt"
	"math/big"
	"strings"

	"lendhub/core/events"
	"lendhub/crypto"
)

// AuthorizeOperator rejects every caller other than the protocol operator.
func (r *Router) AuthorizeOperator(caller crypto.Address) error {
	if r == nil || caller.IsZero() || r.operator.IsZero() || !caller.Equal(r.operator) {
		return ErrNotOperator
	}
	return nil
}

func (r *Router) admin(caller crypto.Address) error {
	if err := r.AuthorizeOperator(caller); err != nil {
		return err
	}
	return r.ready()
}

// RegisterPool records a new asset and opens its pool.
func (r *Router) RegisterPool(caller crypto.Address, asset AssetID, params PoolParams) (crypto.Address, error) {
	if err := r.admin(caller); err != nil {
		return crypto.Address{}, err
	}
	if strings.TrimSpace(string(asset)) == "" {
		return crypto.Address{}, fmt.Errorf("%w: empty asset id", ErrInvalidParameter)
	}
	if _, ok, err := r.state.PoolRecord(asset); err != nil {
		return crypto.Address{}, err
	} else if ok {
		return crypto.Address{}, fmt.Errorf("%w: %s", ErrAssetRegistered, asset)
	}
	address := PoolAddress(asset)
	rec := &PoolRecord{Asset: asset, Address: address.Bytes()}
	if err := r.pools(rec, r.self, r.state, r.tokens).Open(r.call(), params); err != nil {
		return crypto.Address{}, err
	}
	if err := r.state.PutPoolRecord(rec); err != nil {
		return crypto.Address{}, err
	}
	r.emitter.Emit(events.PoolChanged{Asset: string(asset), Pool: address.String()})
	return address, nil
}

// UpgradePool replaces the parameters of a registered pool.
func (r *Router) UpgradePool(caller crypto.Address, asset AssetID, params PoolParams) error {
	if err := r.admin(caller); err != nil {
		return err
	}
	pool, err := r.pool(asset)
	if err != nil {
		return err
	}
	if err := pool.Upgrade(r.call(), params); err != nil {
		return err
	}
	r.emitter.Emit(events.PoolChanged{Upgraded: true, Asset: string(asset), Pool: pool.Address().String()})
	return nil
}

// SetAssetLTV sets the loan-to-value ratio of asset.
func (r *Router) SetAssetLTV(caller crypto.Address, asset AssetID, ltv uint64) error {
	return r.updateRisk(caller, asset, "loanToValue", ltv, func(risk *RiskParams) { risk.LoanToValue = ltv })
}

// SetLiquidationBonus sets the bonus paid when asset is seized.
func (r *Router) SetLiquidationBonus(caller crypto.Address, asset AssetID, bonus uint64) error {
	return r.updateRisk(caller, asset, "liquidationBonus", bonus, func(risk *RiskParams) { risk.LiquidationBonus = bonus })
}

// SetLiquidationThreshold sets the threshold used when valuing asset in
// account health.
func (r *Router) SetLiquidationThreshold(caller crypto.Address, asset AssetID, threshold uint64) error {
	return r.updateRisk(caller, asset, "liquidationThreshold", threshold, func(risk *RiskParams) { risk.LiquidationThreshold = threshold })
}

func (r *Router) updateRisk(caller crypto.Address, asset AssetID, field string, value uint64, apply func(*RiskParams)) error {
	if err := r.admin(caller); err != nil {
		return err
	}
	pool, err := r.pool(asset)
	if err != nil {
		return err
	}
	ledger, err := pool.Ledger()
	if err != nil {
		return err
	}
	risk := ledger.Params.Risk
	apply(&risk)
	if err := pool.SetRisk(r.call(), risk); err != nil {
		return err
	}
	r.emitter.Emit(events.RiskUpdated{Asset: string(asset), Field: field, Value: value})
	return nil
}

// AddCollection registers or updates an NFT collection accepted as
// collateral.
func (r *Router) AddCollection(caller crypto.Address, collection string, floor *big.Int, ltv uint64) error {
	if err := r.admin(caller); err != nil {
		return err
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return fmt.Errorf("%w: empty collection id", ErrInvalidParameter)
	}
	if floor == nil || floor.Sign() <= 0 {
		return fmt.Errorf("%w: floor price must be positive", ErrInvalidParameter)
	}
	if ltv == 0 || ltv > BP {
		return fmt.Errorf("%w: loan-to-value %d", ErrInvalidParameter, ltv)
	}
	params := &CollectionParams{Collection: collection, FloorPrice: new(big.Int).Set(floor), LoanToValue: ltv}
	if err := r.state.PutCollection(params); err != nil {
		return err
	}
	r.emitter.Emit(events.CollectionAdded{Collection: collection, FloorPrice: floor, LoanToValue: ltv})
	return nil
}

// SetMaxLiquidationThreshold caps the threshold liquidators may supply.
func (r *Router) SetMaxLiquidationThreshold(caller crypto.Address, value uint64) error {
	if err := r.admin(caller); err != nil {
		return err
	}
	if value == 0 || value > BP {
		return fmt.Errorf("%w: maximum liquidation threshold %d", ErrInvalidParameter, value)
	}
	settings, err := r.state.Settings()
	if err != nil {
		return err
	}
	settings.MaxLiquidationThreshold = value
	return r.state.PutSettings(settings)
}

// SetPaused switches action on or off.
func (r *Router) SetPaused(caller crypto.Address, action string, paused bool) error {
	if err := r.admin(caller); err != nil {
		return err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return fmt.Errorf("%w: empty action", ErrInvalidParameter)
	}
	settings, err := r.state.Settings()
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(settings.Paused)+1)
	for _, p := range settings.Paused {
		if p != action {
			kept = append(kept, p)
		}
	}
	if paused {
		kept = append(kept, action)
	}
	settings.Paused = kept
	return r.state.PutSettings(settings)
}
