package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"lendhub/crypto"
	nativelending "lendhub/native/lending"
)

// DefaultRouterName seeds the router identity when the genesis omits one.
const DefaultRouterName = "lending/router"

// Genesis is the protocol bootstrap document, applied once on first start.
type Genesis struct {
	Operator    string              `toml:"operator"`
	RouterName  string              `toml:"router_name"`
	Settings    GenesisSettings     `toml:"settings"`
	Pools       []GenesisPool       `toml:"pools"`
	Collections []GenesisCollection `toml:"collections"`
	Prices      []GenesisPrice      `toml:"prices"`
	Balances    []GenesisBalance    `toml:"balances"`
	NFTs        []GenesisNFT        `toml:"nfts"`
}

// GenesisSettings override the protocol defaults. Zero values keep them.
type GenesisSettings struct {
	MaxLiquidationThreshold uint64   `toml:"max_liquidation_threshold"`
	MembershipCollection    string   `toml:"membership_collection"`
	DebtCollection          string   `toml:"debt_collection"`
	Paused                  []string `toml:"paused"`
}

// GenesisPool registers one asset.
type GenesisPool struct {
	Asset  string                   `toml:"asset"`
	Params nativelending.PoolParams `toml:"params"`
}

// GenesisCollection registers one NFT collection.
type GenesisCollection struct {
	Collection  string `toml:"collection"`
	FloorPrice  string `toml:"floor_price"`
	LoanToValue uint64 `toml:"loan_to_value"`
}

// GenesisPrice seeds the manual feed.
type GenesisPrice struct {
	Asset    string `toml:"asset"`
	Price    string `toml:"price"`
	Decimals uint8  `toml:"decimals"`
}

// GenesisBalance credits a fungible balance.
type GenesisBalance struct {
	Address string `toml:"address"`
	Asset   string `toml:"asset"`
	Amount  string `toml:"amount"`
}

// GenesisNFT mints Count units of a collection to an address.
type GenesisNFT struct {
	Address    string `toml:"address"`
	Collection string `toml:"collection"`
	Count      uint64 `toml:"count"`
}

// LoadGenesis decodes and validates a TOML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	var g Genesis
	meta, err := toml.DecodeFile(path, &g)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("genesis: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// OperatorAddress decodes the operator identity.
func (g *Genesis) OperatorAddress() (crypto.Address, error) {
	if g == nil || strings.TrimSpace(g.Operator) == "" {
		return crypto.Address{}, errors.New("genesis: operator required")
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(g.Operator))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("genesis: operator: %w", err)
	}
	return addr, nil
}

// RouterAddress derives the router identity from RouterName.
func (g *Genesis) RouterAddress() crypto.Address {
	name := DefaultRouterName
	if g != nil && strings.TrimSpace(g.RouterName) != "" {
		name = strings.TrimSpace(g.RouterName)
	}
	return crypto.ModuleAddress(name)
}

// Validate checks the document without touching state.
func (g *Genesis) Validate() error {
	if _, err := g.OperatorAddress(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(g.Pools))
	for _, pool := range g.Pools {
		asset := strings.TrimSpace(pool.Asset)
		if asset == "" {
			return errors.New("genesis: pool asset required")
		}
		if _, dup := seen[asset]; dup {
			return fmt.Errorf("genesis: pool %s listed twice", asset)
		}
		seen[asset] = struct{}{}
		if err := pool.Params.Validate(); err != nil {
			return fmt.Errorf("genesis: pool %s: %w", asset, err)
		}
	}
	for _, c := range g.Collections {
		if _, err := parseAmount(c.FloorPrice); err != nil {
			return fmt.Errorf("genesis: collection %s floor: %w", c.Collection, err)
		}
	}
	for _, p := range g.Prices {
		if _, err := parseAmount(p.Price); err != nil {
			return fmt.Errorf("genesis: price %s: %w", p.Asset, err)
		}
	}
	for _, b := range g.Balances {
		if _, err := crypto.DecodeAddress(b.Address); err != nil {
			return fmt.Errorf("genesis: balance address: %w", err)
		}
		if _, err := parseAmount(b.Amount); err != nil {
			return fmt.Errorf("genesis: balance %s: %w", b.Asset, err)
		}
	}
	for _, n := range g.NFTs {
		if _, err := crypto.DecodeAddress(n.Address); err != nil {
			return fmt.Errorf("genesis: nft address: %w", err)
		}
	}
	return nil
}

// ApplyGenesis writes g in one call unless a genesis was already applied.
// Manual prices are always loaded since the feed is not persisted.
func (s *Service) ApplyGenesis(ctx context.Context, g *Genesis) (bool, error) {
	if g == nil {
		return false, errors.New("genesis: document required")
	}
	if err := g.Validate(); err != nil {
		return false, err
	}
	operator, _ := g.OperatorAddress()
	for _, p := range g.Prices {
		price, _ := parseAmount(p.Price)
		if err := s.SetPrice(operator, nativelending.AssetID(p.Asset), price, p.Decimals); err != nil {
			return false, fmt.Errorf("genesis: price %s: %w", p.Asset, err)
		}
	}
	applied := false
	err := s.execute(ctx, OpGenesis, operator, nil, func(tx *txn) error {
		if _, done, err := tx.state.GenesisRound(); err != nil || done {
			return err
		}
		if err := applySettings(tx, g.Settings); err != nil {
			return err
		}
		for _, pool := range g.Pools {
			if _, err := tx.router.RegisterPool(operator, nativelending.AssetID(strings.TrimSpace(pool.Asset)), pool.Params); err != nil {
				return fmt.Errorf("genesis: pool %s: %w", pool.Asset, err)
			}
		}
		for _, c := range g.Collections {
			floor, _ := parseAmount(c.FloorPrice)
			if err := tx.router.AddCollection(operator, c.Collection, floor, c.LoanToValue); err != nil {
				return fmt.Errorf("genesis: collection %s: %w", c.Collection, err)
			}
		}
		for _, b := range g.Balances {
			holder, _ := crypto.DecodeAddress(b.Address)
			amount, _ := parseAmount(b.Amount)
			if err := tx.tokens.Credit(holder, b.Asset, 0, amount); err != nil {
				return fmt.Errorf("genesis: balance %s: %w", b.Asset, err)
			}
		}
		for _, n := range g.NFTs {
			holder, _ := crypto.DecodeAddress(n.Address)
			for i := uint64(0); i < n.Count; i++ {
				if _, err := tx.tokens.MintNFT(n.Collection, holder, 1); err != nil {
					return fmt.Errorf("genesis: nft %s: %w", n.Collection, err)
				}
			}
		}
		applied = true
		return tx.state.MarkGenesis(tx.round)
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.logger.Info("genesis applied", "pools", len(g.Pools), "collections", len(g.Collections))
	}
	return applied, nil
}

func applySettings(tx *txn, overrides GenesisSettings) error {
	settings, err := tx.state.Settings()
	if err != nil {
		return err
	}
	if overrides.MaxLiquidationThreshold != 0 {
		if overrides.MaxLiquidationThreshold > nativelending.BP {
			return fmt.Errorf("%w: maximum liquidation threshold %d", nativelending.ErrInvalidParameter, overrides.MaxLiquidationThreshold)
		}
		settings.MaxLiquidationThreshold = overrides.MaxLiquidationThreshold
	}
	if c := strings.TrimSpace(overrides.MembershipCollection); c != "" {
		settings.MembershipCollection = c
	}
	if c := strings.TrimSpace(overrides.DebtCollection); c != "" {
		settings.DebtCollection = c
	}
	if len(overrides.Paused) > 0 {
		settings.Paused = append([]string(nil), overrides.Paused...)
	}
	return tx.state.PutSettings(settings)
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", nativelending.ErrInvalidAmount, raw)
	}
	return value, nil
}
