package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"lendhub/core/events"
	"lendhub/core/state"
	"lendhub/core/types"
	"lendhub/crypto"
	"lendhub/native/bank"
	nativelending "lendhub/native/lending"
	"lendhub/native/oracle"
	"lendhub/observability"
	"lendhub/services/lending/audit"
	"lendhub/storage"
)

// Journal receives the events of every committed call.
type Journal interface {
	Append(ctx context.Context, entry audit.Entry) (uuid.UUID, error)
}

// Options wire a Service. Router and Operator are required.
type Options struct {
	Router   crypto.Address
	Operator crypto.Address
	Rounds   RoundSource
	// Prices is the adapter consulted by the risk engine. When nil an
	// adapter over Manual is created.
	Prices *oracle.Adapter
	// Manual receives operator price overrides. May be nil when Prices is
	// backed by external feeds only.
	Manual  *oracle.ManualFeed
	Journal Journal
	Metrics *observability.LendingMetrics
	Logger  *slog.Logger
}

// Service hosts the lending core. It serializes external calls, executes
// each one against a write buffer over the database and commits the buffer
// only when the call succeeds. Events are published after the commit.
type Service struct {
	mu      sync.Mutex
	db      storage.Database
	router  *nativelending.Router
	prices  *oracle.Adapter
	manual  *oracle.ManualFeed
	rounds  RoundSource
	journal Journal
	metrics *observability.LendingMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a Service over db.
func New(db storage.Database, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("lending service: database required")
	}
	if opts.Router.IsZero() {
		return nil, fmt.Errorf("lending service: router identity: %w", nativelending.ErrZeroAddress)
	}
	if opts.Operator.IsZero() {
		return nil, fmt.Errorf("lending service: operator identity: %w", nativelending.ErrZeroAddress)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rounds := opts.Rounds
	if rounds == nil {
		rounds = NewClockRounds(DefaultRoundDuration)
	}
	manual := opts.Manual
	prices := opts.Prices
	if prices == nil {
		if manual == nil {
			manual = oracle.NewManualFeed()
		}
		prices = oracle.NewAdapter(manual)
	}
	router := nativelending.NewRouter(opts.Router, opts.Operator)
	router.SetPriceSource(prices)
	return &Service{
		db:      db,
		router:  router,
		prices:  prices,
		manual:  manual,
		rounds:  rounds,
		journal: opts.Journal,
		metrics: opts.Metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// RouterAddress returns the router identity holding custody of collateral.
func (s *Service) RouterAddress() crypto.Address { return s.router.Self() }

// Operator returns the protocol operator identity.
func (s *Service) Operator() crypto.Address { return s.router.Operator() }

// Round returns the round the next call would execute in.
func (s *Service) Round() uint64 { return s.rounds.Round() }

// txn is the per-call view handed to operations.
type txn struct {
	router *nativelending.Router
	state  *state.Manager
	tokens *bank.Ledger
	round  uint64
}

// execute runs fn as one all-or-nothing call. Attached payments move from
// caller to the router before fn runs; any error discards every write,
// including those transfers.
func (s *Service) execute(ctx context.Context, operation string, caller crypto.Address, payments []nativelending.Payment, fn func(*txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	round := s.rounds.Round()
	overlay := storage.NewOverlay(s.db)
	buffer := &events.Buffer{}
	tx := s.bind(overlay, round, buffer, operation)
	defer s.unbind()

	err := s.collect(tx, caller, payments)
	if err == nil {
		err = fn(tx)
	}
	if err == nil {
		err = overlay.Commit()
	} else {
		overlay.Discard()
	}
	s.metrics.ObserveOperation(operation, s.now().Sub(start), err)
	if err != nil {
		if errors.Is(err, nativelending.ErrPriceUnavailable) {
			s.metrics.RecordOracleFailure(operation)
		}
		s.logger.Debug("lending call rejected", "operation", operation, "round", round, "error", err)
		return err
	}
	s.publish(ctx, operation, round, buffer.Events())
	s.recordPools(tx)
	return nil
}

// view runs fn against a discarded buffer so reads never reach the database.
func (s *Service) view(operation string, fn func(*txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	overlay := storage.NewOverlay(s.db)
	defer overlay.Discard()
	tx := s.bind(overlay, s.rounds.Round(), nil, operation)
	defer s.unbind()
	return fn(tx)
}

func (s *Service) bind(kv storage.KV, round uint64, emitter events.Emitter, operation string) *txn {
	manager := state.NewManager(kv)
	tokens := bank.NewLedger(manager)
	s.router.SetState(manager)
	s.router.SetTokens(tokens)
	s.router.SetPriceSource(s.prices)
	s.router.SetRound(round)
	s.router.SetEmitter(emitter)
	s.router.SetLogger(s.logger.With("operation", operation, "round", round))
	return &txn{router: s.router, state: manager, tokens: tokens, round: round}
}

func (s *Service) unbind() {
	s.router.SetState(nil)
	s.router.SetTokens(nil)
	s.router.SetEmitter(nil)
}

func (s *Service) collect(tx *txn, caller crypto.Address, payments []nativelending.Payment) error {
	if len(payments) == 0 {
		return nil
	}
	if caller.IsZero() {
		return nativelending.ErrZeroAddress
	}
	for _, p := range payments {
		if p.Amount == nil || p.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: attached %s", nativelending.ErrInvalidAmount, p.Asset)
		}
		if err := tx.tokens.Transfer(caller, s.router.Self(), string(p.Asset), p.Nonce, p.Amount); err != nil {
			if errors.Is(err, bank.ErrInsufficientFunds) {
				return fmt.Errorf("%w: %v", nativelending.ErrInsufficientBalance, err)
			}
			return err
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, operation string, round uint64, emitted []events.Event) {
	if len(emitted) == 0 {
		return
	}
	exported := make([]*types.Event, 0, len(emitted))
	for _, evt := range emitted {
		s.metrics.RecordEvent(evt.EventType())
		if liquidated, ok := evt.(events.Liquidated); ok {
			s.metrics.RecordLiquidation(liquidated.Asset)
		}
		exported = append(exported, evt.Event())
	}
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(ctx, audit.Entry{Operation: operation, Round: round, Events: exported}); err != nil {
		s.logger.Error("audit journal append failed", "operation", operation, "round", round, "error", err)
	}
}

func (s *Service) recordPools(tx *txn) {
	if s.metrics == nil {
		return
	}
	assets, err := tx.state.PoolAssets()
	if err != nil {
		return
	}
	for _, asset := range assets {
		ledger, ok, err := tx.state.PoolLedger(asset)
		if err != nil || !ok {
			continue
		}
		utilisation := ledger.Params.Rates.Utilisation(ledger.TotalBorrowed, ledger.Reserves)
		s.metrics.RecordPool(string(asset), ledger.Reserves, ledger.TotalBorrowed, utilisation)
	}
}

// SetOracleFeed replaces the feed behind the price adapter.
func (s *Service) SetOracleFeed(caller crypto.Address, feed oracle.Feed) error {
	if err := s.router.AuthorizeOperator(caller); err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("%w: feed required", nativelending.ErrInvalidParameter)
	}
	s.mu.Lock()
	s.prices.SetFeed(feed)
	s.mu.Unlock()
	s.logger.Info("oracle feed replaced", "operator", caller.String())
	return nil
}

// SetPrice publishes an operator price for asset on the manual feed.
func (s *Service) SetPrice(caller crypto.Address, asset nativelending.AssetID, price *big.Int, decimals uint8) error {
	if err := s.router.AuthorizeOperator(caller); err != nil {
		return err
	}
	if s.manual == nil {
		return fmt.Errorf("%w: manual price feed not configured", nativelending.ErrInvalidParameter)
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("%w: price must be positive", nativelending.ErrInvalidParameter)
	}
	base, err := oracle.Ticker(string(asset))
	if err != nil {
		return fmt.Errorf("%w: %v", nativelending.ErrInvalidParameter, err)
	}
	return s.manual.Set(base, oracle.DefaultQuoteTicker, price, decimals, s.now())
}
