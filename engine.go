package swap

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kaifufi/p2p-swap-go/chain"
	"go.uber.org/zap"
)

// Clock abstracts time for tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock
var SystemClock Clock = systemClock{}

// EngineConfig holds configuration for creating an Engine
type EngineConfig struct {
	// Address identifies the engine. It is the verifying contract of the
	// signing domain and the spender on every transfer-from.
	Address       common.Address
	DomainName    string
	DomainVersion string

	Assets    *AssetDirectory
	Native    Native
	Clock     Clock
	Logger    *zap.Logger
	Metrics   *Metrics
	Persister Persister
	Sinks     []EventSink
}

// Engine settles signed orders between two parties' balances. All mutating
// calls are serialized.
type Engine struct {
	mu sync.RWMutex

	address   common.Address
	domain    *chain.EIP712Domain
	assets    *AssetDirectory
	native    Native
	clock     Clock
	log       *zap.Logger
	metrics   *Metrics
	persister Persister
	sinks     []EventSink

	ledger   *Ledger
	registry *Registry
}

// NewEngine creates a new settlement engine
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Address == NullAddress {
		return nil, &InvalidParamError{Message: "engine address is required"}
	}

	domain := chain.NewEIP712Domain(config.Address)
	if config.DomainName != "" {
		domain.Name = config.DomainName
	}
	if config.DomainVersion != "" {
		domain.Version = config.DomainVersion
	}

	if config.Assets == nil {
		config.Assets = NewAssetDirectory()
	}
	if config.Clock == nil {
		config.Clock = SystemClock
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Metrics == nil {
		config.Metrics = NewMetrics(nil)
	}

	return &Engine{
		address:   config.Address,
		domain:    domain,
		assets:    config.Assets,
		native:    config.Native,
		clock:     config.Clock,
		log:       config.Logger.With(zap.String("engine", config.Address.Hex())),
		metrics:   config.Metrics,
		persister: config.Persister,
		sinks:     append([]EventSink(nil), config.Sinks...),
		ledger:    NewLedger(),
		registry:  NewRegistry(),
	}, nil
}

// Address returns the engine's address
func (e *Engine) Address() common.Address {
	return e.address
}

// Domain returns the signing domain orders must be signed in
func (e *Engine) Domain() *chain.EIP712Domain {
	d := *e.domain
	return &d
}

// Assets returns the asset directory legs are dispatched through
func (e *Engine) Assets() *AssetDirectory {
	return e.assets
}

// Subscribe adds a sink for committed events. Sinks are invoked with the
// engine lock held and must not call back into the engine.
func (e *Engine) Subscribe(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Restore loads previously persisted state. It does not reach the persister.
func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.restore(s.Statuses)
	e.registry.restore(s.Grants)
}

func (e *Engine) now() uint64 {
	now := e.clock.Now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// run executes fn as one serialized, all-or-nothing call
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	uctx, u := withUnitOfWork(ctx)
	if err := fn(uctx); err != nil {
		u.rollback()
		return err
	}

	if e.persister != nil && !u.changes.Empty() {
		if err := e.persister.Apply(ctx, u.changes); err != nil {
			u.rollback()
			return fmt.Errorf("failed to persist changes: %w", err)
		}
	}

	for _, event := range u.events {
		for _, sink := range e.sinks {
			sink.Publish(ctx, event)
		}
	}
	return nil
}

// StatusOf returns the status of maker's order id
func (e *Engine) StatusOf(maker common.Address, id *big.Int) Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.StatusOf(maker, id)
}

// IsAuthorized reports whether delegate currently acts for approver
func (e *Engine) IsAuthorized(approver, delegate common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.IsAuthorized(approver, delegate, e.now())
}

// Authorization returns the stored grant for the pair, which may have lapsed
func (e *Engine) Authorization(approver, delegate common.Address) (Authorization, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Authorization(approver, delegate)
}

type balanceReader interface {
	BalanceOf(ctx context.Context, wallet common.Address) (*big.Int, error)
}

// BalanceOf returns wallet's balance of token. The null token reads the native ledger.
func (e *Engine) BalanceOf(ctx context.Context, token, wallet common.Address) (*big.Int, error) {
	if token == NullAddress {
		if e.native == nil {
			return nil, ErrNativeUnsupported
		}
		return e.native.BalanceOf(ctx, wallet)
	}

	a, ok := e.assets.lookup(token)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, token.Hex())
	}
	if a.kind == KindFungible {
		return a.fungible.BalanceOf(ctx, wallet)
	}
	if r, ok := a.nonFungible.(balanceReader); ok {
		return r.BalanceOf(ctx, wallet)
	}
	return nil, &InvalidParamError{Message: fmt.Sprintf("token %s does not report balances", token.Hex())}
}

// AllowanceOf returns how much of token the engine may move for owner
func (e *Engine) AllowanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	a, ok := e.assets.lookup(token)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, token.Hex())
	}
	if a.kind != KindFungible {
		return nil, &InvalidParamError{Message: fmt.Sprintf("token %s is not fungible", token.Hex())}
	}
	return a.fungible.Allowance(ctx, owner, e.address)
}

// OwnerOf returns the holder of a non-fungible item
func (e *Engine) OwnerOf(ctx context.Context, token common.Address, id *big.Int) (common.Address, error) {
	a, ok := e.assets.lookup(token)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownAsset, token.Hex())
	}
	if a.kind != KindNonFungible {
		return common.Address{}, &InvalidParamError{Message: fmt.Sprintf("token %s is not non-fungible", token.Hex())}
	}
	return a.nonFungible.OwnerOf(ctx, id)
}
