package swap_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/kaifufi/p2p-swap-go/assets/memory"
	"github.com/kaifufi/p2p-swap-go/chain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	aliceKeyHex = "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b"
	carolKeyHex = "6c30b9a6d6b7b2e5d7c1f1a1e2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5"
)

var (
	engineAddress = common.HexToAddress("0x5ca1ab1e00000000000000000000000000000001")
	astAddress    = common.HexToAddress("0x00000000000000000000000000000000000a5700")
	daiAddress    = common.HexToAddress("0x00000000000000000000000000000000000da100")
	kittyAddress  = common.HexToAddress("0x000000000000000000000000000000000c477e00")

	bob  = common.HexToAddress("0x00000000000000000000000000000000000b0b00")
	dave = common.HexToAddress("0x00000000000000000000000000000000000da7e0")

	genesis = time.Unix(1700000000, 0)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Unix() uint64 {
	return uint64(c.Now().Unix())
}

// recordingPersister keeps every applied changeset and fails on demand
type recordingPersister struct {
	mu      sync.Mutex
	applied []swap.Changeset
	fail    error
}

func (p *recordingPersister) Apply(_ context.Context, cs swap.Changeset) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.applied = append(p.applied, cs)
	return nil
}

type fixture struct {
	engine    *swap.Engine
	clock     *testClock
	events    *swap.EventLog
	persister *recordingPersister
	metrics   *swap.Metrics

	ast    *memory.Token
	dai    *memory.Token
	kitty  *memory.Collectible
	native *memory.NativeLedger

	aliceKey *ecdsa.PrivateKey
	carolKey *ecdsa.PrivateKey
	alice    common.Address
	carol    common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     &testClock{now: genesis},
		events:    &swap.EventLog{},
		persister: &recordingPersister{},
		metrics:   swap.NewMetrics(prometheus.NewRegistry()),
		ast:       memory.NewToken("AST"),
		dai:       memory.NewToken("DAI"),
		kitty:     memory.NewCollectible("KITTY"),
		native:    memory.NewNativeLedger(),
	}

	var err error
	f.aliceKey, err = crypto.HexToECDSA(aliceKeyHex)
	require.NoError(t, err)
	f.carolKey, err = crypto.HexToECDSA(carolKeyHex)
	require.NoError(t, err)
	f.alice = crypto.PubkeyToAddress(f.aliceKey.PublicKey)
	f.carol = crypto.PubkeyToAddress(f.carolKey.PublicKey)

	f.engine, err = swap.NewEngine(swap.EngineConfig{
		Address:   engineAddress,
		Native:    f.native,
		Clock:     f.clock,
		Metrics:   f.metrics,
		Persister: f.persister,
		Sinks:     []swap.EventSink{f.events},
	})
	require.NoError(t, err)

	require.NoError(t, f.engine.Assets().RegisterFungible(astAddress, f.ast))
	require.NoError(t, f.engine.Assets().RegisterFungible(daiAddress, f.dai))
	kind, err := f.engine.Assets().Register(context.Background(), kittyAddress, f.kitty)
	require.NoError(t, err)
	require.Equal(t, swap.KindNonFungible, kind)

	f.ast.Mint(f.alice, big.NewInt(1000))
	f.dai.Mint(bob, big.NewInt(1000))
	return f
}

// order builds Alice's standard offer: 200 AST for 50 DAI from Bob
func (f *fixture) order(id int64) *swap.Order {
	return &swap.Order{
		ID:     big.NewInt(id),
		Expiry: f.clock.Unix() + 3600,
		Signer: f.alice,
		Maker:  swap.Party{Wallet: f.alice, Token: astAddress, Param: big.NewInt(200)},
		Taker:  swap.Party{Wallet: bob, Token: daiAddress, Param: big.NewInt(50)},
	}
}

func (f *fixture) sign(t *testing.T, key *ecdsa.PrivateKey, order *swap.Order, version swap.SignatureVersion) swap.Signature {
	t.Helper()
	builder, err := chain.NewOrderBuilder(f.engine.Domain(), key)
	require.NoError(t, err)
	sig, err := builder.SignOrder(order, version)
	require.NoError(t, err)
	return sig
}

func (f *fixture) approveStandard() {
	f.ast.Approve(f.alice, engineAddress, big.NewInt(200))
	f.dai.Approve(bob, engineAddress, big.NewInt(50))
}

func balance(t *testing.T, f *fixture, token, wallet common.Address) int64 {
	t.Helper()
	b, err := f.engine.BalanceOf(context.Background(), token, wallet)
	require.NoError(t, err)
	return b.Int64()
}

func eventsOfType[T swap.Event](events []swap.Event) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

var errDiskFull = errors.New("disk full")
