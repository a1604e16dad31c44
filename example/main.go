// Example settlement between Alice and Bob on an in-memory asset set
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	swap "github.com/kaifufi/p2p-swap-go"
	"github.com/kaifufi/p2p-swap-go/assets/memory"
	"github.com/kaifufi/p2p-swap-go/chain"
	"github.com/kaifufi/p2p-swap-go/internal/logger"
	"github.com/kaifufi/p2p-swap-go/sink"
	"github.com/kaifufi/p2p-swap-go/store/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultEngineAddress = "0x5ca1ab1e00000000000000000000000000000001"
	aliceKeyHex          = "4934d4ff925f39f91e3729fbce52ef12f25fdf93e014e291350f7d314c1a096b"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	serve := flag.Bool("serve", false, "keep serving the read API, event feed and metrics after the demo")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	if *configPath == "" && os.Getenv(swap.EnvPrefix+"ENGINE_ADDRESS") == "" {
		_ = os.Setenv(swap.EnvPrefix+"ENGINE_ADDRESS", defaultEngineAddress)
	}
	cfg, err := swap.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, zlog, *serve); err != nil {
		zlog.Fatal("example failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg swap.Config, zlog *zap.Logger, serve bool) error {
	storePath := cfg.Store.Path
	if storePath == "" {
		dir, err := os.MkdirTemp("", "swap-example")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		storePath = filepath.Join(dir, "swap.db")
	}
	store, err := sqlite.Open(ctx, storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	feed := swap.NewFeed(swap.FeedConfig{Logger: zlog})
	defer feed.Close()

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	native := memory.NewNativeLedger()
	engineConfig.Native = native
	engineConfig.Logger = zlog
	engineConfig.Metrics = swap.NewMetrics(registry)
	engineConfig.Persister = store
	engineConfig.Sinks = []swap.EventSink{feed, swap.EventSinkFunc(func(_ context.Context, e swap.Event) {
		fmt.Printf("event: %s %+v\n", e.Type(), e)
	})}

	publishers, err := busPublishers(ctx, cfg.Events, zlog)
	if err != nil {
		return err
	}
	for _, p := range publishers {
		defer p.Close()
		engineConfig.Sinks = append(engineConfig.Sinks, p)
	}

	engine, err := swap.NewEngine(engineConfig)
	if err != nil {
		return err
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		return err
	}
	engine.Restore(snapshot)

	aliceKey, err := crypto.HexToECDSA(aliceKeyHex)
	if err != nil {
		return err
	}
	alice := crypto.PubkeyToAddress(aliceKey.PublicKey)
	bob := common.HexToAddress("0x00000000000000000000000000000000000b0b00")

	// Tokens
	ast := memory.NewToken("AST")
	dai := memory.NewToken("DAI")
	astAddr := common.HexToAddress("0x00000000000000000000000000000000000a5700")
	daiAddr := common.HexToAddress("0x00000000000000000000000000000000000da100")
	if err := engine.Assets().RegisterFungible(astAddr, ast); err != nil {
		return err
	}
	if err := engine.Assets().RegisterFungible(daiAddr, dai); err != nil {
		return err
	}

	ast.Mint(alice, big.NewInt(1000))
	dai.Mint(bob, big.NewInt(1000))
	ast.Approve(alice, engine.Address(), big.NewInt(200))
	dai.Approve(bob, engine.Address(), big.NewInt(50))

	// Alice signs an order for 200 AST in exchange for 50 DAI
	builder, err := chain.NewOrderBuilder(engine.Domain(), aliceKey)
	if err != nil {
		return err
	}
	signed, err := builder.BuildSignedOrder(&chain.OrderData{
		Maker: chain.Party{Token: astAddr, Param: big.NewInt(200)},
		Taker: chain.Party{Wallet: bob, Token: daiAddr, Param: big.NewInt(50)},
	}, chain.SignatureVersionTypedData)
	if err != nil {
		return err
	}

	if cfg.RPCURL != "" {
		preflight(ctx, cfg.RPCURL, signed.Order, engine.Address(), zlog)
	}

	fmt.Println("Bob fills Alice's order...")
	settlement, err := engine.Swap(ctx, swap.Call{Sender: bob}, signed.Order, signed.Signature)
	if err != nil {
		return err
	}
	fmt.Printf("Settled order %s with %d legs\n", settlement.Order.ID, len(settlement.Legs))

	fmt.Println("Bob tries to fill it again...")
	if _, err := engine.Swap(ctx, swap.Call{Sender: bob}, signed.Order, signed.Signature); err != nil {
		fmt.Printf("Replay rejected: %s\n", swap.ErrorCode(err))
	}

	for _, w := range []struct {
		name   string
		wallet common.Address
	}{{"Alice", alice}, {"Bob", bob}} {
		astBalance, _ := engine.BalanceOf(ctx, astAddr, w.wallet)
		daiBalance, _ := engine.BalanceOf(ctx, daiAddr, w.wallet)
		fmt.Printf("%s: %s AST, %s DAI\n", w.name, astBalance, daiBalance)
	}

	if !serve {
		return nil
	}
	return serveAll(ctx, cfg.Server, engine, feed, registry, zlog)
}

// busPublishers starts a publisher for every configured message bus
func busPublishers(ctx context.Context, cfg swap.EventsConfig, zlog *zap.Logger) ([]*sink.Publisher, error) {
	var writers []sink.Writer
	if len(cfg.Kafka.Brokers) > 0 {
		w, err := sink.NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if cfg.Redis.Addr != "" {
		w, err := sink.NewRedisWriter(ctx, cfg.Redis)
		if err != nil {
			for _, prev := range writers {
				_ = prev.Close()
			}
			return nil, err
		}
		writers = append(writers, w)
	}

	publishers := make([]*sink.Publisher, 0, len(writers))
	for _, w := range writers {
		publishers = append(publishers, sink.NewPublisher(w, sink.Config{Buffer: cfg.Buffer, Logger: zlog}))
	}
	return publishers, nil
}

// preflight checks the order's legs against a live chain
func preflight(ctx context.Context, rpcURL string, order *chain.Order, spender common.Address, zlog *zap.Logger) {
	reader, err := chain.DialAssetReader(ctx, rpcURL)
	if err != nil {
		zlog.Warn("asset reader unavailable", zap.Error(err))
		return
	}
	defer reader.Close()

	if err := reader.Preflight(ctx, order, spender); err != nil {
		zlog.Warn("on-chain preflight failed", zap.Error(err))
		return
	}
	zlog.Info("on-chain preflight passed")
}

func serveAll(ctx context.Context, cfg swap.ServerConfig, engine *swap.Engine, feed *swap.Feed, registry *prometheus.Registry, zlog *zap.Logger) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	servers := []*http.Server{
		{Addr: cfg.APIAddr, Handler: swap.NewAPI(engine, zlog)},
		{Addr: cfg.FeedAddr, Handler: feed},
		{Addr: cfg.MetricsAddr, Handler: metricsMux},
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		zlog.Info("listening", zap.String("addr", srv.Addr))
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}(srv)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return err
}
