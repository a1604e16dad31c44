package swap

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/kaifufi/p2p-swap-go/chain"
	"github.com/kaifufi/p2p-swap-go/internal/logger"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "SWAP_"

// Config holds the runtime configuration of a settlement node
type Config struct {
	Engine EngineSettings `yaml:"engine" envPrefix:"ENGINE_"`
	Log    logger.Config  `yaml:"log" envPrefix:"LOG_"`
	Server ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Store  StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Events EventsConfig   `yaml:"events" envPrefix:"EVENTS_"`
	RPCURL string         `yaml:"rpcURL" env:"RPC_URL"`
}

type EngineSettings struct {
	Address       string `yaml:"address" env:"ADDRESS"`
	DomainName    string `yaml:"domainName" env:"DOMAIN_NAME"`
	DomainVersion string `yaml:"domainVersion" env:"DOMAIN_VERSION"`
}

type ServerConfig struct {
	APIAddr     string `yaml:"apiAddr" env:"API_ADDR"`
	FeedAddr    string `yaml:"feedAddr" env:"FEED_ADDR"`
	MetricsAddr string `yaml:"metricsAddr" env:"METRICS_ADDR"`
}

type StoreConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// EventsConfig selects the message buses committed events are forwarded to.
// A bus without an address is disabled.
type EventsConfig struct {
	Buffer int         `yaml:"buffer" env:"BUFFER"`
	Kafka  KafkaConfig `yaml:"kafka" envPrefix:"KAFKA_"`
	Redis  RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"TOPIC"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Channel  string `yaml:"channel" env:"CHANNEL"`
}

// DefaultConfig returns a configuration with every optional field filled in
func DefaultConfig() Config {
	return Config{
		Engine: EngineSettings{
			DomainName:    chain.EIP712DomainName,
			DomainVersion: chain.EIP712DomainVersion,
		},
		Log: logger.DefaultConfig(),
		Server: ServerConfig{
			APIAddr:     ":8080",
			FeedAddr:    ":8081",
			MetricsAddr: ":9090",
		},
		Events: EventsConfig{
			Kafka: KafkaConfig{Topic: "swap-events"},
			Redis: RedisConfig{Channel: "swap"},
		},
	}
}

// Load reads YAML config from path, applies SWAP_ environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs basic sanity checks
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseAddress(c.Engine.Address); err != nil {
		errs = append(errs, fmt.Errorf("engine.address: %w", err))
	}
	if c.Engine.DomainName == "" {
		errs = append(errs, errors.New("engine.domainName is required"))
	}
	if c.Engine.DomainVersion == "" {
		errs = append(errs, errors.New("engine.domainVersion is required"))
	}
	if c.Log.Level == "" {
		errs = append(errs, errors.New("log.level is required"))
	}
	if len(c.Events.Kafka.Brokers) > 0 && c.Events.Kafka.Topic == "" {
		errs = append(errs, errors.New("events.kafka.topic is required with brokers"))
	}
	if c.Events.Redis.Addr != "" && c.Events.Redis.Channel == "" {
		errs = append(errs, errors.New("events.redis.channel is required with an address"))
	}
	return errors.Join(errs...)
}

// EngineConfig converts the engine settings. Collaborators are left unset.
func (c Config) EngineConfig() (EngineConfig, error) {
	addr, err := ParseAddress(c.Engine.Address)
	if err != nil {
		return EngineConfig{}, err
	}
	return EngineConfig{
		Address:       addr,
		DomainName:    c.Engine.DomainName,
		DomainVersion: c.Engine.DomainVersion,
	}, nil
}
