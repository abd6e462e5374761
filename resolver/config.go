package resolver

import (
	"time"

	"github.com/DomeLiquid/riskcore/cache"
	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/pricesource"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const DefaultRPCTimeout = 10 * time.Second

type Config struct {
	RPCEndpoint  string        `env:"RPC_ENDPOINT"`
	RPCChunkSize int           `env:"RPC_CHUNK_SIZE" envDefault:"25"`
	RPCTimeout   time.Duration `env:"RPC_TIMEOUT" envDefault:"10s"`

	CrossbarAPI              string        `env:"SWITCHBOARD_CROSSBAR_API" envDefault:"https://crossbar.switchboard.xyz"`
	CrossbarFallbackAPI      string        `env:"SWITCHBOARD_CROSSBAR_API_FALLBACK"`
	CrossbarFallbackUsername string        `env:"SWITCHBOARD_CROSSBAR_API_FALLBACK_USERNAME"`
	CrossbarFallbackBearer   string        `env:"SWITCHBOARD_CROSSBAR_API_FALLBACK_BEARER"`
	CrossbarTimeout          time.Duration `env:"CROSSBAR_TIMEOUT" envDefault:"6s"`

	BirdeyeAPI     string        `env:"BIRDEYE_API" envDefault:"https://public-api.birdeye.so"`
	BirdeyeAPIKey  string        `env:"BIRDEYE_API_KEY"`
	BirdeyeTimeout time.Duration `env:"BIRDEYE_TIMEOUT" envDefault:"5s"`

	OracleCacheBuffer time.Duration `env:"ORACLE_CACHE_BUFFER" envDefault:"10s"`
	PriceCacheFresh   time.Duration `env:"PRICE_CACHE_FRESH" envDefault:"10s"`
	PriceCacheStale   time.Duration `env:"PRICE_CACHE_STALE" envDefault:"15s"`
	PriceCacheSize    int           `env:"PRICE_CACHE_SIZE" envDefault:"256"`
}

// DefaultConfig has every default applied and no endpoint.
func DefaultConfig() Config {
	return Config{
		RPCChunkSize:      solana.DefaultChunkSize,
		RPCTimeout:        DefaultRPCTimeout,
		CrossbarAPI:       pricesource.DefaultCrossbarEndpoint,
		CrossbarTimeout:   pricesource.DefaultCrossbarTimeout,
		BirdeyeAPI:        pricesource.DefaultBirdeyeEndpoint,
		BirdeyeTimeout:    pricesource.DefaultBirdeyeTimeout,
		OracleCacheBuffer: time.Duration(core.ORACLE_CACHE_BUFFER) * time.Second,
		PriceCacheFresh:   cache.DefaultFresh,
		PriceCacheStale:   cache.DefaultStale,
		PriceCacheSize:    cache.DefaultSize,
	}
}

// LoadConfig reads the environment. RPC_ENDPOINT must be set.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.RPCEndpoint == "" {
		return errors.Wrap(ErrMissingHost, "RPC_ENDPOINT")
	}
	if c.CrossbarAPI == "" {
		return errors.Wrap(ErrMissingHost, "SWITCHBOARD_CROSSBAR_API")
	}
	if c.RPCChunkSize <= 0 {
		return errors.Errorf("RPC_CHUNK_SIZE must be positive, got %d", c.RPCChunkSize)
	}
	if c.RPCTimeout <= 0 {
		return errors.Errorf("RPC_TIMEOUT must be positive, got %s", c.RPCTimeout)
	}
	return nil
}
