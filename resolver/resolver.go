package resolver

import (
	"context"
	"net/http"
	"time"

	"github.com/DomeLiquid/riskcore/cache"
	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/oracle"
	"github.com/DomeLiquid/riskcore/pricesource"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/DomeLiquid/riskcore/utils"
	"github.com/facebookgo/clock"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

var (
	ErrEmptyRequest = errors.New("no banks requested")
	ErrMissingHost  = errors.New("missing host")
)

var _ core.PriceResolver = (*Resolver)(nil)

type (
	// Resolver prices banks from their on-chain oracles, falling back to
	// off-chain sources for stale switchboard pull feeds.
	Resolver struct {
		cfg        Config
		fetcher    solana.AccountFetcher
		chain      *pricesource.Chain
		cache      *cache.PriceCache
		httpClient *http.Client
		clk        clock.Clock
		log        core.Log
	}

	OptionFunc func(*Resolver)

	// stalePull is a bank whose pull feed must be priced off-chain.
	stalePull struct {
		bank      string
		feedHash  string
		timestamp int64
	}
)

func WithFetcher(fetcher solana.AccountFetcher) OptionFunc {
	return func(r *Resolver) {
		r.fetcher = fetcher
	}
}

func WithChain(chain *pricesource.Chain) OptionFunc {
	return func(r *Resolver) {
		r.chain = chain
	}
}

func WithCache(c *cache.PriceCache) OptionFunc {
	return func(r *Resolver) {
		r.cache = c
	}
}

func WithHTTPClient(client *http.Client) OptionFunc {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

func WithClock(clk clock.Clock) OptionFunc {
	return func(r *Resolver) {
		r.clk = clk
	}
}

func WithLogger(log core.Log) OptionFunc {
	return func(r *Resolver) {
		r.log = log
	}
}

func New(cfg Config, opts ...OptionFunc) (*Resolver, error) {
	r := &Resolver{
		cfg: cfg,
		clk: clock.New(),
		log: core.NopLog(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.fetcher == nil {
		if cfg.RPCEndpoint == "" {
			return nil, errors.Wrap(ErrMissingHost, "rpc endpoint")
		}
		timeout := cfg.RPCTimeout
		if timeout <= 0 {
			timeout = DefaultRPCTimeout
		}
		// nil keeps the rpc client's own http client
		client, err := solana.NewHTTPClient(cfg.RPCEndpoint,
			solana.WithHTTPClient(r.httpClient),
			solana.WithChunkSize(cfg.RPCChunkSize),
			solana.WithRequestTimeout(timeout),
		)
		if err != nil {
			return nil, errors.Wrap(err, "new rpc client")
		}
		r.fetcher = client
	}
	if r.httpClient == nil {
		r.httpClient = http.DefaultClient
	}

	if r.chain == nil {
		chain, err := r.buildChain()
		if err != nil {
			return nil, err
		}
		r.chain = chain
	}

	if r.cache == nil {
		c, err := cache.New(cfg.PriceCacheSize,
			cache.WithClock(r.clk),
			cache.WithLogger(r.log),
			cache.WithTTL(cfg.PriceCacheFresh, cfg.PriceCacheStale),
		)
		if err != nil {
			return nil, err
		}
		r.cache = c
	}
	return r, nil
}

// buildChain orders crossbar, the optional crossbar fallback, then birdeye.
func (r *Resolver) buildChain() (*pricesource.Chain, error) {
	if r.cfg.CrossbarAPI == "" {
		return nil, errors.Wrap(ErrMissingHost, "crossbar api")
	}

	common := []pricesource.Option{
		pricesource.WithHTTPClient(r.httpClient),
		pricesource.WithLogger(r.log),
	}
	withTimeout := func(d time.Duration, opts ...pricesource.Option) []pricesource.Option {
		out := append([]pricesource.Option{}, common...)
		if d > 0 {
			out = append(out, pricesource.WithTimeout(d))
		}
		return append(out, opts...)
	}

	sources := []pricesource.Source{
		pricesource.NewCrossbar("crossbar", r.cfg.CrossbarAPI, withTimeout(r.cfg.CrossbarTimeout)...),
	}
	if r.cfg.CrossbarFallbackAPI != "" {
		sources = append(sources, pricesource.NewCrossbar("crossbar-fallback", r.cfg.CrossbarFallbackAPI,
			withTimeout(r.cfg.CrossbarTimeout, pricesource.WithBasicAuth(r.cfg.CrossbarFallbackUsername, r.cfg.CrossbarFallbackBearer))...))
	}
	if r.cfg.BirdeyeAPI != "" {
		sources = append(sources, pricesource.NewBirdeye(r.cfg.BirdeyeAPI,
			withTimeout(r.cfg.BirdeyeTimeout, pricesource.WithAPIKey(r.cfg.BirdeyeAPIKey))...))
	}
	return pricesource.NewChain(r.log, sources...), nil
}

func batchKey(banks []*core.Bank) string {
	keys := make([]string, len(banks))
	for i, b := range banks {
		keys[i] = b.Key()
	}
	return utils.GenBatchKey(keys...)
}

// Resolve returns one price per bank keyed by bank address. The result may come
// from the cache and must not be modified.
func (r *Resolver) Resolve(ctx context.Context, banks []*core.Bank) (map[string]*core.OraclePrice, error) {
	if len(banks) == 0 {
		return nil, ErrEmptyRequest
	}
	return r.cache.GetOrCompute(ctx, batchKey(banks), func(ctx context.Context) (cache.Prices, error) {
		return r.resolve(ctx, banks)
	})
}

// ResolveFresh never serves stale cached prices, for pre-trade and pre-liquidation checks.
func (r *Resolver) ResolveFresh(ctx context.Context, banks []*core.Bank) (map[string]*core.OraclePrice, error) {
	if len(banks) == 0 {
		return nil, ErrEmptyRequest
	}
	return r.cache.GetFresh(ctx, batchKey(banks), func(ctx context.Context) (cache.Prices, error) {
		return r.resolve(ctx, banks)
	})
}

// ResolveOrdered returns prices in request order.
func (r *Resolver) ResolveOrdered(ctx context.Context, banks []*core.Bank) ([]*core.OraclePrice, error) {
	prices, err := r.Resolve(ctx, banks)
	if err != nil {
		return nil, err
	}
	out := make([]*core.OraclePrice, len(banks))
	for i, b := range banks {
		out[i] = prices[b.Key()]
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, banks []*core.Bank) (map[string]*core.OraclePrice, error) {
	batch := uuid.Must(uuid.NewV4()).String()
	r.log.Debug().Str("batch", batch).Int("banks", len(banks)).Msg("resolving prices")

	feedIds, err := r.feedIdMap(ctx, banks)
	if err != nil {
		return nil, err
	}

	now := r.clk.Now().Unix()
	buffer := int64(r.cfg.OracleCacheBuffer / time.Second)
	prices := make(map[string]*core.OraclePrice, len(banks))

	// banks without an oracle are priced at zero and never fetched
	onChain := make([]*core.Bank, 0, len(banks))
	oracleKeys := make([]solana.PublicKey, 0, len(banks))
	for _, b := range banks {
		if b.BankConfig.OracleSetup == core.OracleSetupNone {
			prices[b.Key()] = core.ZeroOraclePrice(now)
			continue
		}
		key, err := oracle.FindOracleKey(&b.BankConfig, feedIds)
		if err != nil {
			return nil, errors.Wrapf(err, "bank %s", b.Key())
		}
		onChain = append(onChain, b)
		oracleKeys = append(oracleKeys, key)
	}
	if len(oracleKeys) == 0 {
		return prices, nil
	}

	accounts, err := r.fetcher.GetMultipleAccounts(ctx, oracleKeys)
	if err != nil {
		return nil, errors.Wrap(err, "fetch oracle accounts")
	}
	if len(accounts) != len(oracleKeys) {
		return nil, errors.Wrapf(solana.ErrUnexpectedCount, "got %d want %d", len(accounts), len(oracleKeys))
	}

	var stale []stalePull
	var feeds []pricesource.Feed
	feedSeen := make(map[string]bool)

	for i, b := range onChain {
		setup := b.BankConfig.OracleSetup
		price, err := oracle.ParsePriceInfo(r.log, setup, accounts[i])
		if err != nil {
			return nil, errors.Wrapf(err, "bank %s", b.Key())
		}

		if setup == core.SwitchboardPull && price.IsStale(now, b.BankConfig.OracleMaxAge, buffer) {
			hash, err := oracle.PullFeedHash(accounts[i])
			if err != nil {
				r.log.Warn().Err(err).Str("batch", batch).Str("bank", b.Key()).Msg("stale pull feed without feed hash")
			} else {
				stale = append(stale, stalePull{bank: b.Key(), feedHash: hash, timestamp: price.Timestamp})
				if !feedSeen[hash] {
					feedSeen[hash] = true
					feeds = append(feeds, pricesource.Feed{Hash: hash, Mint: b.Mint})
				}
				continue
			}
		}
		prices[b.Key()] = price
	}

	if len(feeds) > 0 {
		r.log.Info().Str("batch", batch).Int("feeds", len(feeds)).Msg("pricing stale pull feeds off-chain")
		medians := r.chain.Prices(ctx, feeds)
		for _, s := range stale {
			// keeps the on-chain publish time, so IsStale on the record still
			// reports the feed as stale even though the price is off-chain
			prices[s.bank] = core.NewFlatOraclePrice(medians[s.feedHash], s.timestamp)
		}
	}
	return prices, nil
}

func (r *Resolver) feedIdMap(ctx context.Context, banks []*core.Bank) (oracle.FeedIdMap, error) {
	var feedIds []solana.PublicKey
	seen := make(map[solana.PublicKey]bool)
	for _, b := range banks {
		cfg := b.BankConfig
		if !cfg.OracleSetup.IsPythPush() || len(cfg.OracleKeys) == 0 {
			continue
		}
		if feedId := cfg.OracleKeys[0]; !seen[feedId] {
			seen[feedId] = true
			feedIds = append(feedIds, feedId)
		}
	}

	m, err := oracle.BuildFeedIdMap(ctx, r.fetcher, feedIds)
	if err != nil {
		return nil, errors.Wrap(err, "build feed id map")
	}
	return m, nil
}

// Wait blocks until background cache refreshes finish.
func (r *Resolver) Wait() {
	r.cache.Wait()
}
