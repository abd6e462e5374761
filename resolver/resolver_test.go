package resolver

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/oracle"
	"github.com/DomeLiquid/riskcore/oracle/oracletest"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const now = 1_700_000_100

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

type mapFetcher struct {
	accounts map[solana.PublicKey][]byte
	calls    atomic.Int32
}

func (f *mapFetcher) GetMultipleAccounts(_ context.Context, keys []solana.PublicKey) ([][]byte, error) {
	f.calls.Add(1)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.accounts[k]
	}
	return out, nil
}

func testBank(addr byte, setup core.OracleSetup, oracleKey solana.PublicKey) *core.Bank {
	return &core.Bank{
		Address:             testKey(addr),
		Mint:                testKey(addr + 100),
		MintDecimals:        6,
		AssetShareValue:     core.ONE,
		LiabilityShareValue: core.ONE,
		BankConfig: core.BankConfig{
			OperationalState: core.BankOperationalStateOperational,
			OracleSetup:      setup,
			OracleKeys:       []solana.PublicKey{oracleKey},
			OracleMaxAge:     60,
		},
	}
}

type fixture struct {
	clk       *clock.Mock
	fetcher   *mapFetcher
	crossbar  *httptest.Server
	seen      atomic.Int32
	banks     []*core.Bank
	staleFeed string
}

// newFixture has a pyth push bank, a fresh pull bank and a stale pull bank
// that crossbar prices at 2.6.
func newFixture(t *testing.T) *fixture {
	f := &fixture{clk: clock.NewMock()}
	f.clk.Add(now * time.Second)

	feedRaw, err := hex.DecodeString("ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d")
	require.NoError(t, err)
	feedId, err := solana.PublicKeyFromBytes(feedRaw)
	require.NoError(t, err)
	pushAddr, err := oracle.FindPythPushOracleAddress(feedId, oracle.PYTH_SPONSORED_SHARD_ID)
	require.NoError(t, err)

	var staleHash [32]byte
	for i := range staleHash {
		staleHash[i] = 0xcd
	}
	f.staleFeed = hex.EncodeToString(staleHash[:])

	f.fetcher = &mapFetcher{accounts: map[solana.PublicKey][]byte{
		pushAddr: oracletest.PythPushAccount(oracletest.PythPush{
			Price: 15_000_000_000, Conf: 0, Exponent: -8, PublishTime: now - 5, EmaPrice: 14_900_000_000,
		}),
		testKey(20): oracletest.SwitchboardPullAccount(oracletest.SwitchboardPull{
			LastUpdateTimestamp: now - 10,
			Value:               oracletest.E18(1, 0),
			StdDev:              oracletest.E18(0, 0),
		}),
		testKey(30): oracletest.SwitchboardPullAccount(oracletest.SwitchboardPull{
			FeedHash:            staleHash,
			LastUpdateTimestamp: now - 100,
			Value:               oracletest.E18(9, 0),
			StdDev:              oracletest.E18(0, 0),
		}),
	}}

	f.crossbar = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.seen.Add(1)
		assert.Equal(t, "/simulate/"+f.staleFeed, r.URL.Path)
		w.Write([]byte(`[{"feedHash":"` + f.staleFeed + `","results":[2.5, 2.7]}]`))
	}))
	t.Cleanup(f.crossbar.Close)

	f.banks = []*core.Bank{
		testBank(1, core.PythPushOracle, feedId),
		testBank(2, core.SwitchboardPull, testKey(20)),
		testBank(3, core.SwitchboardPull, testKey(30)),
	}
	return f
}

func (f *fixture) resolver(t *testing.T) *Resolver {
	cfg := DefaultConfig()
	cfg.CrossbarAPI = f.crossbar.URL
	cfg.BirdeyeAPI = ""

	r, err := New(cfg, WithFetcher(f.fetcher), WithClock(f.clk))
	require.NoError(t, err)
	t.Cleanup(r.Wait)
	return r
}

func assertPrice(t *testing.T, expected string, p *core.OraclePrice) {
	t.Helper()
	require.NotNil(t, p)
	diff := p.PriceRealtime.Price.Sub(fixed.MustFromString(expected)).Abs()
	assert.True(t, diff.LessThanOrEqual(fixed.MustFromString("0.000001")), "expected %s, got %s", expected, p.PriceRealtime.Price)
}

func TestResolver_Resolve(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)

	prices, err := r.Resolve(context.Background(), f.banks)
	require.NoError(t, err)
	require.Len(t, prices, 3)

	assertPrice(t, "150", prices[f.banks[0].Key()])
	assertPrice(t, "1", prices[f.banks[1].Key()])

	stale := prices[f.banks[2].Key()]
	assertPrice(t, "2.6", stale)
	assert.True(t, stale.PriceRealtime.Confidence.IsZero())
	assert.Equal(t, stale.PriceRealtime, stale.PriceWeighted)
	assert.Equal(t, int64(now-100), stale.Timestamp)
	assert.True(t, stale.IsStale(now, f.banks[2].BankConfig.OracleMaxAge, core.ORACLE_CACHE_BUFFER))

	assert.Equal(t, int32(2), f.fetcher.calls.Load())
	assert.Equal(t, int32(1), f.seen.Load())
}

func TestResolver_Cache(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)
	ctx := context.Background()

	_, err := r.Resolve(ctx, f.banks)
	require.NoError(t, err)

	reversed := []*core.Bank{f.banks[2], f.banks[1], f.banks[0]}
	ordered, err := r.ResolveOrdered(ctx, reversed)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assertPrice(t, "2.6", ordered[0])
	assertPrice(t, "150", ordered[2])
	assert.Equal(t, int32(2), f.fetcher.calls.Load(), "served from cache")

	f.clk.Add(11 * time.Second)
	_, err = r.ResolveFresh(ctx, f.banks)
	require.NoError(t, err)
	assert.Equal(t, int32(4), f.fetcher.calls.Load())
}

func TestResolver_MissingAccountYieldsZero(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)

	legacy := testBank(4, core.PythLegacy, testKey(40))
	prices, err := r.Resolve(context.Background(), []*core.Bank{legacy})
	require.NoError(t, err)
	assert.True(t, prices[legacy.Key()].IsZero())
	assert.Zero(t, f.seen.Load())
}

func TestResolver_Errors(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)

	_, err := r.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = r.ResolveFresh(context.Background(), []*core.Bank{})
	assert.ErrorIs(t, err, ErrEmptyRequest)

	_, err = New(DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingHost)

	noKey := testBank(5, core.PythPushOracle, testKey(50))
	_, err = r.Resolve(context.Background(), []*core.Bank{noKey})
	assert.ErrorIs(t, err, oracle.ErrNoOracleAccount)
}

func TestResolver_UnconfiguredBank(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)

	none := testBank(6, core.OracleSetupNone, testKey(60))
	none.BankConfig.OracleKeys = nil

	prices, err := r.Resolve(context.Background(), []*core.Bank{none, f.banks[1]})
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.True(t, prices[none.Key()].IsZero())
	assertPrice(t, "1", prices[f.banks[1].Key()])

	prices, err = r.Resolve(context.Background(), []*core.Bank{none})
	require.NoError(t, err)
	assert.True(t, prices[none.Key()].IsZero())
	assert.Equal(t, int32(1), f.fetcher.calls.Load())
}

func TestResolver_RPCTimeout(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer rpc.Close()

	cfg := DefaultConfig()
	cfg.RPCEndpoint = rpc.URL
	cfg.RPCTimeout = 100 * time.Millisecond

	r, err := New(cfg)
	require.NoError(t, err)
	defer r.Wait()

	legacy := testBank(4, core.PythLegacy, testKey(40))
	start := time.Now()
	_, err = r.Resolve(context.Background(), []*core.Bank{legacy})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolver_LoadSnapshot(t *testing.T) {
	f := newFixture(t)
	r := f.resolver(t)

	snapshot, err := core.LoadSnapshot(context.Background(), f.clk, r, f.banks)
	require.NoError(t, err)
	assert.Len(t, snapshot.Prices, 3)
	assert.Equal(t, int64(now), snapshot.Timestamp)
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("RPC_ENDPOINT", "http://localhost:8899")
		t.Setenv("SWITCHBOARD_CROSSBAR_API_FALLBACK", "https://fallback.example")
		t.Setenv("PRICE_CACHE_FRESH", "3s")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8899", cfg.RPCEndpoint)
		assert.Equal(t, "https://crossbar.switchboard.xyz", cfg.CrossbarAPI)
		assert.Equal(t, "https://fallback.example", cfg.CrossbarFallbackAPI)
		assert.Equal(t, 3*time.Second, cfg.PriceCacheFresh)
		assert.Equal(t, 15*time.Second, cfg.PriceCacheStale)
		assert.Equal(t, 10*time.Second, cfg.OracleCacheBuffer)
		assert.Equal(t, DefaultConfig().OracleCacheBuffer, cfg.OracleCacheBuffer)
		assert.Equal(t, 10*time.Second, cfg.RPCTimeout)
		assert.Equal(t, 6*time.Second, cfg.CrossbarTimeout)
		assert.Equal(t, 25, cfg.RPCChunkSize)

		r, err := New(cfg)
		require.NoError(t, err)
		names := make([]string, 0, 3)
		for _, s := range r.chain.Sources() {
			names = append(names, s.Name())
		}
		assert.Equal(t, "crossbar,crossbar-fallback,birdeye", strings.Join(names, ","))
	})

	t.Run("bad timeout", func(t *testing.T) {
		t.Setenv("RPC_ENDPOINT", "http://localhost:8899")
		t.Setenv("RPC_TIMEOUT", "0s")
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		t.Setenv("RPC_ENDPOINT", "")
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ErrMissingHost)
	})
}
