package pricesource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultBirdeyeEndpoint = "https://public-api.birdeye.so"
	DefaultBirdeyeTimeout  = 5 * time.Second
)

type (
	TokenPrice struct {
		Value           *decimal.Decimal `json:"value"`
		UpdateUnixTime  int64            `json:"updateUnixTime"`
		UpdateHumanTime string           `json:"updateHumanTime"`
		PriceChange24h  *decimal.Decimal `json:"priceChange24h"`
	}

	MultiPriceResponse struct {
		Success bool                   `json:"success"`
		Data    map[string]*TokenPrice `json:"data"`
	}

	// Birdeye prices feeds by their mint.
	Birdeye struct {
		httpSource
	}
)

func NewBirdeye(endpoint string, opts ...Option) *Birdeye {
	return &Birdeye{httpSource: newHTTPSource(strings.TrimRight(endpoint, "/"), DefaultBirdeyeTimeout, opts)}
}

func (b *Birdeye) Name() string {
	return "birdeye"
}

func (b *Birdeye) Resolve(ctx context.Context, feeds []Feed) (map[string][]fixed.I80F48, []Feed) {
	if len(feeds) == 0 {
		return nil, nil
	}

	var broken, priced []Feed
	mints := make([]string, 0, len(feeds))
	for _, f := range feeds {
		if f.Mint.IsZero() {
			b.log.Warn().Str("feed", f.Hash).Msg("mint not found for feed")
			broken = append(broken, f)
			continue
		}
		priced = append(priced, f)
		mints = append(mints, f.Mint.String())
	}
	if len(priced) == 0 {
		return nil, broken
	}

	data, err := b.MultiPrice(ctx, mints)
	if err != nil {
		b.log.Warn().Err(err).Int("mints", len(mints)).Msg("birdeye multi price failed")
		return nil, feeds
	}

	resolved := make(map[string][]fixed.I80F48, len(priced))
	for _, f := range priced {
		tp, ok := data[f.Mint.String()]
		if !ok || tp == nil || tp.Value == nil {
			broken = append(broken, f)
			continue
		}
		v, err := fixed.FromDecimal(*tp.Value)
		if err != nil {
			broken = append(broken, f)
			continue
		}
		resolved[f.Hash] = []fixed.I80F48{v}
	}
	return resolved, broken
}

// MultiPrice fetches prices keyed by mint address.
func (b *Birdeye) MultiPrice(ctx context.Context, mints []string) (map[string]*TokenPrice, error) {
	headers := map[string]string{
		"Accept":  "application/json",
		"x-chain": "solana",
	}
	if b.apiKey != "" {
		headers["X-Api-Key"] = b.apiKey
	}

	var out MultiPriceResponse
	u := b.endpoint + "/defi/multi_price?list_address=" + url.QueryEscape(strings.Join(mints, ","))
	err := b.get(ctx, u, headers, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return errors.Wrap(ErrMalformedBody, err.Error())
		}
		if !out.Success {
			return errors.Wrap(ErrMalformedBody, "success is false")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
