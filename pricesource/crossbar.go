package pricesource

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	DefaultCrossbarEndpoint = "https://crossbar.switchboard.xyz"
	DefaultCrossbarTimeout  = 6 * time.Second
)

type (
	// FeedResponse is one entry of a crossbar simulate payload.
	FeedResponse struct {
		FeedHash string            `json:"feedHash"`
		Results  []json.RawMessage `json:"results"`
	}

	// Crossbar simulates switchboard pull feeds off-chain.
	Crossbar struct {
		httpSource
		name string
	}
)

func NewCrossbar(name, endpoint string, opts ...Option) *Crossbar {
	return &Crossbar{
		httpSource: newHTTPSource(strings.TrimRight(endpoint, "/"), DefaultCrossbarTimeout, opts),
		name:       name,
	}
}

func (c *Crossbar) Name() string {
	return c.name
}

func (c *Crossbar) Resolve(ctx context.Context, feeds []Feed) (map[string][]fixed.I80F48, []Feed) {
	if len(feeds) == 0 {
		return nil, nil
	}

	payload, err := c.Simulate(ctx, feedHashes(feeds))
	if err != nil {
		c.log.Warn().Err(err).Str("source", c.name).Int("feeds", len(feeds)).Msg("crossbar simulate failed")
		return nil, feeds
	}

	byHash := make(map[string]FeedResponse, len(payload))
	for _, fr := range payload {
		byHash[normalizeHash(fr.FeedHash)] = fr
	}

	resolved := make(map[string][]fixed.I80F48, len(feeds))
	var broken []Feed
	for _, f := range feeds {
		fr, ok := byHash[normalizeHash(f.Hash)]
		if !ok {
			broken = append(broken, f)
			continue
		}
		results, ok := parseResults(fr.Results)
		if !ok {
			broken = append(broken, f)
			continue
		}
		resolved[f.Hash] = results
	}
	return resolved, broken
}

// Simulate fetches the raw payload for hashes.
func (c *Crossbar) Simulate(ctx context.Context, hashes []string) ([]FeedResponse, error) {
	headers := map[string]string{"Accept": "application/json"}
	if c.username != "" && c.bearer != "" {
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(c.username+":"+c.bearer))
	}

	var payload []FeedResponse
	err := c.get(ctx, c.endpoint+"/simulate/"+strings.Join(hashes, ","), headers, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return errors.Wrap(ErrMalformedBody, err.Error())
		}
		return nil
	})
	return payload, err
}

// parseResults rejects the feed when the first result is not a number and
// drops any later result that is not one.
func parseResults(raw []json.RawMessage) ([]fixed.I80F48, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	out := make([]fixed.I80F48, 0, len(raw))
	for i, r := range raw {
		v, ok := parseNumber(r)
		if !ok {
			if i == 0 {
				return nil, false
			}
			continue
		}
		out = append(out, v)
	}
	return out, true
}

func parseNumber(raw json.RawMessage) (fixed.I80F48, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fixed.Zero, false
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return fixed.Zero, false
	}
	v, err := fixed.FromDecimal(d)
	if err != nil {
		return fixed.Zero, false
	}
	return v, true
}

func feedHashes(feeds []Feed) []string {
	hashes := make([]string, len(feeds))
	for i, f := range feeds {
		hashes[i] = f.Hash
	}
	return hashes
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimPrefix(h, "0x"))
}
