package pricesource

import (
	"context"
	"net/http"
	"time"

	"github.com/DomeLiquid/riskcore/core"
	"github.com/DomeLiquid/riskcore/fixed"
	"github.com/DomeLiquid/riskcore/solana"
	"github.com/pkg/errors"
)

var (
	ErrBadStatus     = errors.New("unexpected response status")
	ErrMalformedBody = errors.New("malformed response body")
)

type (
	// Feed is one stale pull oracle, identified by its hex feed hash.
	Feed struct {
		Hash string
		Mint solana.PublicKey
	}

	// Source is one tier of the fallback chain. Failures never surface as
	// errors: every feed a source cannot price is returned as broken.
	Source interface {
		Name() string
		Resolve(ctx context.Context, feeds []Feed) (resolved map[string][]fixed.I80F48, broken []Feed)
	}

	httpSource struct {
		endpoint string
		client   *http.Client
		timeout  time.Duration
		log      core.Log

		username string
		bearer   string
		apiKey   string
	}

	Option func(*httpSource)
)

func WithHTTPClient(client *http.Client) Option {
	return func(s *httpSource) {
		s.client = client
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *httpSource) {
		s.timeout = d
	}
}

func WithLogger(log core.Log) Option {
	return func(s *httpSource) {
		s.log = log
	}
}

// WithBasicAuth is sent by Crossbar sources when both parts are set.
func WithBasicAuth(username, bearer string) Option {
	return func(s *httpSource) {
		s.username = username
		s.bearer = bearer
	}
}

// WithAPIKey is sent by Birdeye as X-Api-Key.
func WithAPIKey(key string) Option {
	return func(s *httpSource) {
		s.apiKey = key
	}
}

func newHTTPSource(endpoint string, timeout time.Duration, opts []Option) httpSource {
	s := httpSource{
		endpoint: endpoint,
		client:   http.DefaultClient,
		timeout:  timeout,
		log:      core.NopLog(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// get runs one request under the source timeout and hands a 2xx body to decode.
func (s *httpSource) get(ctx context.Context, url string, headers map[string]string, decode func(*http.Response) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrBadStatus, "%d", resp.StatusCode)
	}
	return decode(resp)
}

// Chain tries each source in order on the feeds the previous ones left broken.
type Chain struct {
	sources []Source
	log     core.Log
}

func NewChain(log core.Log, sources ...Source) *Chain {
	if log == nil {
		log = core.NopLog()
	}
	return &Chain{sources: sources, log: log}
}

func (c *Chain) Sources() []Source {
	return c.sources
}

// Resolve returns results for every feed. Feeds no source could price get [0].
func (c *Chain) Resolve(ctx context.Context, feeds []Feed) map[string][]fixed.I80F48 {
	out := make(map[string][]fixed.I80F48, len(feeds))
	pending := feeds

	for _, source := range c.sources {
		if len(pending) == 0 {
			break
		}
		resolved, broken := source.Resolve(ctx, pending)
		for hash, results := range resolved {
			out[hash] = results
		}
		c.log.Debug().Str("source", source.Name()).Int("feeds", len(pending)).Int("broken", len(broken)).Msg("price source tier done")
		pending = broken
	}

	for _, f := range pending {
		c.log.Warn().Str("feed", f.Hash).Str("mint", f.Mint.String()).Msg("no price source resolved feed, using zero")
		out[f.Hash] = []fixed.I80F48{fixed.Zero}
	}
	return out
}

// Prices reduces the chain results to one median per feed.
func (c *Chain) Prices(ctx context.Context, feeds []Feed) map[string]fixed.I80F48 {
	results := c.Resolve(ctx, feeds)
	out := make(map[string]fixed.I80F48, len(results))
	for hash, values := range results {
		m, ok := Median(values)
		if !ok {
			m = fixed.Zero
		}
		out[hash] = m
	}
	return out
}
