package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultChunkSize   = 25
	DefaultConcurrency = 4
)

var (
	ErrEmptyEndpoint   = errors.New("solana: empty rpc endpoint")
	ErrRateLimited     = errors.New("solana: rate limited (429)")
	ErrUnexpectedCount = errors.New("solana: unexpected number of accounts in response")
)

// AccountFetcher reads raw account data. The result is ordered like keys;
// a missing account yields a nil entry.
type AccountFetcher interface {
	GetMultipleAccounts(ctx context.Context, keys []PublicKey) ([][]byte, error)
}

// HTTPClient implements AccountFetcher over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	chunkSize   int
	concurrency int
	// bounds one getMultipleAccounts chunk including retries; zero leaves
	// only the http client timeout
	requestTimeout time.Duration
	requestID      atomic.Uint64
}

type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt http timeout on a copy of the current client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		cp := *c.client
		cp.Timeout = d
		c.client = &cp
	}
}

func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.requestTimeout = d
	}
}

func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithChunkSize bounds the number of keys per getMultipleAccounts call.
func WithChunkSize(n int) ClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithConcurrency(n int) ClientOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewHTTPClient(endpoint string, opts ...ClientOption) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type accountInfo struct {
	Lamports uint64   `json:"lamports"`
	Owner    string   `json:"owner"`
	Data     []string `json:"data"`
}

type multipleAccountsResult struct {
	Value []*accountInfo `json:"value"`
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = errors.Wrap(err, "http request")
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(err, "read response")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = ErrRateLimited
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = errors.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = errors.Wrap(err, "unmarshal response")
			continue
		}

		// RPC errors are not retried
		if rpcResp.Error != nil {
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return errors.Wrap(err, "unmarshal result")
			}
		}
		return nil
	}

	return errors.Wrap(lastErr, "max retries exceeded")
}

// GetMultipleAccounts splits keys into chunks, fetches them concurrently and
// reassembles the data in request order.
func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, keys []PublicKey) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(keys); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		start, chunk := start, keys[start:end]
		g.Go(func() error {
			chunkCtx := ctx
			if c.requestTimeout > 0 {
				var cancel context.CancelFunc
				chunkCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
				defer cancel()
			}
			data, err := c.getMultipleAccountsChunk(chunkCtx, chunk)
			if err != nil {
				return errors.Wrapf(err, "chunk at %d", start)
			}
			copy(out[start:], data)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) getMultipleAccountsChunk(ctx context.Context, keys []PublicKey) ([][]byte, error) {
	addrs := make([]string, len(keys))
	for i, k := range keys {
		addrs[i] = k.String()
	}

	var result multipleAccountsResult
	params := []interface{}{
		addrs,
		map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
	}
	if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	if len(result.Value) != len(keys) {
		return nil, errors.Wrapf(ErrUnexpectedCount, "want %d got %d", len(keys), len(result.Value))
	}

	data := make([][]byte, len(keys))
	for i, info := range result.Value {
		if info == nil || len(info.Data) == 0 {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(info.Data[0])
		if err != nil {
			return nil, errors.Wrapf(err, "decode account %s", addrs[i])
		}
		data[i] = raw
	}
	return data, nil
}
