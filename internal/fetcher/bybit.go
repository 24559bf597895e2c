package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"perp-basis-alerts/internal/engine"
)

const tickersPath = "/v5/market/tickers"

// BybitOptions parameterise the Bybit ticker fetcher.
type BybitOptions struct {
	BaseURL      string
	Category     string
	Timeout      time.Duration
	RateLimitRPS float64
	UserAgent    string
}

// Bybit fetches linear perpetual tickers from the Bybit v5 REST API.
type Bybit struct {
	opts    BybitOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewBybit constructs a Bybit fetcher.
func NewBybit(opts BybitOptions, logger zerolog.Logger) *Bybit {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	if opts.Category == "" {
		opts.Category = "linear"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	return &Bybit{
		opts:    opts,
		logger:  logger.With().Str("component", "bybit_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		baseURL: baseURL,
	}
}

// FetchTickers returns the full ticker list for the configured category.
func (b *Bybit) FetchTickers(ctx context.Context) ([]engine.Ticker, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	query.Set("category", b.opts.Category)
	endpoint := b.baseURL + tickersPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "basiswatch/1.0")
	}

	started := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var res tickersResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode tickers: %w", err)
	}
	if res.RetCode != 0 {
		return nil, fmt.Errorf("bybit api error (retCode %d): %s", res.RetCode, res.RetMsg)
	}

	b.logger.Debug().
		Int("tickers", len(res.Result.List)).
		Dur("latency", time.Since(started)).
		Msg("ticker snapshot fetched")

	return res.Result.List, nil
}

type tickersResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string          `json:"category"`
		List     []engine.Ticker `json:"list"`
	} `json:"result"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.RetMsg != "" {
		return fmt.Errorf("bybit api error (%d): %s", status, apiErr.RetMsg)
	}
	if len(payload) > 0 {
		return fmt.Errorf("bybit api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("bybit api error (%d)", status)
}

var _ TickerFetcher = (*Bybit)(nil)
