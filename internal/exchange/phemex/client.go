package phemex

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/snipetrade/snipetrade/internal/data/cache"
	"github.com/snipetrade/snipetrade/internal/domain"
	"github.com/snipetrade/snipetrade/internal/exchange"
	"github.com/snipetrade/snipetrade/internal/exchange/ratelimit"
)

// Endpoint classes used for rate limiting and circuit breaking. Market data
// and private order flow must not share a failure domain.
const (
	classMarket  = "market"
	classPrivate = "private"
)

// Config holds Phemex client configuration. Zero values select defaults.
type Config struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	APISecret      string        `json:"api_secret"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RateLimitRPS   float64       `json:"rate_limit_rps"`
	Burst          int           `json:"burst"`
	MaxRetries     int           `json:"max_retries"`
	BackoffBase    time.Duration `json:"backoff_base"`
	MarketsTTL     time.Duration `json:"markets_ttl"`
	TickersTTL     time.Duration `json:"tickers_ttl"`
	OHLCVTTL       time.Duration `json:"ohlcv_ttl"`
	UserAgent      string        `json:"user_agent"`
}

// Client talks to the Phemex REST API with rate limiting, circuit breaking,
// and retry on transient failures. It implements exchange.Adapter for market
// data and exposes the private order endpoints used by the executor.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	apiSecret   string
	userAgent   string
	rateLimiter *ratelimit.Limiter
	breakers    *exchange.BreakerSet
	retrier     *exchange.Retrier
	logger      zerolog.Logger

	marketsTTL time.Duration

	// Short-lived response caches keyed by normalized symbol (tickers)
	// and symbol:timeframe:limit (candles).
	tickers *cache.TTL[domain.Ticker]
	candles *cache.TTL[[]domain.Candle]

	mu            sync.RWMutex
	marketsCache  map[string]domain.MarketRef
	venueSymbols  map[string]string
	marketsExpiry time.Time
}

// NewClient creates a Phemex client applying defaults for unset fields.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.phemex.com"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 5.0
	}
	if config.Burst == 0 {
		config.Burst = 10
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.MarketsTTL == 0 {
		config.MarketsTTL = 5 * time.Minute
	}
	if config.TickersTTL == 0 {
		config.TickersTTL = 30 * time.Second
	}
	if config.OHLCVTTL == 0 {
		config.OHLCVTTL = 60 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "snipetrade/1.0"
	}

	logger := log.With().Str("component", "phemex").Logger()

	tickers, _ := cache.NewTTL[domain.Ticker](config.TickersTTL)
	candles, _ := cache.NewTTL[[]domain.Candle](config.OHLCVTTL)

	return &Client{
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		baseURL:      config.BaseURL,
		apiKey:       config.APIKey,
		apiSecret:    config.APISecret,
		userAgent:    config.UserAgent,
		rateLimiter:  ratelimit.NewLimiter(config.RateLimitRPS, config.Burst),
		breakers:     exchange.NewBreakerSet(),
		retrier:      exchange.NewRetrier(config.MaxRetries, config.BackoffBase, logger),
		logger:       logger,
		marketsTTL:   config.MarketsTTL,
		tickers:      tickers,
		candles:      candles,
		venueSymbols: make(map[string]string),
	}
}

// VenueID identifies this adapter.
func (c *Client) VenueID() string { return "phemex" }

// Ping verifies REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	var out json.RawMessage
	return c.get(ctx, classMarket, "/public/time", nil, &out)
}

func (c *Client) get(ctx context.Context, class, path string, query url.Values, out interface{}) error {
	return c.retrier.Do(ctx, "GET "+path, func(ctx context.Context) error {
		return c.doOnce(ctx, class, http.MethodGet, path, query, nil, out)
	})
}

func (c *Client) send(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return domain.WrapErr(domain.KindFatal, "encode "+path, err)
		}
	}
	return c.retrier.Do(ctx, method+" "+path, func(ctx context.Context) error {
		return c.doOnce(ctx, classPrivate, method, path, nil, body, out)
	})
}

func (c *Client) doOnce(ctx context.Context, class, method, path string, query url.Values, body []byte, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx, class); err != nil {
		return domain.WrapErr(domain.KindTransient, "rate limiter wait", err)
	}

	_, err := c.breakers.Execute(class, func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, query, body, out)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return domain.WrapErr(domain.KindFatal, "build request "+path, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		c.sign(req, path, query, body)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return exchange.ClassifyNetErr(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.WrapErr(domain.KindTransient, "read response "+path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return exchange.ClassifyHTTP(resp.StatusCode, method+" "+path, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapErr(domain.KindDataShape, "decode response "+path, err)
	}
	return nil
}

// sign adds the Phemex HMAC-SHA256 auth headers: the signature covers
// path + query + expiry + body, with expiry one minute out.
func (c *Client) sign(req *http.Request, path string, query url.Values, body []byte) {
	expiry := time.Now().Add(time.Minute).UnixMilli()

	payload := path
	if len(query) > 0 {
		payload += query.Encode()
	}
	payload += strconv.FormatInt(expiry, 10)
	payload += string(body)

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))

	req.Header.Set("x-phemex-access-token", c.apiKey)
	req.Header.Set("x-phemex-request-expiry", strconv.FormatInt(expiry, 10))
	req.Header.Set("x-phemex-request-signature", hex.EncodeToString(mac.Sum(nil)))
}
