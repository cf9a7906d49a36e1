package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/observability"
)

// Default client configuration.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxAttempts = 5
	DefaultInitialWait = 500 * time.Millisecond
	DefaultMaxWait     = 8 * time.Second

	// klinePageSize is the fixed pagination window for history fetches.
	klinePageSize = 1000

	// requestsPerSecond keeps the client well under exchange weight limits.
	requestsPerSecond = 8
)

// leveragedSuffixes marks leveraged-token symbols excluded from the universe.
var leveragedSuffixes = []string{"UPUSDT", "DOWNUSDT", "BULLUSDT", "BEARUSDT"}

// stableBases marks stable-asset symbols excluded from the universe.
var stableBases = map[string]bool{
	"USDC": true, "TUSD": true, "FDUSD": true, "BUSD": true, "DAI": true,
	"USDP": true, "EUR": true,
}

// RESTClient implements Client against a Binance-compatible REST API.
type RESTClient struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	diag        *DiagnosticsRecorder
	metrics     *observability.Metrics
	maxAttempts int
	initialWait time.Duration
	maxWait     time.Duration
	logger      zerolog.Logger
}

// RESTOption configures RESTClient.
type RESTOption func(*RESTClient)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *RESTClient) { r.client = c }
}

// WithMaxAttempts sets the per-request attempt budget.
func WithMaxAttempts(n int) RESTOption {
	return func(r *RESTClient) { r.maxAttempts = n }
}

// WithRetryWait sets the initial and maximum backoff delays.
func WithRetryWait(initial, max time.Duration) RESTOption {
	return func(r *RESTClient) { r.initialWait, r.maxWait = initial, max }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) RESTOption {
	return func(r *RESTClient) { r.logger = l }
}

// WithMetrics enables per-attempt outcome counters.
func WithMetrics(m *observability.Metrics) RESTOption {
	return func(r *RESTClient) { r.metrics = m }
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(perSecond float64) RESTOption {
	return func(r *RESTClient) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

// NewRESTClient creates a RESTClient. diag receives one entry per HTTP
// attempt, successful or not.
func NewRESTClient(baseURL string, diag *DiagnosticsRecorder, opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		diag:        diag,
		maxAttempts: DefaultMaxAttempts,
		initialWait: DefaultInitialWait,
		maxWait:     DefaultMaxWait,
		logger:      zerolog.Nop(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "marketdata",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tickerStat is one row of the 24h ticker statistics endpoint.
type tickerStat struct {
	Symbol             string `json:"symbol"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
	Count              int64  `json:"count"`
}

// SelectUniverse implements Client.
func (c *RESTClient) SelectUniverse(ctx context.Context, topN int) ([]string, error) {
	var stats []tickerStat
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", nil, &stats); err != nil {
		return nil, fmt.Errorf("fetch ticker stats: %w", err)
	}

	type ranked struct {
		symbol string
		score  float64
	}

	// Only USDT-quoted spot pairs, no leveraged tokens, no stables.
	eligible := make([]tickerStat, 0, len(stats))
	var maxVol, maxChg, maxCount float64
	for _, s := range stats {
		if !strings.HasSuffix(s.Symbol, "USDT") || excluded(s.Symbol) {
			continue
		}
		vol, err1 := strconv.ParseFloat(s.QuoteVolume, 64)
		chg, err2 := strconv.ParseFloat(s.PriceChangePercent, 64)
		if err1 != nil || err2 != nil || vol <= 0 {
			continue
		}
		eligible = append(eligible, s)
		maxVol = maxf(maxVol, vol)
		maxChg = maxf(maxChg, absf(chg))
		maxCount = maxf(maxCount, float64(s.Count))
	}
	if len(eligible) == 0 {
		return nil, ErrUniverseEmpty
	}

	// Composite score: each component normalized by its universe maximum so
	// no single scale dominates.
	rankedList := make([]ranked, 0, len(eligible))
	for _, s := range eligible {
		vol, _ := strconv.ParseFloat(s.QuoteVolume, 64)
		chg, _ := strconv.ParseFloat(s.PriceChangePercent, 64)
		score := vol/maxVol + absf(chg)/maxf(maxChg, 1e-12) + float64(s.Count)/maxf(maxCount, 1)
		rankedList = append(rankedList, ranked{symbol: s.Symbol, score: score})
	}
	sort.Slice(rankedList, func(i, j int) bool {
		if rankedList[i].score != rankedList[j].score {
			return rankedList[i].score > rankedList[j].score
		}
		return rankedList[i].symbol < rankedList[j].symbol
	})

	if topN > len(rankedList) {
		topN = len(rankedList)
	}
	symbols := make([]string, topN)
	for i := 0; i < topN; i++ {
		symbols[i] = rankedList[i].symbol
	}
	return symbols, nil
}

// FetchHistory implements Client.
func (c *RESTClient) FetchHistory(ctx context.Context, symbol, timeframe string, days int) ([]domain.Bar, error) {
	minutes, ok := domain.TimeframeMinutes[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimeframe, timeframe)
	}

	end := time.Now().UnixMilli()
	start := end - int64(days)*24*60*60*1000
	barMs := int64(minutes) * 60 * 1000

	var bars []domain.Bar
	for start < end {
		query := url.Values{}
		query.Set("symbol", symbol)
		query.Set("interval", timeframe)
		query.Set("startTime", strconv.FormatInt(start, 10))
		query.Set("limit", strconv.Itoa(klinePageSize))

		var page [][]json.RawMessage
		if err := c.getJSON(ctx, "/api/v3/klines", query, &page); err != nil {
			return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, timeframe, err)
		}
		if len(page) == 0 {
			break
		}

		added := 0
		for _, row := range page {
			bar, err := parseKline(row)
			if err != nil {
				return nil, fmt.Errorf("parse kline %s %s: %w", symbol, timeframe, err)
			}
			// Forward pagination can overlap one bar at page edges.
			if len(bars) > 0 && bar.Timestamp <= bars[len(bars)-1].Timestamp {
				continue
			}
			bars = append(bars, bar)
			added++
		}
		// A page of only already-seen bars means the source is not
		// advancing; stop rather than re-request the same window forever.
		if added == 0 {
			break
		}

		start = bars[len(bars)-1].Timestamp + barMs
		if len(page) < klinePageSize {
			break
		}
	}

	return bars, nil
}

// parseKline decodes one kline row: [openTime, open, high, low, close,
// volume, ...] with prices quoted as strings.
func parseKline(row []json.RawMessage) (domain.Bar, error) {
	if len(row) < 6 {
		return domain.Bar{}, fmt.Errorf("kline row has %d fields, want >= 6", len(row))
	}

	var ts int64
	if err := json.Unmarshal(row[0], &ts); err != nil {
		return domain.Bar{}, fmt.Errorf("open time: %w", err)
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-1] = v
	}

	return domain.Bar{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

// getJSON performs one GET with rate limiting, circuit breaking, retry with
// exponential backoff plus jitter, and per-attempt diagnostic recording.
// HTTP 429, 5xx, and transport errors retry; other statuses fail fast.
func (c *RESTClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialWait
	policy.MaxInterval = c.maxWait
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	attempt := 0
	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		body, err := c.attempt(ctx, endpoint, attempt)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
		return nil
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, backoff.Retry(operation,
			backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx))
	})
	if err != nil {
		c.logger.Warn().Str("endpoint", path).Int("attempts", attempt).Err(err).
			Msg("market data request failed")
		return err
	}
	return nil
}

// attempt performs a single HTTP GET and records its diagnostic entry.
func (c *RESTClient) attempt(ctx context.Context, endpoint string, attempt int) ([]byte, error) {
	diag := domain.RequestDiagnostic{
		Timestamp: time.Now().UnixMilli(),
		Endpoint:  endpoint,
		Attempt:   attempt,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		diag.Err = err.Error()
		c.diag.Record(diag)
		c.countAttempt("transport_error")
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	diag.Status = resp.StatusCode
	diag.Headers = make(map[string]string)
	for _, h := range diagHeaders {
		if v := resp.Header.Get(h); v != "" {
			diag.Headers[h] = v
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		diag.Err = err.Error()
		c.diag.Record(diag)
		c.countAttempt("read_error")
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.diag.Record(diag)

	switch {
	case resp.StatusCode == http.StatusOK:
		c.countAttempt("success")
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		c.countAttempt("throttled")
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	case resp.StatusCode >= 500:
		c.countAttempt("server_error")
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	default:
		c.countAttempt("client_error")
		return nil, backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
}

// countAttempt increments the fetch-attempt counter for one outcome.
func (c *RESTClient) countAttempt(outcome string) {
	if c.metrics != nil {
		c.metrics.FetchAttempts.WithLabelValues(outcome).Inc()
	}
}

// excluded reports whether the symbol is a leveraged token or stable pair.
func excluded(symbol string) bool {
	for _, suffix := range leveragedSuffixes {
		if strings.HasSuffix(symbol, suffix) {
			return true
		}
	}
	return stableBases[strings.TrimSuffix(symbol, "USDT")]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

var _ Client = (*RESTClient)(nil)
