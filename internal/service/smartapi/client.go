// Package smartapi implements the resilient upstream market-data client:
// bulk full-mode quotes and historical candles, with credential refresh and
// a shared backoff policy.
package smartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/internal/domain/repository"
	"SignalHub/pkg/backoff"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"
	"SignalHub/pkg/util"
)

const (
	quotePath  = "/rest/secure/angelbroking/market/v1/quote/"
	candlePath = "/rest/secure/angelbroking/historical/v1/getCandleData"

	vendorTimeLayout = "2006-01-02 15:04"
)

// Options configures the Client.
type Options struct {
	BaseURL string
	APIKey  string
	Auth    Authenticator
	HTTP    *xhttp.Client

	QuotePolicy  backoff.Policy
	CandlePolicy backoff.Policy

	Logger  *logger.Logger
	Metrics repository.Metrics
}

// Client talks to the vendor REST API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	sess    *session

	quotePolicy  backoff.Policy
	candlePolicy backoff.Policy

	log     *logger.Logger
	metrics repository.Metrics
}

var _ repository.MarketData = (*Client)(nil)

// NewClient builds the upstream client.
func NewClient(opts Options) *Client {
	if opts.HTTP == nil {
		opts.HTTP = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	if opts.QuotePolicy.MaxAttempts == 0 {
		opts.QuotePolicy = backoff.DefaultPolicy()
	}
	if opts.CandlePolicy.MaxAttempts == 0 {
		opts.CandlePolicy = backoff.DefaultPolicy().WithAttempts(5)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		baseURL:      opts.BaseURL,
		apiKey:       opts.APIKey,
		http:         opts.HTTP,
		sess:         newSession(opts.Auth),
		quotePolicy:  opts.QuotePolicy,
		candlePolicy: opts.CandlePolicy,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}
}

type apiEnvelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

type quoteData struct {
	Fetched   []models.Quote `json:"fetched"`
	Unfetched []struct {
		Exchange string `json:"exchange"`
		Token    string `json:"symbolToken"`
		Message  string `json:"message"`
	} `json:"unfetched"`
}

type quoteRequest struct {
	Mode           string              `json:"mode"`
	ExchangeTokens map[string][]string `json:"exchangeTokens"`
}

type candleRequest struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// FetchQuotes requests full-mode quotes for tokens grouped by exchange.
func (c *Client) FetchQuotes(ctx context.Context, exchangeTokens map[string][]string) (*repository.QuoteBatchResult, error) {
	start := time.Now()
	raw, err := c.post(ctx, "quotes", quotePath, quoteRequest{Mode: "FULL", ExchangeTokens: exchangeTokens}, c.quotePolicy)
	c.observe("quotes", start)
	if err != nil {
		return nil, err
	}

	var data quoteData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode quote data: %w", err)
	}

	res := &repository.QuoteBatchResult{Fetched: data.Fetched}
	now := time.Now().UTC()
	for i := range res.Fetched {
		res.Fetched[i].AsOf = now
	}
	for _, u := range data.Unfetched {
		res.Unfetched = append(res.Unfetched, models.InstrumentError{
			Exchange: u.Exchange,
			Token:    u.Token,
			Reason:   u.Message,
		})
	}
	return res, nil
}

// FetchCandles returns the OHLCV window for one instrument.
func (c *Client) FetchCandles(ctx context.Context, exchange, token string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error) {
	from, to = util.AlignWindow(from, to, string(tf))
	req := candleRequest{
		Exchange:    exchange,
		SymbolToken: token,
		Interval:    string(tf),
		FromDate:    from.Format(vendorTimeLayout),
		ToDate:      to.Format(vendorTimeLayout),
	}

	start := time.Now()
	raw, err := c.post(ctx, "candles", candlePath, req, c.candlePolicy)
	c.observe("candles", start)
	if err != nil {
		return nil, err
	}

	return parseCandles(raw)
}

// post runs one vendor POST with the retry/auth policy and returns the data
// payload of a successful envelope.
func (c *Client) post(ctx context.Context, op, path string, body interface{}, policy backoff.Policy) (json.RawMessage, error) {
	var last *VendorError
	refreshed := false

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		token, err := c.sess.token(ctx)
		if err != nil {
			return nil, err
		}

		env, status, err := c.send(ctx, path, token, body)
		if err != nil {
			// Connection-level failure: timeout, reset. Transient.
			last = &VendorError{Message: err.Error(), Transient: true}
			c.retry(op, attempt, policy, ctx, last)
			continue
		}

		switch {
		case authStatus(status) || (status == http.StatusOK && authBody(env.Status, env.ErrorCode, env.Message)):
			if !refreshed {
				// One credential refresh, one identical retry. Does not
				// consume the transient attempt budget.
				refreshed = true
				attempt--
				c.sess.invalidate()
				c.log.Warn("credential rejected, refreshing session",
					logger.String("op", op), logger.Int("http_status", status))
				continue
			}
			return nil, &VendorError{StatusCode: status, Code: env.ErrorCode, Message: env.Message}

		case transientStatus(status) || (status == http.StatusOK && transientBody(env.Status, env.ErrorCode)):
			last = &VendorError{StatusCode: status, Code: env.ErrorCode, Message: env.Message, Transient: true}
			c.retry(op, attempt, policy, ctx, last)
			continue

		case status >= 400:
			// Permanent request error, no retry.
			return nil, &VendorError{StatusCode: status, Code: env.ErrorCode, Message: env.Message}

		case !env.Status:
			// Vendor said no for a reason we do not retry.
			return nil, &VendorError{StatusCode: status, Code: env.ErrorCode, Message: env.Message}
		}

		return env.Data, nil
	}

	c.recordError(op + "_exhausted")
	return nil, exhausted(last)
}

// send performs one HTTP round trip and decodes the envelope when the body is
// JSON. Non-JSON bodies (gateway error pages) yield an empty envelope.
func (c *Client) send(ctx context.Context, path, token string, body interface{}) (apiEnvelope, int, error) {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Accept":        "application/json",
			"Authorization": "Bearer " + token,
			"X-UserType":    "USER",
			"X-SourceID":    "WEB",
			"X-PrivateKey":  c.apiKey,
		},
		Body: body,
	})
	if err != nil {
		return apiEnvelope{}, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiEnvelope{}, resp.StatusCode, err
	}

	var env apiEnvelope
	if len(b) > 0 {
		_ = json.Unmarshal(b, &env) // tolerate non-JSON error pages
	}
	return env, resp.StatusCode, nil
}

func (c *Client) retry(op string, attempt int, policy backoff.Policy, ctx context.Context, cause *VendorError) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamRetry(op)
	}
	c.log.Debug("upstream retry",
		logger.String("op", op),
		logger.Int("attempt", attempt),
		logger.String("cause", cause.Message))
	_ = policy.Sleep(ctx, attempt)
}

func (c *Client) observe(op string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamCall(op, time.Since(start).Seconds())
	}
}

func (c *Client) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

// parseCandles decodes the vendor's positional candle rows:
// [timestamp, open, high, low, close, volume].
func parseCandles(raw json.RawMessage) ([]models.Candle, error) {
	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode candle data: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		tsStr, ok := row[0].(string)
		if !ok {
			continue
		}
		ts, ok := util.ParseTime(tsStr)
		if !ok {
			continue
		}
		vals := make([]float64, 5)
		bad := false
		for i := 0; i < 5; i++ {
			f, ok := row[i+1].(float64)
			if !ok {
				bad = true
				break
			}
			vals[i] = f
		}
		if bad {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return candles, nil
}
