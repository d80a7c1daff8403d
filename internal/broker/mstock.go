package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mgate/internal/config"
	"mgate/internal/errors"
	"mgate/internal/logger"
)

// MStockClient talks to the m.Stock trading API over HTTP. Outbound calls are
// paced by a token-bucket limiter and bounded by a per-call timeout; the
// installed access token is the only mutable state.
type MStockClient struct {
	baseURL     string
	apiKey      string
	callTimeout time.Duration
	httpClient  *http.Client
	limiter     *rate.Limiter

	mu          sync.RWMutex
	accessToken string
}

// NewMStockClient creates a broker client from configuration.
func NewMStockClient(cfg *config.BrokerConfig) (*MStockClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("broker API key is required")
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	return &MStockClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callTimeout: timeout,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// SetAccessToken installs the session token used on subsequent calls.
func (c *MStockClient) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *MStockClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *MStockClient) Login(ctx context.Context, username, password string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, "/connect/login", nil, map[string]string{
		"username": username,
		"password": password,
	})
}

func (c *MStockClient) GenerateSession(ctx context.Context, apiKey, otp, checksum string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, "/session/token", nil, map[string]string{
		"api_key":  apiKey,
		"otp":      otp,
		"checksum": checksum,
	})
}

func (c *MStockClient) PlaceOrder(ctx context.Context, req *OrderRequest) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, "/orders", nil, req)
}

func (c *MStockClient) ModifyOrder(ctx context.Context, req *ModifyOrderRequest) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPut, "/orders/"+url.PathEscape(req.OrderID), nil, req)
}

func (c *MStockClient) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil)
}

func (c *MStockClient) OrderBook(ctx context.Context) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/orders", nil, nil)
}

func (c *MStockClient) TradeHistory(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("from_date", from.Format("2006-01-02"))
	query.Set("to_date", to.Format("2006-01-02"))
	return c.doJSON(ctx, http.MethodGet, "/trades", query, nil)
}

func (c *MStockClient) OrderDetails(ctx context.Context, orderID, segment string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("order_id", orderID)
	query.Set("segment", segment)
	return c.doJSON(ctx, http.MethodGet, "/order/details", query, nil)
}

func (c *MStockClient) NetPositions(ctx context.Context) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/positions/net", nil, nil)
}

func (c *MStockClient) Holdings(ctx context.Context) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/portfolio/holdings", nil, nil)
}

func (c *MStockClient) LTP(ctx context.Context, instruments []string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/instruments/quote/ltp", instrumentQuery(instruments), nil)
}

func (c *MStockClient) OHLC(ctx context.Context, instruments []string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodGet, "/instruments/quote/ohlc", instrumentQuery(instruments), nil)
}

func (c *MStockClient) HistoricalChart(ctx context.Context, securityToken, interval string, from, to time.Time) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("from", from.Format(time.RFC3339))
	query.Set("to", to.Format(time.RFC3339))
	path := fmt.Sprintf("/instruments/historical/%s/%s", url.PathEscape(securityToken), url.PathEscape(interval))
	return c.doJSON(ctx, http.MethodGet, path, query, nil)
}

// Instruments downloads the instrument scrip master as raw CSV.
func (c *MStockClient) Instruments(ctx context.Context) ([]byte, error) {
	body, _, err := c.do(ctx, http.MethodGet, "/instruments/scriptmaster", nil, nil)
	return body, err
}

func (c *MStockClient) LoserGainer(ctx context.Context, exchange, securityIDCode, segment string) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, "/market/losergainer", nil, map[string]string{
		"exchange":         exchange,
		"security_id_code": securityIDCode,
		"segment":          segment,
	})
}

func instrumentQuery(instruments []string) url.Values {
	query := url.Values{}
	for _, inst := range instruments {
		query.Add("i", inst)
	}
	return query
}

// doJSON performs a call and verifies the vendor envelope when one is present.
func (c *MStockClient) doJSON(ctx context.Context, method, path string, query url.Values, payload interface{}) (json.RawMessage, error) {
	body, status, err := c.do(ctx, method, path, query, payload)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.Status != "" && !env.Success() {
		logger.WithFields(map[string]interface{}{
			"path":    path,
			"status":  status,
			"message": env.Message,
		}).Warn("broker rejected request")
		return nil, errors.New(errors.ErrCodeUpstreamRejected, "Broker rejected the request", fmt.Errorf("%s", env.Message))
	}
	return body, nil
}

func (c *MStockClient) do(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeTimeout, "Broker call canceled while rate limited")
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode broker request")
		}
		reqBody = bytes.NewReader(data)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "Failed to build broker request")
	}

	req.Header.Set("X-Mirae-Version", "1")
	req.Header.Set("X-PrivateKey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, 0, errors.Wrap(err, errors.ErrCodeTimeout, "Broker call timed out")
		}
		return nil, 0, errors.Wrap(err, errors.ErrCodeUpstream, "Broker call failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, errors.ErrCodeUpstream, "Failed to read broker response")
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, errors.New(errors.ErrCodeUpstream, "Broker call failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256)))
	case resp.StatusCode >= 400:
		return nil, resp.StatusCode, errors.New(errors.ErrCodeUpstreamRejected, "Broker rejected the request",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256)))
	}
	return body, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
