package broker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mgate/internal/errors"
)

// MockClient is an in-memory Client used by tests and by the "mock" broker
// mode. It records how many calls reached it so tests can assert the gateway
// rejected a request before contacting the broker.
type MockClient struct {
	mu          sync.Mutex
	calls       int
	accessToken string
	lastOrder   *OrderRequest

	// Overridable canned responses.
	LoginResponse   json.RawMessage
	SessionResponse json.RawMessage
	OrderResponse   json.RawMessage
	FailWith        error
}

// NewMockClient returns a mock with the standard canned responses.
func NewMockClient() *MockClient {
	return &MockClient{
		LoginResponse:   json.RawMessage(`{"status":"success"}`),
		SessionResponse: json.RawMessage(`{"status":"success","data":{"access_token":"mock_access_token"}}`),
		OrderResponse:   json.RawMessage(`{"status":"success","order_id":"mock_order_id"}`),
	}
}

// Calls reports how many broker operations were invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastOrder returns the most recent order request passed to PlaceOrder.
func (m *MockClient) LastOrder() *OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOrder
}

// AccessToken returns the token last installed via SetAccessToken.
func (m *MockClient) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

func (m *MockClient) record() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.FailWith
}

func (m *MockClient) SetAccessToken(token string) {
	m.mu.Lock()
	m.accessToken = token
	m.mu.Unlock()
}

func (m *MockClient) Login(ctx context.Context, username, password string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return m.LoginResponse, nil
}

func (m *MockClient) GenerateSession(ctx context.Context, apiKey, otp, checksum string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	if otp == "" {
		return nil, errors.New(errors.ErrCodeUpstreamRejected, "Broker rejected the request", nil)
	}
	return m.SessionResponse, nil
}

func (m *MockClient) PlaceOrder(ctx context.Context, req *OrderRequest) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.lastOrder = req
	m.mu.Unlock()
	return m.OrderResponse, nil
}

func (m *MockClient) ModifyOrder(ctx context.Context, req *ModifyOrderRequest) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success"}`), nil
}

func (m *MockClient) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success"}`), nil
}

func (m *MockClient) OrderBook(ctx context.Context) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":[]}`), nil
}

func (m *MockClient) TradeHistory(ctx context.Context, from, to time.Time) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":[{"trade_id":"mock_trade_id"}]}`), nil
}

func (m *MockClient) OrderDetails(ctx context.Context, orderID, segment string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":{}}`), nil
}

func (m *MockClient) NetPositions(ctx context.Context) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":[]}`), nil
}

func (m *MockClient) Holdings(ctx context.Context) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":[]}`), nil
}

func (m *MockClient) LTP(ctx context.Context, instruments []string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":{}}`), nil
}

func (m *MockClient) OHLC(ctx context.Context, instruments []string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":{}}`), nil
}

func (m *MockClient) HistoricalChart(ctx context.Context, securityToken, interval string, from, to time.Time) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":{"candles":[]}}`), nil
}

func (m *MockClient) Instruments(ctx context.Context) ([]byte, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return []byte("token,exchange,tradingsymbol,name\n2885,NSE,RELIANCE,Reliance Industries\n11536,NSE,TCS,Tata Consultancy\n"), nil
}

func (m *MockClient) LoserGainer(ctx context.Context, exchange, securityIDCode, segment string) (json.RawMessage, error) {
	if err := m.record(); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"status":"success","data":{"gainers":[],"losers":[]}}`), nil
}
