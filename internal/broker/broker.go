package broker

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the vendor SDK surface the gateway depends on. Every method is a
// direct pass-through to one broker call; payloads come back as the raw vendor
// response body so route handlers can return them unmodified.
type Client interface {
	// Login starts the two-step flow; the broker dispatches an OTP out-of-band.
	Login(ctx context.Context, username, password string) (json.RawMessage, error)
	// GenerateSession exchanges otp+checksum for an access token.
	GenerateSession(ctx context.Context, apiKey, otp, checksum string) (json.RawMessage, error)
	// SetAccessToken installs the session token used on subsequent calls.
	SetAccessToken(token string)

	PlaceOrder(ctx context.Context, req *OrderRequest) (json.RawMessage, error)
	ModifyOrder(ctx context.Context, req *ModifyOrderRequest) (json.RawMessage, error)
	CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	OrderBook(ctx context.Context) (json.RawMessage, error)
	TradeHistory(ctx context.Context, from, to time.Time) (json.RawMessage, error)
	OrderDetails(ctx context.Context, orderID, segment string) (json.RawMessage, error)
	NetPositions(ctx context.Context) (json.RawMessage, error)
	Holdings(ctx context.Context) (json.RawMessage, error)

	LTP(ctx context.Context, instruments []string) (json.RawMessage, error)
	OHLC(ctx context.Context, instruments []string) (json.RawMessage, error)
	HistoricalChart(ctx context.Context, securityToken, interval string, from, to time.Time) (json.RawMessage, error)
	Instruments(ctx context.Context) ([]byte, error)
	LoserGainer(ctx context.Context, exchange, securityIDCode, segment string) (json.RawMessage, error)
}

// Envelope is the vendor transport wrapper around every JSON response.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Success reports whether the vendor marked the call successful. The API is
// inconsistent about casing across endpoints.
func (e *Envelope) Success() bool {
	switch e.Status {
	case "success", "SUCCESS", "true", "ok":
		return true
	}
	return false
}

// AccessTokenFromSession digs the access token out of a session-exchange
// response, accepting both the enveloped and the flat shape.
func AccessTokenFromSession(raw json.RawMessage) string {
	var env struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if env.Data.AccessToken != "" {
		return env.Data.AccessToken
	}
	return env.AccessToken
}
