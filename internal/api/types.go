package api

// LoginResponse tells the caller an OTP was dispatched; no token exists yet.
type LoginResponse struct {
	Message string `json:"message"`
	Note    string `json:"note"`
}

// SessionRequest carries the out-of-band OTP for the session exchange.
type SessionRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// CancelOrderRequest identifies the pending order to cancel.
type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// OrderStatusRequest identifies an order for a status lookup.
type OrderStatusRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Segment string `json:"segment" binding:"required"`
}

// InstrumentsRequest lists instruments as "EXCHANGE:SYMBOL" pairs.
type InstrumentsRequest struct {
	Instruments []string `json:"instruments" binding:"required,min=1"`
}

// HistoricalRequest selects a candle series.
type HistoricalRequest struct {
	SecurityToken string `json:"security_token" binding:"required"`
	Interval      string `json:"interval" binding:"required"`
	FromDate      string `json:"from_date" binding:"required"`
	ToDate        string `json:"to_date" binding:"required"`
}

// LoserGainerRequest mirrors the vendor field names for the movers endpoint.
type LoserGainerRequest struct {
	Exchange       string `json:"Exchange" binding:"required"`
	SecurityIDCode string `json:"SecurityIdCode" binding:"required"`
	Segment        string `json:"segment" binding:"required"`
}
