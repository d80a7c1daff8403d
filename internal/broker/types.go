package broker

// OrderRequest carries the fields the vendor order placement call accepts.
// Binding tags mirror the schema-level validation the gateway performs before
// any broker call.
type OrderRequest struct {
	TradingSymbol   string  `json:"tradingsymbol" binding:"required"`
	Exchange        string  `json:"exchange" binding:"required,oneof=NSE BSE NFO"`
	TransactionType string  `json:"transaction_type" binding:"required,oneof=BUY SELL"`
	OrderType       string  `json:"order_type" binding:"required,oneof=MARKET LIMIT SL SL-M"`
	Quantity        int     `json:"quantity" binding:"required,gt=0"`
	Product         string  `json:"product" binding:"required,oneof=CNC MIS NRML"`
	Validity        string  `json:"validity" binding:"omitempty,oneof=DAY IOC"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
}

// ModifyOrderRequest carries the modifiable fields of a pending order.
type ModifyOrderRequest struct {
	OrderID           string `json:"order_id" binding:"required"`
	Quantity          int    `json:"quantity" binding:"omitempty,gt=0"`
	Price             string `json:"price"`
	TriggerPrice      string `json:"trigger_price"`
	OrderType         string `json:"order_type" binding:"omitempty,oneof=MARKET LIMIT SL SL-M"`
	Validity          string `json:"validity" binding:"omitempty,oneof=DAY IOC"`
	DisclosedQuantity int    `json:"disclosed_quantity"`
}
