package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"mgate/internal/broker"
	"mgate/internal/errors"
	"mgate/internal/session"
)

// OrderHandler forwards validated order and account requests to the broker.
// Every route requires a valid cached session before the broker is contacted.
type OrderHandler struct {
	sessions *session.Manager
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(sessions *session.Manager) *OrderHandler {
	return &OrderHandler{sessions: sessions}
}

// Place submits a new order and returns the broker payload unmodified.
func (h *OrderHandler) Place(c *gin.Context) {
	var req broker.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid order request", err))
		return
	}
	if req.Validity == "" {
		req.Validity = "DAY"
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Order failed"))
		return
	}
	writeRaw(c, resp)
}

// Modify updates a pending order.
func (h *OrderHandler) Modify(c *gin.Context) {
	var req broker.ModifyOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid modify request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().ModifyOrder(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Order modification failed"))
		return
	}
	writeRaw(c, resp)
}

// Cancel cancels a pending order.
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid cancel request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().CancelOrder(c.Request.Context(), req.OrderID)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Order cancellation failed"))
		return
	}
	writeRaw(c, resp)
}

// List returns the full order book.
func (h *OrderHandler) List(c *gin.Context) {
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().OrderBook(c.Request.Context())
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch orderbook"))
		return
	}
	writeRaw(c, resp)
}

// Trades returns trades between fromDate and toDate (inclusive).
func (h *OrderHandler) Trades(c *gin.Context) {
	from, err := parseDate(c.Query("fromDate"))
	if err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid fromDate", err))
		return
	}
	to, err := parseDate(c.Query("toDate"))
	if err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid toDate", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().TradeHistory(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch tradebook"))
		return
	}
	writeRaw(c, resp)
}

// Status looks up a single order by ID and segment.
func (h *OrderHandler) Status(c *gin.Context) {
	var req OrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid status request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().OrderDetails(c.Request.Context(), req.OrderID, req.Segment)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch order status"))
		return
	}
	writeRaw(c, resp)
}

// Positions returns the net positions.
func (h *OrderHandler) Positions(c *gin.Context) {
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().NetPositions(c.Request.Context())
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch net positions"))
		return
	}
	writeRaw(c, resp)
}

// Holdings returns the portfolio holdings.
func (h *OrderHandler) Holdings(c *gin.Context) {
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().Holdings(c.Request.Context())
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch holdings"))
		return
	}
	writeRaw(c, resp)
}

// parseDate accepts RFC3339 timestamps or plain dates.
func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
