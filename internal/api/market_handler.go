package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mgate/internal/errors"
	"mgate/internal/market"
	"mgate/internal/session"
)

// MarketHandler serves market-data pass-through routes and the cached
// instrument master.
type MarketHandler struct {
	sessions    *session.Manager
	instruments *market.Store
}

// NewMarketHandler creates a market-data handler.
func NewMarketHandler(sessions *session.Manager, instruments *market.Store) *MarketHandler {
	return &MarketHandler{sessions: sessions, instruments: instruments}
}

// LTP returns last traded prices for the requested instruments.
func (h *MarketHandler) LTP(c *gin.Context) {
	var req InstrumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid LTP request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().LTP(c.Request.Context(), req.Instruments)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch LTP"))
		return
	}
	writeRaw(c, resp)
}

// OHLC returns candle quotes for the requested instruments.
func (h *MarketHandler) OHLC(c *gin.Context) {
	var req InstrumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid OHLC request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().OHLC(c.Request.Context(), req.Instruments)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch OHLC"))
		return
	}
	writeRaw(c, resp)
}

// Historical returns a candle series for one security token.
func (h *MarketHandler) Historical(c *gin.Context) {
	var req HistoricalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid historical request", err))
		return
	}
	from, err := parseDate(req.FromDate)
	if err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid from_date", err))
		return
	}
	to, err := parseDate(req.ToDate)
	if err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid to_date", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().HistoricalChart(c.Request.Context(), req.SecurityToken, req.Interval, from, to)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch historical chart"))
		return
	}
	writeRaw(c, resp)
}

// Instruments refreshes the instrument master, writes the CSV snapshot and
// returns the row count.
func (h *MarketHandler) Instruments(c *gin.Context) {
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	count, err := h.instruments.Refresh(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Instrument file saved", "rows": count})
}

// LoserGainer returns the top movers for an exchange segment.
func (h *MarketHandler) LoserGainer(c *gin.Context) {
	var req LoserGainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "Invalid loser/gainer request", err))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	resp, err := h.sessions.Client().LoserGainer(c.Request.Context(), req.Exchange, req.SecurityIDCode, req.Segment)
	if err != nil {
		abortWithError(c, errors.Wrap(err, errors.ErrCodeUpstreamRejected, "Could not fetch losers/gainers"))
		return
	}
	writeRaw(c, resp)
}

// SymbolSearch looks a symbol up in the cached instrument master, loading it
// on first use.
func (h *MarketHandler) SymbolSearch(c *gin.Context) {
	exchange := c.Query("exchange")
	symbol := c.Query("tradingsymbol")
	if exchange == "" || symbol == "" {
		abortWithError(c, errors.New(errors.ErrCodeValidation, "exchange and tradingsymbol are required", nil))
		return
	}
	if err := h.sessions.RequireSession(); err != nil {
		abortWithError(c, err)
		return
	}

	if h.instruments.Count() == 0 {
		if _, err := h.instruments.Refresh(c.Request.Context()); err != nil {
			abortWithError(c, err)
			return
		}
	}

	matches, err := h.instruments.Search(exchange, symbol)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"matches":      matches,
		"refreshed_at": h.instruments.RefreshedAt().UTC().Format(time.RFC3339),
	})
}
