// Package api is the HTTP routing layer: path dispatch, JSON binding
// and status-code mapping over the bridge facade. It holds no state of
// its own.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/bridge"
	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/journal"
	"github.com/wingzero/mt5bridge/internal/wsgateway"
)

var log = logrus.WithField("component", "api")

// Config for the HTTP layer.
type Config struct {
	// APIKey gates every mutating and data route when non-empty; the
	// status probe and the WebSocket upgrade stay open.
	APIKey string
}

// Server wires the routes to the bridge.
type Server struct {
	cfg     Config
	bridge  *bridge.Bridge
	hub     *wsgateway.Hub
	journal *journal.Journal // optional, enables /deals
}

func New(cfg Config, b *bridge.Bridge, hub *wsgateway.Hub, j *journal.Journal) *Server {
	return &Server{cfg: cfg, bridge: b, hub: hub, journal: j}
}

// Router builds the gin handler.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })

	api := r.Group("/api/v1")
	api.GET("/status", s.handleStatus)

	authed := api.Group("", s.requireAPIKey())
	authed.POST("/connect", s.handleConnect)
	authed.POST("/disconnect", s.handleDisconnect)
	authed.GET("/account", s.handleAccount)
	authed.GET("/positions", s.handlePositions)
	authed.GET("/orders", s.handleOrders)
	authed.POST("/orders", s.handlePlaceOrder)
	authed.POST("/positions/:ticket/close", s.handleClosePosition)
	authed.GET("/symbols", s.handleSymbols)
	authed.GET("/market/:symbol", s.handleMarketData)
	if s.journal != nil {
		authed.GET("/deals", s.handleDeals)
	}

	return r
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.APIKey == "" {
			return
		}
		if c.GetHeader("X-API-Key") != s.cfg.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
}

// httpStatus maps the bridge error taxonomy onto status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSymbolNotFound), errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	}
	var rejected *domain.TradeRejectedError
	if errors.As(err, &rejected) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}
