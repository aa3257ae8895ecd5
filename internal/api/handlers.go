package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wingzero/mt5bridge/internal/domain"
)

func (s *Server) handleStatus(c *gin.Context) {
	var login any
	if acc := s.bridge.Account(); acc != nil {
		login = acc.Login
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             "running",
		"terminal_status":    s.bridge.Status(),
		"terminal_connected": s.bridge.Status() == domain.StatusConnected,
		"account":            login,
		"timestamp":          time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleConnect(c *gin.Context) {
	var creds domain.Credentials
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&creds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
	}
	if err := s.bridge.Connect(c.Request.Context(), &creds); err != nil {
		log.Errorf("connect failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "connected to terminal"})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.bridge.Disconnect()
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "disconnected from terminal"})
}

func (s *Server) handleAccount(c *gin.Context) {
	account, err := s.bridge.AccountInfo(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.bridge.Positions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) handleOrders(c *gin.Context) {
	orders, err := s.bridge.Orders(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type placeOrderRequest struct {
	Symbol     string   `json:"symbol"`
	Type       string   `json:"type"`
	Volume     float64  `json:"volume"`
	Price      *float64 `json:"price"`
	StopLoss   *float64 `json:"stop_loss"`
	TakeProfit *float64 `json:"take_profit"`
	Comment    string   `json:"comment"`
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if req.Type == "" {
		req.Type = string(domain.SideBuy)
	}
	if req.Volume == 0 {
		req.Volume = 0.01
	}
	side, err := domain.ParseSide(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.bridge.PlaceOrder(c.Request.Context(), &domain.TradeRequest{
		Symbol:     req.Symbol,
		Side:       side,
		Volume:     req.Volume,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": result.OrderID,
		"retcode":  result.Retcode,
		"comment":  result.Comment,
	})
}

func (s *Server) handleClosePosition(c *gin.Context) {
	ticket, err := strconv.ParseUint(c.Param("ticket"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket"})
		return
	}
	result, err := s.bridge.ClosePosition(c.Request.Context(), ticket)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"order_id": result.OrderID,
		"retcode":  result.Retcode,
	})
}

func (s *Server) handleSymbols(c *gin.Context) {
	symbols, err := s.bridge.Symbols()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, symbols)
}

func (s *Server) handleMarketData(c *gin.Context) {
	tick, err := s.bridge.MarketData(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tick)
}

func (s *Server) handleDeals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	deals, err := s.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deals)
}
