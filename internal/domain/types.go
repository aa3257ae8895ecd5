package domain

import "fmt"

// ConnectionStatus is the lifecycle state of the terminal session.
// It only moves through Connect/Disconnect on the bridge; there is
// exactly one value at any time.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusFailed       ConnectionStatus = "failed"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that flattens this one.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide normalizes a user-supplied side string.
func ParseSide(v string) (Side, error) {
	switch Side(v) {
	case SideBuy, SideSell:
		return Side(v), nil
	}
	return "", fmt.Errorf("invalid side %q", v)
}

// Credentials are optional login parameters for the terminal. An empty
// value means "attach to whatever account the terminal is logged into".
type Credentials struct {
	Login    int64  `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	Server   string `json:"server,omitempty"`
}

// Empty reports whether no explicit login was requested.
func (c *Credentials) Empty() bool {
	return c == nil || (c.Login == 0 && c.Password == "" && c.Server == "")
}

// AccountSnapshot is the account state as of one refresh. It is replaced
// wholesale, never mutated in place.
type AccountSnapshot struct {
	Login      int64   `json:"login"`
	Name       string  `json:"name,omitempty"`
	Server     string  `json:"server,omitempty"`
	Currency   string  `json:"currency"`
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	MarginFree float64 `json:"margin_free"`
	Leverage   int     `json:"leverage,omitempty"`
}

// PositionRecord is one open position. Identity is the venue ticket.
type PositionRecord struct {
	Ticket     uint64  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"open_price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Profit     float64 `json:"profit"`
	Comment    string  `json:"comment,omitempty"`
	OpenedAt   int64   `json:"opened_at,omitempty"` // unix ms
}

// OrderRecord is one pending order. Identity is the venue ticket.
type OrderRecord struct {
	Ticket     uint64  `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	PlacedAt   int64   `json:"placed_at,omitempty"` // unix ms
}

// MarketTick is a single bid/ask sample. Last write wins per symbol; the
// acceptable staleness window is one sampling interval.
type MarketTick struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Spread    float64 `json:"spread"`
	Timestamp int64   `json:"timestamp"` // unix ms
	Volume    float64 `json:"volume"`
}

// TradeRequest is a market deal intent. It has no side effects until
// submitted through the gateway. Price, StopLoss and TakeProfit are
// optional; a nil Price means "execute at the current quote".
type TradeRequest struct {
	Symbol     string   `json:"symbol"`
	Side       Side     `json:"side"`
	Volume     float64  `json:"volume"`
	Price      *float64 `json:"price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

// Validate checks the request before it reaches the terminal.
func (r *TradeRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.Volume <= 0 {
		return fmt.Errorf("volume must be positive, got %v", r.Volume)
	}
	return nil
}

// TradeResult is the venue's answer to a successfully executed deal.
type TradeResult struct {
	OrderID uint64 `json:"order_id"`
	Retcode uint32 `json:"retcode"`
	Comment string `json:"comment,omitempty"`
}
