// Package terminal defines the driver boundary to the trading venue.
// The bridge treats a Session as an opaque capability with its own
// failure modes; implementations live in subpackages (rpc for the real
// terminal gateway, sim for local development and tests).
package terminal

import (
	"context"

	"github.com/wingzero/mt5bridge/internal/domain"
)

// Venue-level trade request enums, mirroring the MT5 constants the
// terminal gateway expects.
const (
	TradeActionDeal = 1 // immediate market execution

	OrderTimeGTC    = 0 // good-till-cancelled
	OrderFillingIOC = 1 // immediate-or-cancel

	// RetcodeDone is the venue's success code for order_send.
	RetcodeDone uint32 = 10009
)

// DealRequest is the wire-level trade request the gateway builds from a
// domain.TradeRequest. Position is the ticket being flattened, zero for
// a fresh open.
type DealRequest struct {
	Action     int         `json:"action"`
	Symbol     string      `json:"symbol"`
	Side       domain.Side `json:"side"`
	Volume     float64     `json:"volume"`
	Price      float64     `json:"price"`
	StopLoss   float64     `json:"sl,omitempty"`
	TakeProfit float64     `json:"tp,omitempty"`
	Position   uint64      `json:"position,omitempty"`
	Comment    string      `json:"comment,omitempty"`
	TimePolicy int         `json:"type_time"`
	FillPolicy int         `json:"type_filling"`
}

// DealResult is the venue's raw answer to a submitted deal. Retcode is
// interpreted by the gateway, not here.
type DealResult struct {
	Retcode uint32 `json:"retcode"`
	OrderID uint64 `json:"order"`
	Comment string `json:"comment"`
}

// Session is the capability the bridge consumes. Calls may block on the
// network; every method takes a context and the bridge applies its own
// per-call timeout. The session is not assumed to be reentrant; the
// bridge serializes access.
type Session interface {
	// Connect initializes the terminal and, when credentials are given,
	// logs into that account.
	Connect(ctx context.Context, creds *domain.Credentials) error

	AccountInfo(ctx context.Context) (*domain.AccountSnapshot, error)
	Symbols(ctx context.Context) ([]string, error)
	Positions(ctx context.Context) ([]domain.PositionRecord, error)
	Orders(ctx context.Context) ([]domain.OrderRecord, error)
	Tick(ctx context.Context, symbol string) (*domain.MarketTick, error)

	SubmitDeal(ctx context.Context, req *DealRequest) (*DealResult, error)

	// Shutdown releases the terminal. Safe to call more than once.
	Shutdown()
}
