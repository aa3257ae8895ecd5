// Package sim is an in-memory terminal session for local development
// and tests: deterministic account bookkeeping over randomly walking
// quotes, no network. Balance and P&L math uses decimals so repeated
// open/close cycles do not drift.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/terminal"
)

var log = logrus.WithField("component", "terminal_sim")

const (
	contractSize = 100000 // standard lot
	halfSpread   = 0.0001

	retcodeInvalidVolume  uint32 = 10014
	retcodeInvalidRequest uint32 = 10013
)

// Config seeds the simulated account.
type Config struct {
	Login       int64
	Balance     float64
	Currency    string
	Symbols     []string
	MaxVolume   float64 // deals above this are rejected
	FailConnect bool    // force Connect to fail, for tests
}

// Session implements terminal.Session entirely in memory.
type Session struct {
	mu         sync.Mutex
	cfg        Config
	connected  bool
	balance    decimal.Decimal
	nextTicket uint64
	positions  map[uint64]*domain.PositionRecord
	mids       map[string]float64
	rng        *rand.Rand
}

var _ terminal.Session = (*Session)(nil)

// New builds a simulated session. Zero config fields get sane defaults.
func New(cfg Config) *Session {
	if cfg.Login == 0 {
		cfg.Login = 10000001
	}
	if cfg.Balance == 0 {
		cfg.Balance = 10000
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD", "NZDUSD", "XAUUSD"}
	}
	if cfg.MaxVolume == 0 {
		cfg.MaxVolume = 100
	}
	s := &Session{
		cfg:        cfg,
		balance:    decimal.NewFromFloat(cfg.Balance),
		nextTicket: 1000000,
		positions:  make(map[uint64]*domain.PositionRecord),
		mids:       make(map[string]float64),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i, sym := range cfg.Symbols {
		s.mids[sym] = 1.0 + float64(i)*0.05
	}
	return s
}

func (s *Session) Connect(_ context.Context, creds *domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.FailConnect {
		return errors.New("simulated terminal refused connection")
	}
	if !creds.Empty() {
		s.cfg.Login = creds.Login
	}
	s.connected = true
	log.Debugf("sim terminal connected, login=%d", s.cfg.Login)
	return nil
}

func (s *Session) Shutdown() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *Session) AccountInfo(_ context.Context) (*domain.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	equity := s.balance.Add(s.floatingLocked())
	balance, _ := s.balance.Float64()
	eq, _ := equity.Float64()
	return &domain.AccountSnapshot{
		Login:      s.cfg.Login,
		Name:       "Simulated Account",
		Server:     "Sim-Demo",
		Currency:   s.cfg.Currency,
		Balance:    balance,
		Equity:     eq,
		Margin:     0,
		MarginFree: eq,
		Leverage:   100,
	}, nil
}

// floatingLocked sums unrealized P&L at current mids. Caller holds mu.
func (s *Session) floatingLocked() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.positions {
		mid, ok := s.mids[p.Symbol]
		if !ok {
			continue
		}
		move := decimal.NewFromFloat(mid).Sub(decimal.NewFromFloat(p.OpenPrice))
		if p.Side == domain.SideSell {
			move = move.Neg()
		}
		lot := decimal.NewFromFloat(p.Volume).Mul(decimal.NewFromInt(contractSize))
		total = total.Add(move.Mul(lot))
	}
	return total
}

func (s *Session) Symbols(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	out := make([]string, len(s.cfg.Symbols))
	copy(out, s.cfg.Symbols)
	return out, nil
}

func (s *Session) Positions(_ context.Context) ([]domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	out := make([]domain.PositionRecord, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *Session) Orders(_ context.Context) ([]domain.OrderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	return []domain.OrderRecord{}, nil
}

func (s *Session) Tick(_ context.Context, symbol string) (*domain.MarketTick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	mid, ok := s.mids[symbol]
	if !ok {
		return nil, errors.Errorf("no quote for symbol %s", symbol)
	}
	// Random walk, clamped away from zero.
	mid += (s.rng.Float64() - 0.5) * 0.0004
	if mid < 0.01 {
		mid = 0.01
	}
	s.mids[symbol] = mid
	return &domain.MarketTick{
		Symbol:    symbol,
		Bid:       mid - halfSpread,
		Ask:       mid + halfSpread,
		Spread:    2 * halfSpread,
		Timestamp: time.Now().UnixMilli(),
		Volume:    float64(1 + s.rng.Intn(100)),
	}, nil
}

func (s *Session) SubmitDeal(_ context.Context, req *terminal.DealRequest) (*terminal.DealResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, errors.New("sim terminal is shut down")
	}
	if req.Volume <= 0 || req.Volume > s.cfg.MaxVolume {
		return &terminal.DealResult{Retcode: retcodeInvalidVolume, Comment: "Invalid volume"}, nil
	}
	if _, ok := s.mids[req.Symbol]; !ok {
		return &terminal.DealResult{Retcode: retcodeInvalidRequest, Comment: "Unknown symbol"}, nil
	}

	if req.Position != 0 {
		return s.closeLocked(req)
	}

	s.nextTicket++
	ticket := s.nextTicket
	s.positions[ticket] = &domain.PositionRecord{
		Ticket:     ticket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Volume:     req.Volume,
		OpenPrice:  req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Comment,
		OpenedAt:   time.Now().UnixMilli(),
	}
	return &terminal.DealResult{Retcode: terminal.RetcodeDone, OrderID: ticket, Comment: "Request executed"}, nil
}

// closeLocked realizes the P&L of an existing position. Caller holds mu.
func (s *Session) closeLocked(req *terminal.DealRequest) (*terminal.DealResult, error) {
	pos, ok := s.positions[req.Position]
	if !ok {
		return &terminal.DealResult{Retcode: retcodeInvalidRequest, Comment: "Position not found"}, nil
	}
	move := decimal.NewFromFloat(req.Price).Sub(decimal.NewFromFloat(pos.OpenPrice))
	if pos.Side == domain.SideSell {
		move = move.Neg()
	}
	lot := decimal.NewFromFloat(pos.Volume).Mul(decimal.NewFromInt(contractSize))
	s.balance = s.balance.Add(move.Mul(lot))
	delete(s.positions, req.Position)

	s.nextTicket++
	return &terminal.DealResult{Retcode: terminal.RetcodeDone, OrderID: s.nextTicket, Comment: "Request executed"}, nil
}
