package bridge

import (
	"sync"

	"github.com/wingzero/mt5bridge/internal/domain"
)

// state is the single piece of shared mutable data in the bridge: the
// connection status plus the last-known snapshots. One RWMutex covers
// everything; the data is small and replaced wholesale, so finer
// locking buys nothing. Position and order sets are always installed as
// complete snapshots, never mixed across refreshes.
type state struct {
	mu        sync.RWMutex
	status    domain.ConnectionStatus
	account   *domain.AccountSnapshot
	symbols   []string
	positions []domain.PositionRecord
	orders    []domain.OrderRecord
	ticks     map[string]domain.MarketTick
}

func newState() *state {
	return &state{
		status: domain.StatusDisconnected,
		ticks:  make(map[string]domain.MarketTick),
	}
}

func (s *state) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *state) setStatus(v domain.ConnectionStatus) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *state) Account() *domain.AccountSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return nil
	}
	cp := *s.account
	return &cp
}

func (s *state) setAccount(a *domain.AccountSnapshot) {
	s.mu.Lock()
	s.account = a
	s.mu.Unlock()
}

func (s *state) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *state) setSymbols(v []string) {
	s.mu.Lock()
	s.symbols = v
	s.mu.Unlock()
}

func (s *state) Positions() []domain.PositionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PositionRecord, len(s.positions))
	copy(out, s.positions)
	return out
}

func (s *state) setPositions(v []domain.PositionRecord) {
	s.mu.Lock()
	s.positions = v
	s.mu.Unlock()
}

func (s *state) Orders() []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.OrderRecord, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *state) setOrders(v []domain.OrderRecord) {
	s.mu.Lock()
	s.orders = v
	s.mu.Unlock()
}

func (s *state) Tick(symbol string) (domain.MarketTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tick, ok := s.ticks[symbol]
	return tick, ok
}

func (s *state) setTick(tick domain.MarketTick) {
	s.mu.Lock()
	s.ticks[tick.Symbol] = tick
	s.mu.Unlock()
}

// reset clears connection-scoped data on disconnect. Ticks are kept so
// last-known quotes remain available to the broadcaster cache.
func (s *state) reset() {
	s.mu.Lock()
	s.account = nil
	s.symbols = nil
	s.positions = nil
	s.orders = nil
	s.status = domain.StatusDisconnected
	s.mu.Unlock()
}
