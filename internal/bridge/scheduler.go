package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/wingzero/mt5bridge/internal/broadcast"
	"github.com/wingzero/mt5bridge/internal/domain"
)

// failureWarnThreshold: consecutive tick-fetch failures for one symbol
// before the scheduler escalates from debug to a warning. A dead symbol
// never degrades connection status; operators see the warning.
const failureWarnThreshold = 10

// scheduler is the background sampling loop. At most one instance runs
// per bridge; start while running is a no-op. Errors inside the loop
// are contained; only Disconnect stops it permanently.
type scheduler struct {
	b *Bridge

	mu      sync.Mutex
	running bool
	stopC   chan struct{}
	doneC   chan struct{}
}

func newScheduler(b *Bridge) *scheduler {
	return &scheduler{b: b}
}

func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopC = make(chan struct{})
	s.doneC = make(chan struct{})
	go s.run(s.stopC, s.doneC)
	log.Info("stream scheduler started")
}

// stop signals the loop and blocks until the current iteration
// completes, with a bounded join so a wedged driver call cannot hang
// disconnect forever.
func (s *scheduler) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopC)
	done := s.doneC
	s.mu.Unlock()

	joinTimeout := 10 * s.b.cfg.SampleInterval
	if joinTimeout < 5*time.Second {
		joinTimeout = 5 * time.Second
	}
	select {
	case <-done:
		log.Info("stream scheduler stopped")
	case <-time.After(joinTimeout):
		log.Warn("stream scheduler did not stop within join timeout")
	}
}

func (s *scheduler) run(stopC, doneC chan struct{}) {
	defer close(doneC)

	interval := s.b.cfg.SampleInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Consecutive failures per watched symbol.
	failures := make(map[string]int)

	for {
		select {
		case <-stopC:
			return
		case <-ticker.C:
		}

		if faulted := s.iterate(failures); faulted {
			// Terminal session looks faulted: back off instead of
			// spinning, then let the next sample self-heal.
			log.Warnf("stream iteration faulted, backing off %v", 5*interval)
			select {
			case <-stopC:
				return
			case <-time.After(5 * interval):
			}
		}
	}
}

// iterate runs one sampling pass. Returns true when the pass suggests
// the whole session is faulted (every tick failed, or a snapshot
// refresh failed) so the loop backs off.
func (s *scheduler) iterate(failures map[string]int) bool {
	sampled := 0
	for _, symbol := range s.b.cfg.WatchList {
		tick, err := s.b.fetchTick(context.Background(), symbol)
		if err != nil {
			// Skip this symbol for this cycle; no retry storm.
			failures[symbol]++
			if failures[symbol] == failureWarnThreshold {
				log.Warnf("tick fetch for %s failed %d times in a row: %v", symbol, failures[symbol], err)
			} else {
				log.Debugf("tick fetch for %s failed: %v", symbol, err)
			}
			continue
		}
		failures[symbol] = 0
		sampled++
		s.b.storeTick(*tick)
		s.b.caster.Publish(broadcast.EventMarketData, *tick)
	}

	faulted := len(s.b.cfg.WatchList) > 0 && sampled == 0

	// Every Nth wall-clock second, also refresh account and open
	// position/order snapshots.
	if time.Now().Unix()%s.b.cfg.SnapshotEvery == 0 {
		if !s.refreshSnapshots() {
			faulted = true
		}
	}
	return faulted
}

// refreshSnapshots pulls positions, orders and account state and pushes
// the update events. Returns false when the terminal faulted.
func (s *scheduler) refreshSnapshots() bool {
	ctx := context.Background()
	ok := true

	positions, err := s.b.refreshPositions(ctx)
	if err != nil {
		log.Warnf("positions refresh failed: %v", err)
		ok = false
	} else {
		s.b.caster.Publish(broadcast.EventPositionsUpdate, positions)
	}

	var orders []domain.OrderRecord
	if err := s.b.withSession(ctx, func(cctx context.Context) error {
		var oerr error
		orders, oerr = s.b.session.Orders(cctx)
		return oerr
	}); err != nil {
		log.Warnf("orders refresh failed: %v", err)
		ok = false
	} else {
		if orders == nil {
			orders = []domain.OrderRecord{}
		}
		s.b.st.setOrders(orders)
	}

	var account *domain.AccountSnapshot
	if err := s.b.withSession(ctx, func(cctx context.Context) error {
		var aerr error
		account, aerr = s.b.session.AccountInfo(cctx)
		return aerr
	}); err != nil {
		log.Warnf("account refresh failed: %v", err)
		ok = false
	} else {
		s.b.st.setAccount(account)
		s.b.caster.Publish(broadcast.EventAccountUpdate, account)
	}

	return ok
}
