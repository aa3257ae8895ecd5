// Package bridge owns the single terminal session: connection
// lifecycle, last-known state, serialized trade submission and the
// streaming sampler feeding the broadcaster. Everything the transport
// layers expose goes through the Bridge facade.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/broadcast"
	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/journal"
	"github.com/wingzero/mt5bridge/internal/terminal"
)

var log = logrus.WithField("component", "bridge")

// Recorder receives a row for every submitted deal. Implemented by
// *journal.Journal; nil disables journaling.
type Recorder interface {
	RecordDeal(ctx context.Context, rec journal.DealRecord) error
}

// TickStore persists last-known ticks across restarts. Implemented by
// *tickstore.Store; nil disables persistence.
type TickStore interface {
	Put(tick domain.MarketTick) error
	All() ([]domain.MarketTick, error)
}

// Config tunes the bridge. Zero values get defaults from withDefaults.
type Config struct {
	// WatchList is the fixed set of symbols the scheduler samples each
	// second. Distinct from the full discovered symbol list.
	WatchList []string

	// SampleInterval is the scheduler cadence.
	SampleInterval time.Duration

	// SnapshotEvery refreshes positions/orders/account on iterations
	// where the wall-clock second is a multiple of this value.
	SnapshotEvery int64

	// CallTimeout bounds every call into the terminal driver so a hung
	// driver fails the operation instead of freezing the process.
	CallTimeout time.Duration

	// SymbolLimit caps the symbol list fetched at connect time.
	SymbolLimit int

	// Comment is the default order comment when the request has none.
	Comment string
}

func (c Config) withDefaults() Config {
	if len(c.WatchList) == 0 {
		c.WatchList = []string{"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD", "NZDUSD"}
	}
	if c.SampleInterval <= 0 {
		c.SampleInterval = time.Second
	}
	if c.SnapshotEvery <= 0 {
		c.SnapshotEvery = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.SymbolLimit <= 0 {
		c.SymbolLimit = 50
	}
	if c.Comment == "" {
		c.Comment = "mt5bridge"
	}
	return c
}

// Bridge is the facade over one terminal session. Construct it
// explicitly and hand it to the transport layers; there is no ambient
// instance.
type Bridge struct {
	cfg     Config
	session terminal.Session
	st      *state
	caster  *broadcast.Caster
	journal Recorder
	ticks   TickStore
	sched   *scheduler

	// sessMu serializes every call into the terminal driver; the
	// underlying session is not assumed to be reentrant.
	sessMu sync.Mutex

	// connMu serializes Connect/Disconnect transitions.
	connMu sync.Mutex
}

// New builds a bridge around the given driver and broadcaster.
func New(session terminal.Session, caster *broadcast.Caster, cfg Config) *Bridge {
	b := &Bridge{
		cfg:     cfg.withDefaults(),
		session: session,
		st:      newState(),
		caster:  caster,
	}
	b.sched = newScheduler(b)
	return b
}

// UseJournal enables deal journaling.
func (b *Bridge) UseJournal(r Recorder) { b.journal = r }

// UseTickStore enables tick persistence and immediately seeds the state
// and broadcaster caches with whatever the store holds, so last-known
// quotes survive restarts.
func (b *Bridge) UseTickStore(s TickStore) {
	b.ticks = s
	stored, err := s.All()
	if err != nil {
		log.Warnf("tickstore load failed: %v", err)
		return
	}
	for _, tick := range stored {
		b.st.setTick(tick)
		b.caster.Prime(tick)
	}
	if len(stored) > 0 {
		log.Infof("seeded %d last-known ticks from store", len(stored))
	}
}

// Status reports the current connection status. Always available.
func (b *Bridge) Status() domain.ConnectionStatus { return b.st.Status() }

// Account returns the cached snapshot without touching the terminal,
// for status reporting. May be nil.
func (b *Bridge) Account() *domain.AccountSnapshot { return b.st.Account() }

// Connect drives the terminal session up: init/login, then an initial
// account and symbol fetch, then the stream scheduler. Calling it while
// already connected is a no-op success; a failure leaves the status at
// Failed and is surfaced verbatim as a ConnectError.
func (b *Bridge) Connect(ctx context.Context, creds *domain.Credentials) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.st.Status() == domain.StatusConnected {
		return nil
	}
	b.st.setStatus(domain.StatusConnecting)

	if err := b.withSession(ctx, func(cctx context.Context) error {
		return b.session.Connect(cctx, creds)
	}); err != nil {
		b.st.setStatus(domain.StatusFailed)
		return &domain.ConnectError{Err: err}
	}

	var account *domain.AccountSnapshot
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		account, err = b.session.AccountInfo(cctx)
		return err
	}); err != nil {
		b.st.setStatus(domain.StatusFailed)
		return &domain.ConnectError{Err: errors.Wrap(err, "account info")}
	}

	var symbols []string
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		symbols, err = b.session.Symbols(cctx)
		return err
	}); err != nil {
		b.st.setStatus(domain.StatusFailed)
		return &domain.ConnectError{Err: errors.Wrap(err, "symbol list")}
	}
	if len(symbols) > b.cfg.SymbolLimit {
		symbols = symbols[:b.cfg.SymbolLimit]
	}

	b.st.setAccount(account)
	b.st.setSymbols(symbols)
	b.st.setStatus(domain.StatusConnected)
	b.sched.start()

	log.Infof("connected to terminal account %d (%d symbols)", account.Login, len(symbols))
	return nil
}

// Disconnect stops the scheduler, waits for its current iteration,
// releases the terminal and clears connection-scoped state. Safe and
// silent when already disconnected.
func (b *Bridge) Disconnect() {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.st.Status() == domain.StatusDisconnected {
		return
	}

	// Scheduler first: the loop must not touch a torn-down session.
	b.sched.stop()

	b.sessMu.Lock()
	b.session.Shutdown()
	b.sessMu.Unlock()

	b.st.reset()
	log.Info("disconnected from terminal")
}

// AccountInfo re-queries the terminal and replaces the cached snapshot,
// so callers always get a fresh-as-of-now value.
func (b *Bridge) AccountInfo(ctx context.Context) (*domain.AccountSnapshot, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	var account *domain.AccountSnapshot
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		account, err = b.session.AccountInfo(cctx)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "refresh account")
	}
	b.st.setAccount(account)
	return account, nil
}

// Positions re-queries open positions and replaces the cached set
// wholesale.
func (b *Bridge) Positions(ctx context.Context) ([]domain.PositionRecord, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	return b.refreshPositions(ctx)
}

func (b *Bridge) refreshPositions(ctx context.Context) ([]domain.PositionRecord, error) {
	var positions []domain.PositionRecord
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		positions, err = b.session.Positions(cctx)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "refresh positions")
	}
	if positions == nil {
		positions = []domain.PositionRecord{}
	}
	b.st.setPositions(positions)
	return positions, nil
}

// Orders re-queries pending orders and replaces the cached set.
func (b *Bridge) Orders(ctx context.Context) ([]domain.OrderRecord, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	var orders []domain.OrderRecord
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		orders, err = b.session.Orders(cctx)
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "refresh orders")
	}
	if orders == nil {
		orders = []domain.OrderRecord{}
	}
	b.st.setOrders(orders)
	return orders, nil
}

// Symbols returns the list discovered at connect time. The list is
// fetched once per connection by design.
func (b *Bridge) Symbols() ([]string, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	return b.st.Symbols(), nil
}

// MarketData returns the last streamed tick for the symbol when one is
// cached; only a cache miss queries the terminal synchronously. The
// staleness window is at most one sampling interval.
func (b *Bridge) MarketData(ctx context.Context, symbol string) (*domain.MarketTick, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	if tick, ok := b.st.Tick(symbol); ok {
		return &tick, nil
	}
	tick, err := b.fetchTick(ctx, symbol)
	if err != nil {
		return nil, err
	}
	b.storeTick(*tick)
	b.caster.Prime(*tick)
	return tick, nil
}

// PlaceOrder submits a market deal. Fails fast with ErrNotConnected
// before the gateway is touched.
func (b *Bridge) PlaceOrder(ctx context.Context, req *domain.TradeRequest) (*domain.TradeResult, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	return b.placeOrder(ctx, req)
}

// ClosePosition flattens the position identified by ticket.
func (b *Bridge) ClosePosition(ctx context.Context, ticket uint64) (*domain.TradeResult, error) {
	if !b.connected() {
		return nil, domain.ErrNotConnected
	}
	return b.closePosition(ctx, ticket)
}

func (b *Bridge) connected() bool {
	return b.st.Status() == domain.StatusConnected
}

// withSession runs one driver call under the session mutex with the
// configured timeout applied.
func (b *Bridge) withSession(ctx context.Context, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()
	b.sessMu.Lock()
	defer b.sessMu.Unlock()
	return fn(cctx)
}

// fetchTick queries the terminal for a quote. A driver failure here is
// reported as SymbolNotFound: the venue has no price for that name.
func (b *Bridge) fetchTick(ctx context.Context, symbol string) (*domain.MarketTick, error) {
	var tick *domain.MarketTick
	if err := b.withSession(ctx, func(cctx context.Context) error {
		var err error
		tick, err = b.session.Tick(cctx, symbol)
		return err
	}); err != nil {
		return nil, errors.Wrapf(domain.ErrSymbolNotFound, "%s: %v", symbol, err)
	}
	return tick, nil
}

// storeTick updates the in-memory cache and writes through to the
// persistent store when one is configured.
func (b *Bridge) storeTick(tick domain.MarketTick) {
	b.st.setTick(tick)
	if b.ticks != nil {
		if err := b.ticks.Put(tick); err != nil {
			log.Warnf("tickstore put %s: %v", tick.Symbol, err)
		}
	}
}
