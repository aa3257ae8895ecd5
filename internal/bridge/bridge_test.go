package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingzero/mt5bridge/internal/broadcast"
	"github.com/wingzero/mt5bridge/internal/domain"
	"github.com/wingzero/mt5bridge/internal/terminal"
)

// fakeSession is a scriptable terminal driver for bridge tests.
type fakeSession struct {
	mu sync.Mutex

	connectErr error
	connects   int
	shutdowns  int

	account  domain.AccountSnapshot
	symbols  []string
	ticks    map[string]domain.MarketTick
	tickErrs map[string]error
	tickHits map[string]int

	positions []domain.PositionRecord
	orders    []domain.OrderRecord

	deals      []terminal.DealRequest
	dealResult terminal.DealResult
	dealErr    error
}

var _ terminal.Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	return &fakeSession{
		account: domain.AccountSnapshot{Login: 555, Currency: "USD", Balance: 1000, Equity: 1000},
		symbols: []string{"EURUSD", "GBPUSD"},
		ticks: map[string]domain.MarketTick{
			"EURUSD": {Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1002, Spread: 0.0002, Timestamp: 1},
			"GBPUSD": {Symbol: "GBPUSD", Bid: 1.2500, Ask: 1.2503, Spread: 0.0003, Timestamp: 1},
		},
		tickErrs:   map[string]error{},
		tickHits:   map[string]int{},
		dealResult: terminal.DealResult{Retcode: terminal.RetcodeDone, OrderID: 777, Comment: "done"},
	}
}

func (f *fakeSession) Connect(_ context.Context, _ *domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeSession) Shutdown() {
	f.mu.Lock()
	f.shutdowns++
	f.mu.Unlock()
}

func (f *fakeSession) AccountInfo(_ context.Context) (*domain.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc := f.account
	return &acc, nil
}

func (f *fakeSession) Symbols(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...), nil
}

func (f *fakeSession) Positions(_ context.Context) ([]domain.PositionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PositionRecord(nil), f.positions...), nil
}

func (f *fakeSession) Orders(_ context.Context) ([]domain.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRecord(nil), f.orders...), nil
}

func (f *fakeSession) Tick(_ context.Context, symbol string) (*domain.MarketTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickHits[symbol]++
	if err := f.tickErrs[symbol]; err != nil {
		return nil, err
	}
	tick, ok := f.ticks[symbol]
	if !ok {
		return nil, errors.Errorf("no quote for %s", symbol)
	}
	return &tick, nil
}

func (f *fakeSession) SubmitDeal(_ context.Context, req *terminal.DealRequest) (*terminal.DealResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deals = append(f.deals, *req)
	if f.dealErr != nil {
		return nil, f.dealErr
	}
	res := f.dealResult
	return &res, nil
}

func (f *fakeSession) dealCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deals)
}

func (f *fakeSession) lastDeal() terminal.DealRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deals[len(f.deals)-1]
}

// newTestBridge builds a bridge whose scheduler effectively never fires,
// so tests drive every terminal interaction themselves.
func newTestBridge(s terminal.Session) *Bridge {
	return New(s, broadcast.New(), Config{
		SampleInterval: time.Hour,
		SnapshotEvery:  1 << 40,
		CallTimeout:    time.Second,
	})
}

func TestConnectLifecycle(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	defer b.Disconnect()

	assert.Equal(t, domain.StatusDisconnected, b.Status())
	assert.Nil(t, b.Account())

	require.NoError(t, b.Connect(context.Background(), &domain.Credentials{}))
	assert.Equal(t, domain.StatusConnected, b.Status())

	acc := b.Account()
	require.NotNil(t, acc)
	assert.Equal(t, int64(555), acc.Login)

	symbols, err := b.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, symbols)

	b.Disconnect()
	assert.Equal(t, domain.StatusDisconnected, b.Status())
	assert.Nil(t, b.Account())
	assert.Equal(t, 1, sess.shutdowns)

	_, err = b.Symbols()
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnectIdempotent(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	defer b.Disconnect()

	require.NoError(t, b.Connect(context.Background(), nil))
	require.NoError(t, b.Connect(context.Background(), nil))
	assert.Equal(t, 1, sess.connects)
}

func TestConnectFailure(t *testing.T) {
	sess := newFakeSession()
	sess.connectErr = errors.New("terminal refused login")
	b := newTestBridge(sess)

	err := b.Connect(context.Background(), nil)
	require.Error(t, err)

	var connErr *domain.ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, connErr.Error(), "terminal refused login")
	assert.Equal(t, domain.StatusFailed, b.Status())

	// A failed connect leaves the bridge unusable until the next attempt.
	_, err = b.AccountInfo(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	// The next attempt is allowed and can succeed.
	sess.connectErr = nil
	require.NoError(t, b.Connect(context.Background(), nil))
	assert.Equal(t, domain.StatusConnected, b.Status())
	b.Disconnect()
}

func TestDisconnectWhenDisconnected(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)

	b.Disconnect()
	b.Disconnect()
	assert.Equal(t, 0, sess.shutdowns)
	assert.Equal(t, domain.StatusDisconnected, b.Status())
}

func TestOperationsRequireConnection(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	ctx := context.Background()

	_, err := b.AccountInfo(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.Positions(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.Orders(ctx)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.MarketData(ctx, "EURUSD")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.PlaceOrder(ctx, &domain.TradeRequest{Symbol: "EURUSD", Side: domain.SideBuy, Volume: 1})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	_, err = b.ClosePosition(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	// Nothing reached the terminal.
	assert.Zero(t, sess.dealCount())
	assert.Empty(t, sess.tickHits)
}

func TestSymbolListCap(t *testing.T) {
	sess := newFakeSession()
	sess.symbols = nil
	for i := 0; i < 80; i++ {
		sess.symbols = append(sess.symbols, "SYM")
	}
	b := newTestBridge(sess)
	defer b.Disconnect()

	require.NoError(t, b.Connect(context.Background(), nil))
	symbols, err := b.Symbols()
	require.NoError(t, err)
	assert.Len(t, symbols, 50)
}

func TestMarketDataCacheFirst(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	defer b.Disconnect()
	require.NoError(t, b.Connect(context.Background(), nil))

	ctx := context.Background()
	first, err := b.MarketData(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1002, first.Ask)
	assert.Equal(t, 1, sess.tickHits["EURUSD"])

	// Second read is served from the cache; the terminal is not touched.
	second, err := b.MarketData(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, sess.tickHits["EURUSD"])
}

func TestMarketDataUnknownSymbol(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	defer b.Disconnect()
	require.NoError(t, b.Connect(context.Background(), nil))

	_, err := b.MarketData(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrSymbolNotFound)
}

func TestRefreshReplacesSnapshots(t *testing.T) {
	sess := newFakeSession()
	b := newTestBridge(sess)
	defer b.Disconnect()
	require.NoError(t, b.Connect(context.Background(), nil))
	ctx := context.Background()

	sess.mu.Lock()
	sess.positions = []domain.PositionRecord{{Ticket: 1, Symbol: "EURUSD", Side: domain.SideBuy, Volume: 0.1}}
	sess.mu.Unlock()

	positions, err := b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	// The set is replaced wholesale, not merged.
	sess.mu.Lock()
	sess.positions = []domain.PositionRecord{{Ticket: 2, Symbol: "GBPUSD", Side: domain.SideSell, Volume: 0.2}}
	sess.mu.Unlock()

	positions, err = b.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, uint64(2), positions[0].Ticket)

	sess.mu.Lock()
	sess.account.Balance = 2222
	sess.mu.Unlock()
	acc, err := b.AccountInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2222.0, acc.Balance)
}
