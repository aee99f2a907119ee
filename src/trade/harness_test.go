package trade

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"tokenexecutor/src/database"
	"tokenexecutor/src/guard"
	"tokenexecutor/src/locks"
	"tokenexecutor/src/metrics"
	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/settings"
	"tokenexecutor/src/swap"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDecimals = 6

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeVenue fills buys with a fixed quantity and sells at a fixed price.
type fakeVenue struct {
	mu           sync.Mutex
	buyQty       decimal.Decimal
	sellPrice    decimal.Decimal
	fillDecimals *int32
	prepareErr   error
	awaitErr     error
	lookup       map[string]*swap.Fill
	lookupErr    error
	orders       []swap.Order
	refs         int
}

func (v *fakeVenue) Prepare(_ context.Context, order swap.Order) (*swap.Prepared, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.prepareErr != nil {
		return nil, v.prepareErr
	}
	v.refs++
	v.orders = append(v.orders, order)
	return &swap.Prepared{TxRef: fmt.Sprintf("tx-%d", v.refs), Order: order}, nil
}

func (v *fakeVenue) Send(context.Context, *swap.Prepared) error { return nil }

func (v *fakeVenue) AwaitFill(_ context.Context, order swap.Order, txRef string) (*swap.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.awaitErr != nil {
		return nil, v.awaitErr
	}
	return v.fillFor(order, txRef), nil
}

func (v *fakeVenue) LookupFill(_ context.Context, order swap.Order, txRef string) (*swap.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if fill, ok := v.lookup[txRef]; ok {
		return fill, nil
	}
	if v.lookupErr != nil {
		return nil, v.lookupErr
	}
	return nil, fmt.Errorf("%w: %s", swap.ErrUnconfirmed, txRef)
}

func (v *fakeVenue) fillFor(order swap.Order, txRef string) *swap.Fill {
	if order.Side == model.ExecutionSideBuy {
		return &swap.Fill{TxRef: txRef, Quantity: v.buyQty, QuoteAmount: order.Amount, Price: order.Amount.DivRound(v.buyQty, 18), TokenDecimals: v.fillDecimals}
	}
	return &swap.Fill{TxRef: txRef, Quantity: order.Amount, QuoteAmount: order.Amount.Mul(v.sellPrice), Price: v.sellPrice}
}

func (v *fakeVenue) sells() []swap.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []swap.Order
	for _, o := range v.orders {
		if o.Side == model.ExecutionSideSell {
			out = append(out, o)
		}
	}
	return out
}

type fakeWallet struct {
	mu   sync.Mutex
	held map[string]uint64
	err  error
}

func (w *fakeWallet) set(token string, units decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held[token] = units.Shift(testDecimals).BigInt().Uint64()
}

func (w *fakeWallet) HeldRaw(_ context.Context, mint string) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.held[mint], w.err
}

type fixedDecimals int32

func (f fixedDecimals) Resolve(context.Context, string) (int32, bool) { return int32(f), false }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type harness struct {
	t          *testing.T
	now        time.Time
	clockMu    sync.Mutex
	cfg        *settings.TradeSettings
	venue      *fakeVenue
	wallet     *fakeWallet
	notifier   *recordingNotifier
	positions  *repository.PositionRepository
	executions *repository.ExecutionLogRepository
	exceptions *repository.ExceptionRepository
	guard      *guard.Guard
	deps       *Deps
	buy        *BuyService
	sell       *SellService
	logHook    *logrustest.Hook
	db         *gorm.DB
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	logger, hook := logrustest.NewNullLogger()
	log := logrus.NewEntry(logger)

	h := &harness{
		t:   t,
		now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
		cfg: &settings.TradeSettings{
			ProfitTargetPercentage: d("20"),
			StopLossPercentage:     d("10"),
			MonitoringInterval:     30 * time.Second,
			MaxTradeAmountQuote:    d("114"),
			MaxDailyTradesPerToken: 3,
			CooldownAfterProfit:    2 * time.Hour,
			DuplicateBuyWindow:     30 * time.Second,
			AnalysisScoreThreshold: d("80"),
			AutoTradingEnabled:     true,
			DefaultTokenDecimals:   9,
		},
		venue:      &fakeVenue{buyQty: d("11400"), sellPrice: d("0.0121"), lookup: map[string]*swap.Fill{}},
		wallet:     &fakeWallet{held: map[string]uint64{}},
		notifier:   &recordingNotifier{},
		positions:  (&repository.PositionRepository{}).WithDB(db),
		executions: (&repository.ExecutionLogRepository{}).WithDB(db),
		exceptions: (&repository.ExceptionRepository{}).WithDB(db),
		logHook:    hook,
		db:         db,
	}
	blacklist := (&repository.BlacklistRepository{}).WithDB(db)
	h.guard = guard.New(log, h.positions, h.executions, blacklist).WithClock(h.clock)

	h.deps = &Deps{
		Log:        log,
		Config:     Config{ExecutionExpiry: 3 * time.Minute, ServiceName: "test"},
		Settings:   settings.Static(h.cfg),
		Positions:  h.positions,
		Executions: h.executions,
		Exceptions: h.exceptions,
		Venue:      h.venue,
		Wallet:     h.wallet,
		Decimals:   fixedDecimals(testDecimals),
		Guard:      h.guard,
		Locks:      locks.NewLocal(),
		Notifier:   h.notifier,
		Metrics:    metrics.Nop(),
		Now:        h.clock,
	}
	h.buy = NewBuyService(h.deps)
	h.sell = NewSellService(h.deps)
	return h
}

func (h *harness) clock() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.now
}

func (h *harness) advance(dur time.Duration) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.now = h.now.Add(dur)
}

var suggestionSeq int

func suggestion(token string) Suggestion {
	suggestionSeq++
	return Suggestion{ID: fmt.Sprintf("sg-%d", suggestionSeq), TokenAddress: token, TokenSymbol: "TKN", Score: d("90")}
}

// openFilled buys token and makes the wallet hold exactly the filled amount.
func (h *harness) openFilled(token string) *model.Position {
	h.t.Helper()
	pos, err := h.buy.AttemptBuy(context.Background(), suggestion(token))
	require.NoError(h.t, err)
	h.wallet.set(token, pos.BuyAmount)
	return pos
}

func rawUnits(units string) uint64 {
	v, _ := new(big.Int).SetString(d(units).Shift(testDecimals).String(), 10)
	return v.Uint64()
}

func repositoryOpts(token string) repository.PositionSearchOptions {
	return repositoryStatusOpts(token, model.PositionStatusOpen)
}

func repositoryStatusOpts(token string, status model.PositionStatus) repository.PositionSearchOptions {
	return repository.PositionSearchOptions{TokenAddress: token, Status: status}
}
