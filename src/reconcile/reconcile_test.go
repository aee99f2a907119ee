package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tokenexecutor/src/connectors"
	"tokenexecutor/src/database"
	"tokenexecutor/src/locks"
	"tokenexecutor/src/metrics"
	"tokenexecutor/src/model"
	"tokenexecutor/src/notify"
	"tokenexecutor/src/repository"
	"tokenexecutor/src/settings"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeHoldings struct {
	holdings  []connectors.Holding
	err       error
	afterList func()
	// live overrides the snapshot for single-token reads.
	live map[string]uint64
}

func (f *fakeHoldings) ListHoldings(context.Context) ([]connectors.Holding, error) {
	out := f.holdings
	if f.afterList != nil {
		f.afterList()
	}
	return out, f.err
}

func (f *fakeHoldings) HeldRaw(_ context.Context, mint string) (uint64, error) {
	if raw, ok := f.live[mint]; ok {
		return raw, nil
	}
	for _, h := range f.holdings {
		if h.Mint == mint {
			return h.Raw, nil
		}
	}
	return 0, nil
}

type fakePrices map[string]decimal.Decimal

func (f fakePrices) GetCurrentPrice(_ context.Context, token string) (decimal.Decimal, error) {
	if p, ok := f[token]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("no price")
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

type fixture struct {
	reconciler *Reconciler
	holdings   *fakeHoldings
	prices     fakePrices
	positions  *repository.PositionRepository
	executions *repository.ExecutionLogRepository
	notifier   *recordingNotifier
	metrics    *metrics.Metrics
	cfg        *settings.TradeSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	logger, _ := logrustest.NewNullLogger()

	f := &fixture{
		holdings:   &fakeHoldings{},
		prices:     fakePrices{},
		positions:  (&repository.PositionRepository{}).WithDB(db),
		executions: (&repository.ExecutionLogRepository{}).WithDB(db),
		notifier:   &recordingNotifier{},
		metrics:    metrics.Nop(),
		cfg:        &settings.TradeSettings{ReconcileMinValueQuote: d("0.001")},
	}
	f.reconciler = New(logrus.NewEntry(logger), Options{
		Config:     Config{Schedule: "@every 1m", IgnoreMints: []string{"wsol"}},
		Settings:   settings.Static(f.cfg),
		Holdings:   f.holdings,
		Positions:  f.positions,
		Executions: f.executions,
		Prices:     f.prices,
		Decimals:   fixedDecimals(6),
		Locks:      locks.NewLocal(),
		Notifier:   f.notifier,
		Metrics:    f.metrics,

		ExecutionExpiry: 3 * time.Minute,
	})
	f.reconciler.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) open(t *testing.T, token string) *model.Position {
	t.Helper()
	pos := &model.Position{
		TokenAddress:   token,
		TokenDecimals:  6,
		BuyPrice:       d("0.01"),
		BuyAmount:      d("100"),
		BuyQuoteAmount: d("1"),
		BuyTxRef:       "tx-" + token,
		BuyTime:        testNow.Add(-time.Hour),
		Status:         model.PositionStatusOpen,
		Version:        1,
	}
	require.NoError(t, f.positions.Create(context.Background(), pos))
	return pos
}

func TestRunOnceKeepsPositionBoughtDuringPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var fresh *model.Position
	f.holdings.afterList = func() {
		fresh = f.open(t, "fresh")
		f.holdings.live = map[string]uint64{"fresh": 100_000_000}
	}

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)

	got, err := f.positions.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusOpen, got.Status)
	assert.Nil(t, got.SellReason)
}

func TestRunOnceClosesMissingPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos := f.open(t, "gone")

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)

	closed, err := f.positions.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.SellReason)
	assert.Equal(t, model.SellReasonReconciledMissing, *closed.SellReason)
	assert.True(t, closed.SellAmount.Decimal.IsZero())
	assert.True(t, closed.SellPrice.Decimal.Equal(closed.BuyPrice))
	assert.True(t, closed.ProfitLossAmount.Decimal.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Reconciled.WithLabelValues("closed")))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventPositionClosed, f.notifier.events[0].Type)
}

func TestRunOnceKeepsHeldPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos := f.open(t, "kept")
	f.holdings.holdings = []connectors.Holding{{Mint: "kept", Raw: 100_000_000}}

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	still, err := f.positions.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, still.IsOpen())
}

func TestRunOnceWalletErrorChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos := f.open(t, "gone")
	f.holdings.err = errors.New("rpc down")

	_, err := f.reconciler.RunOnce(ctx)
	require.Error(t, err)

	still, err := f.positions.FindByID(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, still.IsOpen())
}

func TestRunOnceSkipsPositionWithPendingSell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pos := f.open(t, "selling")
	require.NoError(t, f.executions.Create(ctx, &model.ExecutionLog{
		ClientID:     "c-1",
		TokenAddress: "selling",
		Side:         model.ExecutionSideSell,
		Status:       model.ExecutionStatusUnconfirmed,
		TxRef:        "tx-pending",
		PositionID:   &pos.ID,
		RequestedAt:  testNow,
	}))

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Closed)
	assert.Equal(t, 1, res.Skipped)
}

func TestRunOnceImportsUntrackedHolding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.holdings.holdings = []connectors.Holding{
		{Mint: "new", Raw: 250_000_000},
		{Mint: "dust", Raw: 1},
		{Mint: "wsol", Raw: 5_000_000},
	}
	f.prices["new"] = d("0.002")
	f.prices["dust"] = d("0.002")

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)

	pos, err := f.positions.FindOpenByToken(ctx, "new")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Imported)
	assert.True(t, pos.PriceApproximated)
	assert.Equal(t, model.WalletImportTxRef, pos.BuyTxRef)
	assert.True(t, pos.BuyAmount.Equal(d("250")))
	assert.True(t, pos.BuyPrice.Equal(d("0.002")))
	assert.Equal(t, int32(6), pos.TokenDecimals)

	dust, err := f.positions.FindOpenByToken(ctx, "dust")
	require.NoError(t, err)
	assert.Nil(t, dust)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventPositionImported, f.notifier.events[0].Type)
}

func TestRunOnceImportUsesLastBuyPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	earlier := f.open(t, "again")
	earlier.Settle(model.Settlement{SellPrice: d("0.012"), SellAmount: d("100"), SellTxRef: "tx-s", SellTime: testNow.Add(-30 * time.Minute), Reason: model.SellReasonProfitTarget})
	require.NoError(t, f.positions.Close(ctx, earlier))

	f.holdings.holdings = []connectors.Holding{{Mint: "again", Raw: 3_000_000}}
	f.prices["again"] = d("0.05")

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	pos, err := f.positions.FindOpenByToken(ctx, "again")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.BuyPrice.Equal(d("0.01")))
}

func TestRunOnceSkipsHoldingWithPendingBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.executions.Create(ctx, &model.ExecutionLog{
		ClientID:     "c-2",
		TokenAddress: "landing",
		Side:         model.ExecutionSideBuy,
		Status:       model.ExecutionStatusPending,
		TxRef:        "tx-buy",
		RequestedAt:  testNow,
	}))
	f.holdings.holdings = []connectors.Holding{{Mint: "landing", Raw: 9_000_000}}
	f.prices["landing"] = d("1")

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
}

func TestRunOnceImportsAfterPendingBuyExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.executions.Create(ctx, &model.ExecutionLog{
		ClientID:     "c-3",
		TokenAddress: "late",
		Side:         model.ExecutionSideBuy,
		Status:       model.ExecutionStatusUnconfirmed,
		TxRef:        "tx-late",
		RequestedAt:  testNow.Add(-10 * time.Minute),
	}))
	f.holdings.holdings = []connectors.Holding{{Mint: "late", Raw: 9_000_000}}
	f.prices["late"] = d("1")

	res, err := f.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	f.reconciler.config.Schedule = "not a schedule"
	assert.Error(t, f.reconciler.Run(context.Background()))
}
