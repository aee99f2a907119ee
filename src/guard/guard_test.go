package guard

import (
	"context"
	"testing"
	"time"

	"tokenexecutor/src/model"
	"tokenexecutor/src/settings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	buysSince time.Time
	buys      int64
	lastWin   *time.Time
}

func (f *fakeLedger) CountBuysSince(_ context.Context, _ string, since time.Time) (int64, error) {
	f.buysSince = since
	return f.buys, nil
}

func (f *fakeLedger) LastProfitableSellTime(context.Context, string) (*time.Time, error) {
	return f.lastWin, nil
}

type fakeAttempts struct {
	last *model.ExecutionLog
}

func (f *fakeAttempts) LastBuyAttempt(context.Context, string) (*model.ExecutionLog, error) {
	return f.last, nil
}

type fakeBlacklist struct {
	entries   map[string]model.BlacklistEntry
	listCalls int
}

func (f *fakeBlacklist) Add(_ context.Context, e *model.BlacklistEntry) error {
	f.entries[e.TokenAddress] = *e
	return nil
}

func (f *fakeBlacklist) Remove(_ context.Context, token string) (bool, error) {
	_, ok := f.entries[token]
	delete(f.entries, token)
	return ok, nil
}

func (f *fakeBlacklist) List(context.Context) ([]model.BlacklistEntry, error) {
	f.listCalls++
	out := make([]model.BlacklistEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

var testNow = time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)

func newGuard() (*Guard, *fakeLedger, *fakeAttempts, *fakeBlacklist) {
	logger, _ := logrustest.NewNullLogger()
	ledger := &fakeLedger{}
	attempts := &fakeAttempts{}
	bl := &fakeBlacklist{entries: map[string]model.BlacklistEntry{}}
	g := New(logrus.NewEntry(logger), ledger, attempts, bl)
	g.now = func() time.Time { return testNow }
	return g, ledger, attempts, bl
}

func cfg() settings.TradeSettings {
	return settings.TradeSettings{
		MaxDailyTradesPerToken: 3,
		CooldownAfterProfit:    2 * time.Hour,
		DuplicateBuyWindow:     30 * time.Second,
	}
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	r, ok := AsRejection(err)
	require.True(t, ok, "expected rejection, got %v", err)
	assert.Equal(t, code, r.Code)
}

func TestCheckLimitsPasses(t *testing.T) {
	g, ledger, _, _ := newGuard()
	require.NoError(t, g.CheckLimits(context.Background(), "mint", cfg()))
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), ledger.buysSince)
}

func TestDuplicateWindowCountsAnyAttempt(t *testing.T) {
	g, _, attempts, _ := newGuard()
	attempts.last = &model.ExecutionLog{Status: model.ExecutionStatusFailed, RequestedAt: testNow.Add(-10 * time.Second)}
	requireCode(t, g.CheckLimits(context.Background(), "mint", cfg()), CodeDuplicateWindow)

	attempts.last.RequestedAt = testNow.Add(-31 * time.Second)
	assert.NoError(t, g.CheckLimits(context.Background(), "mint", cfg()))
}

func TestDailyCap(t *testing.T) {
	g, ledger, _, _ := newGuard()
	ledger.buys = 3
	requireCode(t, g.CheckLimits(context.Background(), "mint", cfg()), CodeDailyCap)

	ledger.buys = 2
	assert.NoError(t, g.CheckLimits(context.Background(), "mint", cfg()))
}

func TestCooldownAfterProfit(t *testing.T) {
	g, ledger, _, _ := newGuard()
	win := testNow.Add(-90 * time.Minute)
	ledger.lastWin = &win
	requireCode(t, g.CheckLimits(context.Background(), "mint", cfg()), CodeCooldown)

	old := testNow.Add(-3 * time.Hour)
	ledger.lastWin = &old
	assert.NoError(t, g.CheckLimits(context.Background(), "mint", cfg()))
}

func TestBlacklistIsCachedAndInvalidated(t *testing.T) {
	g, _, _, bl := newGuard()
	ctx := context.Background()

	require.NoError(t, g.CheckBlacklist(ctx, "mint"))
	require.NoError(t, g.CheckBlacklist(ctx, "other"))
	assert.Equal(t, 1, bl.listCalls)

	require.NoError(t, g.Blacklist(ctx, &model.BlacklistEntry{TokenAddress: "mint", Reason: "MANUAL"}))
	requireCode(t, g.CheckBlacklist(ctx, "mint"), CodeBlacklisted)
	assert.Equal(t, 2, bl.listCalls)
	assert.Equal(t, testNow, bl.entries["mint"].BlacklistedAt)

	removed, err := g.ClearBlacklist(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, g.CheckBlacklist(ctx, "mint"))
}

// stallingBlacklist holds List after it has read the entries until release is closed.
type stallingBlacklist struct {
	*fakeBlacklist
	read    chan struct{}
	release chan struct{}
}

func (s *stallingBlacklist) List(ctx context.Context) ([]model.BlacklistEntry, error) {
	out, err := s.fakeBlacklist.List(ctx)
	close(s.read)
	<-s.release
	return out, err
}

func TestBlacklistLoadRacingInvalidationIsNotCached(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	store := &stallingBlacklist{
		fakeBlacklist: &fakeBlacklist{entries: map[string]model.BlacklistEntry{}},
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
	g := New(logrus.NewEntry(logger), &fakeLedger{}, &fakeAttempts{}, store)
	g.now = func() time.Time { return testNow }
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- g.CheckBlacklist(ctx, "other") }()
	<-store.read

	require.NoError(t, g.Blacklist(ctx, &model.BlacklistEntry{TokenAddress: "mint", Reason: ReasonStopLoss}))
	close(store.release)
	require.NoError(t, <-done)

	store.read = make(chan struct{})
	store.release = make(chan struct{})
	close(store.release)
	requireCode(t, g.CheckBlacklist(ctx, "mint"), CodeBlacklisted)
}

func TestRecordSettlementStopLossBlacklists(t *testing.T) {
	g, _, _, bl := newGuard()
	reason := model.SellReasonStopLoss
	pos := &model.Position{
		ID:                   9,
		TokenAddress:         "mint",
		TokenSymbol:          "TKN",
		SellReason:           &reason,
		ProfitLossPercentage: decimal.NewNullDecimal(decimal.NewFromInt(-12)),
	}

	require.NoError(t, g.RecordSettlement(context.Background(), pos))
	entry, ok := bl.entries["mint"]
	require.True(t, ok)
	assert.Equal(t, ReasonStopLoss, entry.Reason)
	assert.Equal(t, uint(9), *entry.PositionID)
	assert.True(t, entry.LossPercentage.Decimal.Equal(decimal.NewFromInt(-12)))
}

func TestRecordSettlementProfitDoesNotBlacklist(t *testing.T) {
	g, _, _, bl := newGuard()
	reason := model.SellReasonProfitTarget
	pos := &model.Position{
		TokenAddress:         "mint",
		SellReason:           &reason,
		ProfitLossPercentage: decimal.NewNullDecimal(decimal.NewFromInt(25)),
	}

	require.NoError(t, g.RecordSettlement(context.Background(), pos))
	assert.Empty(t, bl.entries)
}

func TestRejectionMessage(t *testing.T) {
	err := Reject(CodeDailyCap, "mint", "%d of %d buys today", 3, 3)
	assert.Equal(t, "buy rejected for mint: DAILY_CAP_REACHED (3 of 3 buys today)", err.Error())
}
