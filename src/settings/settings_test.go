package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokenexecutor/src/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource map[string]string

func (m mapSource) All(context.Context) (map[string]string, error) { return m, nil }

type failingSource struct{}

func (failingSource) All(context.Context) (map[string]string, error) {
	return nil, errors.New("db down")
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, s.ProfitTargetPercentage.Equal(decimal.NewFromInt(20)))
	assert.True(t, s.StopLossPercentage.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 30*time.Second, s.MonitoringInterval)
	assert.Equal(t, 3, s.MaxDailyTradesPerToken)
	assert.Equal(t, 2*time.Hour, s.CooldownAfterProfit)
	assert.Equal(t, 30*time.Second, s.DuplicateBuyWindow)
	assert.False(t, s.AutoTradingEnabled)
	assert.Equal(t, time.Duration(0), s.MaxHold)
	assert.Equal(t, int32(9), s.DefaultTokenDecimals)
}

func TestLoadLayersRowsThenEnv(t *testing.T) {
	t.Setenv("STOP_LOSS_PERCENTAGE", "7.5")

	s, err := Load(context.Background(), mapSource{
		model.ConfigProfitTargetPercentage:   "35",
		model.ConfigStopLossPercentage:       "15",
		model.ConfigCooldownAfterProfitHours: "0.5",
	})
	require.NoError(t, err)
	assert.True(t, s.ProfitTargetPercentage.Equal(decimal.NewFromInt(35)))
	assert.True(t, s.StopLossPercentage.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, 30*time.Minute, s.CooldownAfterProfit)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name string
		rows mapSource
	}{
		{name: "both thresholds zero", rows: mapSource{model.ConfigProfitTargetPercentage: "0", model.ConfigStopLossPercentage: "0"}},
		{name: "negative stop loss", rows: mapSource{model.ConfigStopLossPercentage: "-10"}},
		{name: "zero interval", rows: mapSource{model.ConfigMonitoringIntervalSecs: "0"}},
		{name: "zero cooldown", rows: mapSource{model.ConfigCooldownAfterProfitHours: "0"}},
		{name: "zero duplicate window", rows: mapSource{model.ConfigDuplicateBuyWindowSecs: "0"}},
		{name: "non numeric", rows: mapSource{model.ConfigMaxTradeAmountQuote: "lots"}},
		{name: "bad bool", rows: mapSource{model.ConfigAutoTradingEnabled: "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), tc.rows)
			require.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestHolderReloadKeepsPreviousOnFailure(t *testing.T) {
	src := mapSource{model.ConfigProfitTargetPercentage: "25"}
	h, err := NewHolder(context.Background(), src)
	require.NoError(t, err)

	src[model.ConfigProfitTargetPercentage] = "-1"
	h.Reload(context.Background())
	assert.True(t, h.Current().ProfitTargetPercentage.Equal(decimal.NewFromInt(25)))

	src[model.ConfigProfitTargetPercentage] = "40"
	h.Reload(context.Background())
	assert.True(t, h.Current().ProfitTargetPercentage.Equal(decimal.NewFromInt(40)))

	_, err = NewHolder(context.Background(), failingSource{})
	require.Error(t, err)
}
