package swap

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SlippageBps               int           `envconfig:"SLIPPAGE_BPS" default:"300"`
	HighVolatilitySlippageBps int           `envconfig:"HIGH_VOLATILITY_SLIPPAGE_BPS" default:"1000"`
	HighVolatilityTokens      []string      `envconfig:"HIGH_VOLATILITY_TOKENS"`
	PriorityFeeLamports       uint64        `envconfig:"PRIORITY_FEE_LAMPORTS" default:"100000"`
	ConfirmTimeout            time.Duration `envconfig:"SWAP_CONFIRM_TIMEOUT" default:"60s"`
	PollInterval              time.Duration `envconfig:"SWAP_POLL_INTERVAL" default:"2s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
