package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	JupiterBaseURL   string        `envconfig:"JUPITER_BASE_URL" default:"https://lite-api.jup.ag"`
	JupiterAPIKey    string        `envconfig:"JUPITER_API_KEY"`
	SolanaFMBaseURL  string        `envconfig:"SOLANA_FM_BASE_URL" default:"https://api.solana.fm"`
	SolanaRPCURL     string        `envconfig:"SOLANA_RPC_URL" default:"https://api.mainnet-beta.solana.com"`
	RPCRatePerSecond float64       `envconfig:"SOLANA_RPC_RATE_PER_SECOND" default:"8"`
	RPCMaxRetries    int           `envconfig:"SOLANA_RPC_MAX_RETRIES" default:"4"`
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
