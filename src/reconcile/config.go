package reconcile

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Schedule string `envconfig:"RECONCILE_SCHEDULE" default:"*/5 * * * *"`
	// IgnoreMints are never imported, e.g. wrapped SOL left behind by swaps.
	IgnoreMints []string `envconfig:"RECONCILE_IGNORE_MINTS" default:"So11111111111111111111111111111111111111112"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
