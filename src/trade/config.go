package trade

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ExecutionExpiry is how long an unconfirmed swap may stay unknown before it is treated as never landed.
	ExecutionExpiry time.Duration `envconfig:"EXECUTION_EXPIRY" default:"3m"`
	ServiceName     string        `envconfig:"SERVICE_NAME" default:"token_executor"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
