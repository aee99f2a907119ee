package locks

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	RedisURL  string        `envconfig:"REDIS_URL" default:""`
	Prefix    string        `envconfig:"REDIS_LOCK_PREFIX" default:"tokenexecutor:lock:"`
	TTL       time.Duration `envconfig:"REDIS_LOCK_TTL" default:"3m"`
	RetryWait time.Duration `envconfig:"REDIS_LOCK_RETRY" default:"100ms"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
