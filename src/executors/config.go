package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MonitorConcurrency   int           `envconfig:"MONITOR_CONCURRENCY" default:"8"`
	SuggestionPollPeriod time.Duration `envconfig:"SUGGESTION_POLL_PERIOD" default:"15s"`
	SuggestionBatch      int           `envconfig:"SUGGESTION_BATCH" default:"50"`
	// SuggestionBacklog polls suggestions written before startup too.
	SuggestionBacklog    bool          `envconfig:"SUGGESTION_BACKLOG" default:"false"`
	SettingsReloadPeriod time.Duration `envconfig:"SETTINGS_RELOAD_PERIOD" default:"1m"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
