package notify

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramBaseURL  string        `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	TelegramBotToken string        `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string        `envconfig:"TELEGRAM_CHAT_ID" default:""`
	BufferSize       int           `envconfig:"NOTIFY_BUFFER" default:"256"`
	SendTimeout      time.Duration `envconfig:"NOTIFY_SEND_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
