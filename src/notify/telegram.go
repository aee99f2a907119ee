package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Telegram struct {
	http   *resty.Client
	token  string
	chatID string
}

// NewTelegram returns nil when the bot is not configured.
func NewTelegram(config Config) *Telegram {
	if config.TelegramBotToken == "" || config.TelegramChatID == "" {
		return nil
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(config.TelegramBaseURL, "/")).
		SetTimeout(config.SendTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &Telegram{http: client, token: config.TelegramBotToken, chatID: config.TelegramChatID}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, ev Event) error {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id": t.chatID,
			"text":    Format(ev),
		}).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Format renders an event as a short human readable message.
func Format(ev Event) string {
	p := ev.Position
	switch {
	case ev.Type == EventPositionOpened && p != nil:
		return fmt.Sprintf("BUY %s: %s units at %s SOL (spent %s SOL)", symbolOf(ev), p.BuyAmount, p.BuyPrice, p.BuyQuoteAmount)
	case ev.Type == EventPositionImported && p != nil:
		return fmt.Sprintf("IMPORTED %s: %s units, approx price %s SOL", symbolOf(ev), p.BuyAmount, p.BuyPrice)
	case ev.Type == EventPositionClosed && p != nil && p.SellReason != nil:
		return fmt.Sprintf("SELL %s (%s): %s units at %s SOL, P&L %s SOL (%s%%)",
			symbolOf(ev), *p.SellReason, p.SellAmount.Decimal, p.SellPrice.Decimal,
			p.ProfitLossAmount.Decimal.StringFixed(9), p.ProfitLossPercentage.Decimal.StringFixed(2))
	}
	return fmt.Sprintf("%s %s: %s", strings.ToUpper(string(ev.Type)), symbolOf(ev), ev.Message)
}

func symbolOf(ev Event) string {
	if ev.Position != nil && ev.Position.TokenSymbol != "" {
		return ev.Position.TokenSymbol
	}
	return ev.Token
}
