package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// SOLMint is wrapped SOL, the quote currency of every position.
const SOLMint = "So11111111111111111111111111111111111111112"

// JupiterClient talks to the Jupiter swap and price APIs.
type JupiterClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// Quote is a Jupiter route quote. Raw is sent back unchanged when building the swap.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int
	Raw         json.RawMessage
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	Error                string `json:"error"`
}

type priceEntry struct {
	USDPrice float64 `json:"usdPrice"`
}

func NewJupiterClient(config Config) *JupiterClient {
	httpClient := newHTTPClient(config.JupiterBaseURL, config.HTTPTimeout)
	if config.JupiterAPIKey != "" {
		httpClient.SetHeader("x-api-key", config.JupiterAPIKey)
	}
	return newJupiterClient(httpClient)
}

func newJupiterClient(httpClient *resty.Client) *JupiterClient {
	settings := gobreaker.Settings{
		Name:        "JupiterPriceAPI",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing price is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoPrice)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &JupiterClient{
		http:    httpClient,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GetQuote asks for an ExactIn route from inputMint to outputMint for amount raw units.
func (c *JupiterClient) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*Quote, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":   inputMint,
			"outputMint":  outputMint,
			"amount":      strconv.FormatUint(amount, 10),
			"slippageBps": strconv.Itoa(slippageBps),
			"swapMode":    "ExactIn",
		}).
		Get("/swap/v1/quote")
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}

	raw := resp.Body()
	var parsed quoteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("jupiter quote: HTTP %d: %s", resp.StatusCode(), string(raw))
	}
	if resp.StatusCode() != 200 || parsed.Error != "" {
		return nil, fmt.Errorf("jupiter quote: HTTP %d: %s", resp.StatusCode(), parsed.Error)
	}

	in, err := strconv.ParseUint(parsed.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: inAmount %q: %w", parsed.InAmount, err)
	}
	out, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: outAmount %q: %w", parsed.OutAmount, err)
	}

	return &Quote{
		InputMint:   parsed.InputMint,
		OutputMint:  parsed.OutputMint,
		InAmount:    in,
		OutAmount:   out,
		SlippageBps: slippageBps,
		Raw:         json.RawMessage(raw),
	}, nil
}

// GetSwapTransaction returns the base64 unsigned transaction for a quote.
func (c *JupiterClient) GetSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string, priorityFeeLamports uint64) (string, error) {
	body := map[string]interface{}{
		"quoteResponse":           quote.Raw,
		"userPublicKey":           userPublicKey,
		"wrapAndUnwrapSol":        true,
		"dynamicComputeUnitLimit": true,
	}
	if priorityFeeLamports > 0 {
		body["prioritizationFeeLamports"] = priorityFeeLamports
	}

	var parsed swapResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		SetError(&parsed).
		ForceContentType("application/json").
		Post("/swap/v1/swap")
	if err != nil {
		return "", fmt.Errorf("jupiter swap: %w", err)
	}
	if resp.StatusCode() != 200 || parsed.Error != "" {
		return "", fmt.Errorf("jupiter swap: HTTP %d: %s", resp.StatusCode(), parsed.Error)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter swap: no swapTransaction in response")
	}
	return parsed.SwapTransaction, nil
}

// GetCurrentPrice returns the token price in SOL. The price API quotes in USD, so the
// token and SOL are requested together and divided.
func (c *JupiterClient) GetCurrentPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchPriceInSOL(ctx, tokenAddress)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out.(decimal.Decimal), nil
}

func (c *JupiterClient) fetchPriceInSOL(ctx context.Context, tokenAddress string) (decimal.Decimal, error) {
	prices := map[string]*priceEntry{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", strings.Join([]string{tokenAddress, SOLMint}, ",")).
		SetResult(&prices).
		ForceContentType("application/json").
		Get("/price/v3")
	if err != nil {
		return decimal.Zero, fmt.Errorf("jupiter price: %w", err)
	}
	if resp.StatusCode() != 200 {
		return decimal.Zero, fmt.Errorf("jupiter price: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	token, sol := prices[tokenAddress], prices[SOLMint]
	if token == nil || token.USDPrice <= 0 {
		return decimal.Zero, ErrNoPrice
	}
	if tokenAddress == SOLMint {
		return decimal.NewFromInt(1), nil
	}
	if sol == nil || sol.USDPrice <= 0 {
		return decimal.Zero, fmt.Errorf("jupiter price: no SOL reference price")
	}
	return decimal.NewFromFloat(token.USDPrice).DivRound(decimal.NewFromFloat(sol.USDPrice), 18), nil
}
