package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// ErrNoMetadata is returned when the metadata API does not know a token.
var ErrNoMetadata = errors.New("token metadata not found")

// TokenMetadata is what the metadata API reports for a mint.
type TokenMetadata struct {
	Decimals *int32
	Symbol   string
	Name     string
}

type solanaFMToken struct {
	Decimals  *int32 `json:"decimals"`
	TokenList struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	} `json:"tokenList"`
}

// SolanaFMClient reads token metadata from solana.fm.
type SolanaFMClient struct {
	http *resty.Client
}

func NewSolanaFMClient(config Config) *SolanaFMClient {
	return &SolanaFMClient{http: newHTTPClient(config.SolanaFMBaseURL, config.HTTPTimeout)}
}

func (c *SolanaFMClient) GetTokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	var parsed solanaFMToken
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("mint", mint).
		SetResult(&parsed).
		ForceContentType("application/json").
		Get("/v0/tokens/{mint}")
	if err != nil {
		return nil, fmt.Errorf("solana.fm metadata: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, ErrNoMetadata
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("solana.fm metadata: HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return &TokenMetadata{
		Decimals: parsed.Decimals,
		Symbol:   parsed.TokenList.Symbol,
		Name:     parsed.TokenList.Name,
	}, nil
}

// GetDecimals returns only the decimals, failing when the API omits them.
func (c *SolanaFMClient) GetDecimals(ctx context.Context, mint string) (int32, error) {
	meta, err := c.GetTokenMetadata(ctx, mint)
	if err != nil {
		return 0, err
	}
	if meta.Decimals == nil {
		return 0, ErrNoMetadata
	}
	return *meta.Decimals, nil
}
