package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJupiter(baseURL string) *JupiterClient {
	return newJupiterClient(resty.New().SetBaseURL(baseURL))
}

func fakeResponse(code int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: code}}
}

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: errors.New("dial tcp"), want: true},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "bad request", resp: fakeResponse(400), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isRetryableResp(tc.resp, tc.err))
		})
	}
}

func TestIsSlippageError(t *testing.T) {
	assert.True(t, IsSlippageError(errors.New("Program failed: custom program error: 0x1788")))
	assert.True(t, IsSlippageError(errors.New("custom program error: 0x1771")))
	assert.True(t, IsSlippageError(errors.New("Slippage tolerance exceeded")))
	assert.True(t, IsSlippageError(errors.New("map[InstructionError:[3 map[Custom:6024]]]")))
	assert.False(t, IsSlippageError(errors.New("insufficient lamports")))
	assert.False(t, IsSlippageError(nil))
	assert.Equal(t, "SLIPPAGE_EXCEEDED_ON_ROUTE (0x1788)", DescribeProgramError("custom program error: 0x1788"))
}

func TestJupiterGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap/v1/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, SOLMint, q.Get("inputMint"))
		assert.Equal(t, "mintX", q.Get("outputMint"))
		assert.Equal(t, "10000000", q.Get("amount"))
		assert.Equal(t, "300", q.Get("slippageBps"))
		_, _ = w.Write([]byte(`{"inputMint":"` + SOLMint + `","outputMint":"mintX","inAmount":"10000000","outAmount":"5230000","routePlan":[]}`))
	}))
	defer server.Close()

	quote, err := newTestJupiter(server.URL).GetQuote(context.Background(), SOLMint, "mintX", 10_000_000, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), quote.InAmount)
	assert.Equal(t, uint64(5_230_000), quote.OutAmount)
	assert.Contains(t, string(quote.Raw), "routePlan")
}

func TestJupiterGetQuoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Could not find any route"}`))
	}))
	defer server.Close()

	_, err := newTestJupiter(server.URL).GetQuote(context.Background(), SOLMint, "mintX", 1, 300)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find any route")
}

func TestJupiterGetSwapTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap/v1/swap", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"inAmount":"1"}`, string(body["quoteResponse"]))
		assert.JSONEq(t, `"owner"`, string(body["userPublicKey"]))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"swapTransaction":"AQID","lastValidBlockHeight":99}`))
	}))
	defer server.Close()

	tx, err := newTestJupiter(server.URL).GetSwapTransaction(context.Background(), &Quote{Raw: json.RawMessage(`{"inAmount":"1"}`)}, "owner", 0)
	require.NoError(t, err)
	assert.Equal(t, "AQID", tx)
}

func TestJupiterGetCurrentPriceInSOL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/price/v3", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mintX":{"usdPrice":0.5},"` + SOLMint + `":{"usdPrice":200}}`))
	}))
	defer server.Close()

	price, err := newTestJupiter(server.URL).GetCurrentPrice(context.Background(), "mintX")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.0025")), price.String())
}

func TestJupiterPriceWithoutContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write([]byte(`{"mintX":{"usdPrice":1},"` + SOLMint + `":{"usdPrice":200}}`))
	}))
	defer server.Close()

	price, err := newTestJupiter(server.URL).GetCurrentPrice(context.Background(), "mintX")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.005")), price.String())
}

func TestJupiterGetCurrentPriceMissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"` + SOLMint + `":{"usdPrice":200}}`))
	}))
	defer server.Close()

	_, err := newTestJupiter(server.URL).GetCurrentPrice(context.Background(), "mintX")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestJupiterPriceBreakerOpens(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestJupiter(server.URL)
	for i := 0; i < 5; i++ {
		_, err := client.GetCurrentPrice(context.Background(), "mintX")
		require.Error(t, err)
	}
	_, err := client.GetCurrentPrice(context.Background(), "mintX")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, calls)
}

func TestSolanaFMGetDecimals(t *testing.T) {
	// Mislabelled bodies are still decoded as JSON.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		switch r.URL.Path {
		case "/v0/tokens/mintX":
			_, _ = w.Write([]byte(`{"mint":"mintX","decimals":6,"tokenList":{"symbol":"XX","name":"Ex"}}`))
		case "/v0/tokens/mintNoDecimals":
			_, _ = w.Write([]byte(`{"mint":"mintNoDecimals"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := &SolanaFMClient{http: resty.New().SetBaseURL(server.URL)}

	decimals, err := client.GetDecimals(context.Background(), "mintX")
	require.NoError(t, err)
	assert.Equal(t, int32(6), decimals)

	meta, err := client.GetTokenMetadata(context.Background(), "mintX")
	require.NoError(t, err)
	assert.Equal(t, "XX", meta.Symbol)

	_, err = client.GetDecimals(context.Background(), "mintNoDecimals")
	require.ErrorIs(t, err, ErrNoMetadata)

	_, err = client.GetDecimals(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrNoMetadata)
}
