package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"tokenexecutor/src/connectors"
	"tokenexecutor/src/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenMint = "Token1111111111111111111111111111111111111"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type quoteCall struct {
	in, out  string
	amount   uint64
	slippage int
}

type fakeQuoter struct {
	payer    solana.PublicKey
	quoteErr error
	calls    []quoteCall
}

func (f *fakeQuoter) GetQuote(_ context.Context, in, out string, amount uint64, slippageBps int) (*connectors.Quote, error) {
	f.calls = append(f.calls, quoteCall{in, out, amount, slippageBps})
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &connectors.Quote{InputMint: in, OutputMint: out, InAmount: amount, OutAmount: amount * 2, SlippageBps: slippageBps}, nil
}

func (f *fakeQuoter) GetSwapTransaction(_ context.Context, _ *connectors.Quote, _ string, _ uint64) (string, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, f.payer, solana.NewWallet().PublicKey()).Build()},
		solana.Hash{},
		solana.TransactionPayer(f.payer),
	)
	if err != nil {
		return "", err
	}
	tx.Signatures = make([]solana.Signature, 1)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

type fakeChain struct {
	sent    []*solana.Transaction
	sendErr error
	states  map[string]connectors.SignatureState
	deltas  map[string]*connectors.BalanceDelta
}

func newFakeChain() *fakeChain {
	return &fakeChain{states: map[string]connectors.SignatureState{}, deltas: map[string]*connectors.BalanceDelta{}}
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeChain) SignatureStatus(_ context.Context, sig solana.Signature) (connectors.SignatureState, error) {
	return f.states[sig.String()], nil
}

func (f *fakeChain) TransactionDelta(_ context.Context, sig solana.Signature, _ string) (*connectors.BalanceDelta, error) {
	delta, ok := f.deltas[sig.String()]
	if !ok {
		return nil, connectors.ErrTxNotFound
	}
	return delta, nil
}

func testConfig() Config {
	return Config{SlippageBps: 300, HighVolatilitySlippageBps: 1000, PriorityFeeLamports: 5000, ConfirmTimeout: 0, PollInterval: time.Millisecond}
}

func newTestExecutor(t *testing.T) (*Executor, *fakeQuoter, *fakeChain) {
	t.Helper()
	wallet := solana.NewWallet().PrivateKey
	logger, _ := logrustest.NewNullLogger()
	quoter := &fakeQuoter{payer: wallet.PublicKey()}
	chain := newFakeChain()
	return NewExecutor(logrus.NewEntry(logger), quoter, chain, wallet, testConfig()), quoter, chain
}

func someSignature(b byte) string {
	var sig solana.Signature
	sig[0] = b
	sig[63] = b
	return sig.String()
}

func TestPrepareBuySignsBeforeSend(t *testing.T) {
	exec, quoter, chain := newTestExecutor(t)

	p, err := exec.Prepare(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")})
	require.NoError(t, err)

	require.Len(t, quoter.calls, 1)
	assert.Equal(t, connectors.SOLMint, quoter.calls[0].in)
	assert.Equal(t, tokenMint, quoter.calls[0].out)
	assert.Equal(t, uint64(10_000_000), quoter.calls[0].amount)
	assert.Equal(t, 300, quoter.calls[0].slippage)

	require.NotEmpty(t, p.TxRef)
	assert.Equal(t, p.tx.Signatures[0].String(), p.TxRef)
	require.NoError(t, p.tx.VerifySignatures())
	assert.Empty(t, chain.sent)

	require.NoError(t, exec.Send(context.Background(), p))
	require.Len(t, chain.sent, 1)
	assert.Equal(t, p.TxRef, chain.sent[0].Signatures[0].String())
}

func TestPrepareSellUsesTokenDecimals(t *testing.T) {
	exec, quoter, _ := newTestExecutor(t)

	_, err := exec.Prepare(context.Background(), Order{Side: model.ExecutionSideSell, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("1.5")})
	require.NoError(t, err)
	assert.Equal(t, tokenMint, quoter.calls[0].in)
	assert.Equal(t, connectors.SOLMint, quoter.calls[0].out)
	assert.Equal(t, uint64(1_500_000), quoter.calls[0].amount)
}

func TestPrepareRejections(t *testing.T) {
	exec, quoter, _ := newTestExecutor(t)

	_, err := exec.Prepare(context.Background(), Order{Side: model.ExecutionSideSell, TokenAddress: tokenMint, TokenDecimals: 2, Amount: d("0.001")})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, quoter.calls)

	quoter.quoteErr = errors.New("no route")
	_, err = exec.Prepare(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSendClassifiesErrors(t *testing.T) {
	exec, _, chain := newTestExecutor(t)
	order := Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")}

	p, err := exec.Prepare(context.Background(), order)
	require.NoError(t, err)

	chain.sendErr = errors.New("Transaction simulation failed: custom program error: 0x1788")
	err = exec.Send(context.Background(), p)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "SLIPPAGE_EXCEEDED_ON_ROUTE")
	assert.True(t, exec.IsHighVolatility(tokenMint))

	chain.sendErr = context.DeadlineExceeded
	err = exec.Send(context.Background(), p)
	assert.ErrorIs(t, err, ErrUnconfirmed)
}

func TestAwaitFillBuy(t *testing.T) {
	exec, _, chain := newTestExecutor(t)
	ref := someSignature(1)
	chain.states[ref] = connectors.SignatureConfirmed
	chain.deltas[ref] = &connectors.BalanceDelta{TokenRaw: d("2000000"), Lamports: d("-12039280")}

	fill, err := exec.AwaitFill(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")}, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, fill.TxRef)
	assert.True(t, fill.Quantity.Equal(d("2")), fill.Quantity.String())
	assert.True(t, fill.QuoteAmount.Equal(d("0.01")))
	assert.True(t, fill.Price.Equal(d("0.005")), fill.Price.String())
}

func TestAwaitFillPrefersOnChainDecimals(t *testing.T) {
	exec, _, chain := newTestExecutor(t)
	ref := someSignature(9)
	six := int32(6)
	chain.states[ref] = connectors.SignatureConfirmed
	chain.deltas[ref] = &connectors.BalanceDelta{TokenRaw: d("2000000"), Lamports: d("-12039280"), TokenDecimals: &six}

	// Resolver fell back to 9 decimals for a 6 decimal mint.
	fill, err := exec.AwaitFill(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 9, Amount: d("0.01")}, ref)
	require.NoError(t, err)
	assert.True(t, fill.Quantity.Equal(d("2")), fill.Quantity.String())
	assert.True(t, fill.Price.Equal(d("0.005")), fill.Price.String())
	require.NotNil(t, fill.TokenDecimals)
	assert.Equal(t, int32(6), *fill.TokenDecimals)
}

func TestLookupFillSell(t *testing.T) {
	exec, _, chain := newTestExecutor(t)
	ref := someSignature(2)
	chain.states[ref] = connectors.SignatureConfirmed
	chain.deltas[ref] = &connectors.BalanceDelta{TokenRaw: d("-2000000"), Lamports: d("12000000")}

	fill, err := exec.LookupFill(context.Background(), Order{Side: model.ExecutionSideSell, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("2")}, ref)
	require.NoError(t, err)
	assert.True(t, fill.Quantity.Equal(d("2")))
	assert.True(t, fill.QuoteAmount.Equal(d("0.012")))
	assert.True(t, fill.Price.Equal(d("0.006")))
}

func TestAwaitFillUnknownTimesOut(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	_, err := exec.AwaitFill(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")}, someSignature(3))
	assert.ErrorIs(t, err, ErrUnconfirmed)
}

func TestFailedSlippageWidensNextQuote(t *testing.T) {
	exec, quoter, chain := newTestExecutor(t)
	ref := someSignature(4)
	chain.states[ref] = connectors.SignatureFailed
	chain.deltas[ref] = &connectors.BalanceDelta{Err: map[string]interface{}{"InstructionError": []interface{}{3, map[string]interface{}{"Custom": 6024}}}}
	order := Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")}

	_, err := exec.LookupFill(context.Background(), order, ref)
	assert.ErrorIs(t, err, ErrRejected)

	_, err = exec.Prepare(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, 1000, quoter.calls[0].slippage)
}

func TestConfirmedWithoutTokenMovementIsRejected(t *testing.T) {
	exec, _, chain := newTestExecutor(t)
	ref := someSignature(5)
	chain.states[ref] = connectors.SignatureConfirmed
	chain.deltas[ref] = &connectors.BalanceDelta{TokenRaw: decimal.Zero, Lamports: d("-5000")}

	_, err := exec.LookupFill(context.Background(), Order{Side: model.ExecutionSideBuy, TokenAddress: tokenMint, TokenDecimals: 6, Amount: d("0.01")}, ref)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestConfiguredHighVolatilityTokens(t *testing.T) {
	cfg := testConfig()
	cfg.HighVolatilityTokens = []string{" " + tokenMint + " "}
	logger, _ := logrustest.NewNullLogger()
	exec := NewExecutor(logrus.NewEntry(logger), &fakeQuoter{}, newFakeChain(), solana.NewWallet().PrivateKey, cfg)

	assert.True(t, exec.IsHighVolatility(tokenMint))
	assert.False(t, exec.IsHighVolatility("other"))
}
