package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tokenexecutor/src/connectors"
	"tokenexecutor/src/model"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const solDecimals = 9

var (
	// ErrRejected means the venue refused the swap or it failed on chain. Nothing was filled.
	ErrRejected = errors.New("swap rejected")
	// ErrUnconfirmed means the swap may or may not have landed. Resolve it by tx reference.
	ErrUnconfirmed = errors.New("swap outcome unknown")
)

// Quoter builds swap routes and unsigned transactions.
type Quoter interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*connectors.Quote, error)
	GetSwapTransaction(ctx context.Context, quote *connectors.Quote, userPublicKey string, priorityFeeLamports uint64) (string, error)
}

// Chain submits transactions and reads their outcome.
type Chain interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (connectors.SignatureState, error)
	TransactionDelta(ctx context.Context, sig solana.Signature, mint string) (*connectors.BalanceDelta, error)
}

// Order is a single market swap between SOL and a token.
// Amount is SOL to spend for buys and token units to sell for sells.
type Order struct {
	Side          string
	TokenAddress  string
	TokenDecimals int32
	Amount        decimal.Decimal
}

// Prepared is a signed transaction whose reference is known before it is broadcast.
type Prepared struct {
	TxRef string
	Order Order
	tx    *solana.Transaction
}

// Fill is what actually happened on chain.
type Fill struct {
	TxRef       string
	Quantity    decimal.Decimal
	QuoteAmount decimal.Decimal
	Price       decimal.Decimal
	// TokenDecimals is the on-chain mint precision when the transaction reported it.
	TokenDecimals *int32
}

type Executor struct {
	log     *logrus.Entry
	quoter  Quoter
	chain   Chain
	wallet  solana.PrivateKey
	config  Config
	now     func() time.Time
	mu      sync.RWMutex
	highVol map[string]struct{}
}

func NewExecutor(log *logrus.Entry, quoter Quoter, chain Chain, wallet solana.PrivateKey, config Config) *Executor {
	e := &Executor{
		log:     log.WithField("component", "swap"),
		quoter:  quoter,
		chain:   chain,
		wallet:  wallet,
		config:  config,
		now:     time.Now,
		highVol: map[string]struct{}{},
	}
	for _, token := range config.HighVolatilityTokens {
		if token = strings.TrimSpace(token); token != "" {
			e.highVol[token] = struct{}{}
		}
	}
	return e
}

func (e *Executor) slippageFor(token string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.highVol[token]; ok {
		return e.config.HighVolatilitySlippageBps
	}
	return e.config.SlippageBps
}

func (e *Executor) markHighVolatility(token string) {
	e.mu.Lock()
	_, existed := e.highVol[token]
	e.highVol[token] = struct{}{}
	e.mu.Unlock()
	if !existed {
		e.log.WithField("token", token).Warn("Slippage failure, token moved to high volatility slippage")
	}
}

// IsHighVolatility reports whether the token uses the wider slippage bound.
func (e *Executor) IsHighVolatility(token string) bool {
	return e.slippageFor(token) == e.config.HighVolatilitySlippageBps && e.config.HighVolatilitySlippageBps != e.config.SlippageBps
}

func toRaw(amount decimal.Decimal, decimals int32) (uint64, error) {
	raw := amount.Shift(decimals).Floor()
	if !raw.IsPositive() {
		return 0, fmt.Errorf("%w: amount %s rounds to zero at %d decimals", ErrRejected, amount, decimals)
	}
	if !raw.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: amount %s overflows", ErrRejected, amount)
	}
	return raw.BigInt().Uint64(), nil
}

// Prepare quotes, builds and signs the swap. Errors here are always ErrRejected:
// nothing has been broadcast.
func (e *Executor) Prepare(ctx context.Context, order Order) (*Prepared, error) {
	inputMint, outputMint := connectors.SOLMint, order.TokenAddress
	inputDecimals := int32(solDecimals)
	if order.Side == model.ExecutionSideSell {
		inputMint, outputMint = order.TokenAddress, connectors.SOLMint
		inputDecimals = order.TokenDecimals
	}

	amount, err := toRaw(order.Amount, inputDecimals)
	if err != nil {
		return nil, err
	}

	slippage := e.slippageFor(order.TokenAddress)
	quote, err := e.quoter.GetQuote(ctx, inputMint, outputMint, amount, slippage)
	if err != nil {
		return nil, fmt.Errorf("%w: quote: %v", ErrRejected, err)
	}

	encoded, err := e.quoter.GetSwapTransaction(ctx, quote, e.wallet.PublicKey().String(), e.config.PriorityFeeLamports)
	if err != nil {
		return nil, fmt.Errorf("%w: build swap: %v", ErrRejected, err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode swap transaction: %v", ErrRejected, err)
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse swap transaction: %v", ErrRejected, err)
	}

	// Jupiter returns zeroed placeholder signatures.
	tx.Signatures = nil
	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(e.wallet.PublicKey()) {
			return &e.wallet
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: sign: %v", ErrRejected, err)
	}
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("%w: signed transaction has no signature", ErrRejected)
	}

	e.log.WithFields(logrus.Fields{
		"side":         order.Side,
		"token":        order.TokenAddress,
		"amount_raw":   amount,
		"quote_out":    quote.OutAmount,
		"slippage_bps": slippage,
	}).Info("Swap prepared")

	return &Prepared{TxRef: tx.Signatures[0].String(), Order: order, tx: tx}, nil
}

// Send broadcasts a prepared swap. A preflight failure is ErrRejected, anything
// else leaves the outcome unknown.
func (e *Executor) Send(ctx context.Context, p *Prepared) error {
	if _, err := e.chain.SendTransaction(ctx, p.tx); err != nil {
		msg := err.Error()
		if strings.Contains(strings.ToLower(msg), "simulation failed") {
			if connectors.IsSlippageError(err) {
				e.markHighVolatility(p.Order.TokenAddress)
			}
			return fmt.Errorf("%w: %s", ErrRejected, connectors.DescribeProgramError(msg))
		}
		return fmt.Errorf("%w: send %s: %v", ErrUnconfirmed, p.TxRef, err)
	}
	return nil
}

// AwaitFill polls until the swap is final or the confirm timeout elapses.
func (e *Executor) AwaitFill(ctx context.Context, order Order, txRef string) (*Fill, error) {
	deadline := e.now().Add(e.config.ConfirmTimeout)
	for {
		fill, err := e.LookupFill(ctx, order, txRef)
		if err == nil || !errors.Is(err, ErrUnconfirmed) {
			return fill, err
		}
		if !e.now().Before(deadline) {
			e.log.WithFields(logrus.Fields{"tx_ref": txRef, "token": order.TokenAddress}).Warn("Swap not confirmed before timeout")
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnconfirmed, ctx.Err())
		case <-time.After(e.config.PollInterval):
		}
	}
}

// LookupFill checks a transaction once. Unknown status is ErrUnconfirmed.
func (e *Executor) LookupFill(ctx context.Context, order Order, txRef string) (*Fill, error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid tx reference %q", ErrRejected, txRef)
	}

	state, err := e.chain.SignatureStatus(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: status %s: %v", ErrUnconfirmed, txRef, err)
	}

	switch state {
	case connectors.SignatureUnknown:
		return nil, fmt.Errorf("%w: %s", ErrUnconfirmed, txRef)
	case connectors.SignatureFailed:
		reason := "transaction failed on chain"
		if delta, derr := e.chain.TransactionDelta(ctx, sig, order.TokenAddress); derr == nil && delta.Err != nil {
			reason = fmt.Sprintf("%v", delta.Err)
		}
		if connectors.IsSlippageError(errors.New(reason)) {
			e.markHighVolatility(order.TokenAddress)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, txRef, reason)
	}

	delta, err := e.chain.TransactionDelta(ctx, sig, order.TokenAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnconfirmed, txRef, err)
	}
	return buildFill(order, txRef, delta)
}

func buildFill(order Order, txRef string, delta *connectors.BalanceDelta) (*Fill, error) {
	fill := &Fill{TxRef: txRef, TokenDecimals: delta.TokenDecimals}
	tokenDecimals := order.TokenDecimals
	if delta.TokenDecimals != nil {
		tokenDecimals = *delta.TokenDecimals
	}
	if order.Side == model.ExecutionSideSell {
		fill.Quantity = delta.TokenRaw.Neg().Shift(-tokenDecimals)
		fill.QuoteAmount = delta.Lamports.Shift(-solDecimals)
	} else {
		fill.Quantity = delta.TokenRaw.Shift(-tokenDecimals)
		// ExactIn spends exactly the requested input; the lamport delta also carries account rent.
		fill.QuoteAmount = order.Amount
	}
	if !fill.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s confirmed but moved no tokens", ErrRejected, txRef)
	}
	if fill.QuoteAmount.IsNegative() {
		fill.QuoteAmount = decimal.Zero
	}
	fill.Price = fill.QuoteAmount.DivRound(fill.Quantity, 18)
	return fill, nil
}
