package connectors

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrTxNotFound is returned when the node has no record of a transaction.
var ErrTxNotFound = errors.New("transaction not found")

// Holding is the total raw balance of one mint across the owner's token accounts.
type Holding struct {
	Mint string
	Raw  uint64
}

type SignatureState int

const (
	SignatureUnknown SignatureState = iota
	SignatureConfirmed
	SignatureFailed
)

// BalanceDelta is how a transaction changed the owner's balances.
type BalanceDelta struct {
	// TokenRaw is signed: positive when the owner received tokens.
	TokenRaw decimal.Decimal
	// Lamports is the owner's SOL change with the network fee added back.
	Lamports decimal.Decimal
	Fee      uint64
	Err      interface{}
	// TokenDecimals is the mint precision reported by the transaction meta, nil when
	// no balance entry for the mint was present.
	TokenDecimals *int32
}

// SolanaClient wraps the RPC node with a rate limiter and retries for the calls
// the executor needs. It is bound to one wallet owner.
type SolanaClient struct {
	rpc        *rpc.Client
	owner      solana.PublicKey
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

func NewSolanaClient(config Config, owner solana.PublicKey) *SolanaClient {
	return NewSolanaClientWithRPC(rpc.New(config.SolanaRPCURL), owner, config.RPCRatePerSecond, config.RPCMaxRetries)
}

func NewSolanaClientWithRPC(client *rpc.Client, owner solana.PublicKey, ratePerSecond float64, maxRetries int) *SolanaClient {
	if ratePerSecond <= 0 {
		ratePerSecond = 8
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &SolanaClient{
		rpc:        client,
		owner:      owner,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
	}
}

func (c *SolanaClient) Owner() solana.PublicKey {
	return c.owner
}

func isRetryableRPCError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"429", "too many requests", "timeout", "connection reset", "eof", "502", "503", "504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// call runs fn under the rate limiter, retrying transient failures with exponential backoff.
func (c *SolanaClient) call(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			logger.WithFields(logger.Fields{"op": op, "attempt": attempt, "wait": wait}).WithError(err).Warn("Retrying RPC call")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if werr := c.limiter.Wait(ctx); werr != nil {
			return fmt.Errorf("rpc %s: rate limiter: %w", op, werr)
		}
		err = fn()
		if err == nil || !isRetryableRPCError(err) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("rpc %s: %w", op, err)
	}
	return nil
}

// tokenAccountAmount reads mint and amount from an SPL token account layout.
func tokenAccountAmount(data []byte) (solana.PublicKey, uint64, bool) {
	if len(data) < 72 {
		return solana.PublicKey{}, 0, false
	}
	return solana.PublicKeyFromBytes(data[0:32]), binary.LittleEndian.Uint64(data[64:72]), true
}

// HeldRaw returns the owner's raw balance of a mint. No token account means zero.
func (c *SolanaClient) HeldRaw(ctx context.Context, mint string) (uint64, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	var out *rpc.GetTokenAccountsResult
	err = c.call(ctx, "getTokenAccountsByOwner", func() error {
		var e error
		out, e = c.rpc.GetTokenAccountsByOwner(ctx, c.owner,
			&rpc.GetTokenAccountsConfig{Mint: &mintKey},
			&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingBase64},
		)
		return e
	})
	if err != nil {
		return 0, err
	}

	var total uint64
	for _, acc := range out.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		if _, amount, ok := tokenAccountAmount(acc.Account.Data.GetBinary()); ok {
			total += amount
		}
	}
	return total, nil
}

// ListHoldings returns every mint with a non-zero balance held by the owner.
func (c *SolanaClient) ListHoldings(ctx context.Context) ([]Holding, error) {
	programID := solana.TokenProgramID
	var out *rpc.GetTokenAccountsResult
	err := c.call(ctx, "getTokenAccountsByOwner", func() error {
		var e error
		out, e = c.rpc.GetTokenAccountsByOwner(ctx, c.owner,
			&rpc.GetTokenAccountsConfig{ProgramId: &programID},
			&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingBase64},
		)
		return e
	})
	if err != nil {
		return nil, err
	}

	totals := map[string]uint64{}
	var order []string
	for _, acc := range out.Value {
		if acc == nil || acc.Account.Data == nil {
			continue
		}
		mint, amount, ok := tokenAccountAmount(acc.Account.Data.GetBinary())
		if !ok || amount == 0 {
			continue
		}
		key := mint.String()
		if _, seen := totals[key]; !seen {
			order = append(order, key)
		}
		totals[key] += amount
	}

	holdings := make([]Holding, 0, len(order))
	for _, mint := range order {
		holdings = append(holdings, Holding{Mint: mint, Raw: totals[mint]})
	}
	return holdings, nil
}

// MintDecimals reads the decimals field of a mint on chain.
func (c *SolanaClient) MintDecimals(ctx context.Context, mint string) (int32, error) {
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	var out *rpc.GetTokenSupplyResult
	err = c.call(ctx, "getTokenSupply", func() error {
		var e error
		out, e = c.rpc.GetTokenSupply(ctx, mintKey, rpc.CommitmentConfirmed)
		return e
	})
	if err != nil {
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("rpc getTokenSupply: empty result for %s", mint)
	}
	return int32(out.Value.Decimals), nil
}

// SendTransaction broadcasts a signed transaction. Rebroadcasting the same signed
// transaction cannot execute it twice, so transient failures are retried.
func (c *SolanaClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "sendTransaction", func() error {
		var e error
		sig, e = c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		return e
	})
	return sig, err
}

// SignatureStatus reports whether a transaction landed, failed or is not known yet.
func (c *SolanaClient) SignatureStatus(ctx context.Context, sig solana.Signature) (SignatureState, error) {
	var out *rpc.GetSignatureStatusesResult
	err := c.call(ctx, "getSignatureStatuses", func() error {
		var e error
		out, e = c.rpc.GetSignatureStatuses(ctx, true, sig)
		return e
	})
	if err != nil {
		return SignatureUnknown, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return SignatureUnknown, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return SignatureFailed, nil
	}
	if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
		status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
		return SignatureConfirmed, nil
	}
	return SignatureUnknown, nil
}

// TransactionDelta reads a landed transaction and computes how it moved the owner's
// balance of mint and of SOL.
func (c *SolanaClient) TransactionDelta(ctx context.Context, sig solana.Signature, mint string) (*BalanceDelta, error) {
	maxVersion := uint64(0)
	var out *rpc.GetTransactionResult
	err := c.call(ctx, "getTransaction", func() error {
		var e error
		out, e = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return e
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	if out == nil || out.Meta == nil {
		return nil, ErrTxNotFound
	}

	return balanceDelta(out.Meta, c.owner, mint), nil
}

func lamports(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

func balanceDelta(meta *rpc.TransactionMeta, owner solana.PublicKey, mint string) *BalanceDelta {
	var tokenDecimals *int32
	sum := func(balances []rpc.TokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, b := range balances {
			if b.Mint.String() != mint || b.Owner == nil || !b.Owner.Equals(owner) || b.UiTokenAmount == nil {
				continue
			}
			if tokenDecimals == nil {
				d := int32(b.UiTokenAmount.Decimals)
				tokenDecimals = &d
			}
			if amount, err := decimal.NewFromString(b.UiTokenAmount.Amount); err == nil {
				total = total.Add(amount)
			}
		}
		return total
	}

	delta := &BalanceDelta{
		TokenRaw: sum(meta.PostTokenBalances).Sub(sum(meta.PreTokenBalances)),
		Lamports: decimal.Zero,
		Fee:      meta.Fee,
		Err:      meta.Err,
	}
	delta.TokenDecimals = tokenDecimals
	// The fee payer, the owner, is always account index 0.
	if len(meta.PreBalances) > 0 && len(meta.PostBalances) > 0 {
		pre := lamports(meta.PreBalances[0])
		post := lamports(meta.PostBalances[0])
		delta.Lamports = post.Sub(pre).Add(lamports(meta.Fee))
	}
	return delta
}
