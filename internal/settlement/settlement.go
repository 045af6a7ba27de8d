// Package settlement moves escrowed USDC when bets reach a terminal
// state.
//
// The Facilitator is the only component that touches funds. Every call
// carries a reference string unique to one (bet, transition) pair;
// repeating a reference returns the recorded receipt instead of moving
// funds twice, so crashed transitions can be retried safely.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/koredeycode/moltbet/internal/circuitbreaker"
	"github.com/koredeycode/moltbet/internal/idgen"
	"github.com/koredeycode/moltbet/internal/usdc"
	"github.com/koredeycode/moltbet/internal/wallet"
)

var (
	ErrInvalidAmount  = errors.New("settlement: invalid amount")
	ErrInvalidAddress = errors.New("settlement: invalid recipient address")
	ErrFailed         = errors.New("settlement: transfer failed")
	ErrUnavailable    = errors.New("settlement: escrow wallet unavailable")
)

// breakerKey groups all escrow transfers under one circuit. A string of
// transfer failures usually means the RPC node or the wallet is down,
// not a problem with any single bet.
const breakerKey = "escrow"

// Receipt records a completed settlement
type Receipt struct {
	Reference string    `json:"reference"`
	TxRef     string    `json:"tx_ref"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Kind      string    `json:"kind"` // "payout" or "refund"
	SettledAt time.Time `json:"settled_at"`
}

// Facilitator executes settlements against the escrow account
type Facilitator interface {
	// Payout sends winnings to an agent's payout address
	Payout(ctx context.Context, to, amount, reference string) (*Receipt, error)
	// Refund returns a single stake to its owner
	Refund(ctx context.Context, to, amount, reference string) (*Receipt, error)
}

// -----------------------------------------------------------------------------
// Wallet-backed facilitator
// -----------------------------------------------------------------------------

// WalletFacilitator settles over an on-chain USDC wallet
type WalletFacilitator struct {
	transactor wallet.Transactor
	breaker    *circuitbreaker.Breaker

	mu       sync.Mutex
	receipts map[string]*Receipt // by reference
}

// NewWalletFacilitator creates a facilitator backed by the escrow wallet.
// Transfers share a circuit breaker: after repeated on-chain failures the
// facilitator fails fast instead of hammering a dead RPC node.
func NewWalletFacilitator(t wallet.Transactor) *WalletFacilitator {
	return &WalletFacilitator{
		transactor: t,
		breaker:    circuitbreaker.New(5, 30*time.Second),
		receipts:   make(map[string]*Receipt),
	}
}

var _ Facilitator = (*WalletFacilitator)(nil)

func (f *WalletFacilitator) Payout(ctx context.Context, to, amount, reference string) (*Receipt, error) {
	return f.settle(ctx, to, amount, reference, "payout")
}

func (f *WalletFacilitator) Refund(ctx context.Context, to, amount, reference string) (*Receipt, error) {
	return f.settle(ctx, to, amount, reference, "refund")
}

func (f *WalletFacilitator) settle(ctx context.Context, to, amount, reference, kind string) (*Receipt, error) {
	// Replay of a completed settlement returns the recorded receipt
	f.mu.Lock()
	if r, ok := f.receipts[reference]; ok {
		f.mu.Unlock()
		return r, nil
	}
	f.mu.Unlock()

	raw, ok := usdc.Parse(amount)
	if !ok || raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	if !f.breaker.Allow(breakerKey) {
		return nil, ErrUnavailable
	}

	result, err := f.transactor.Transfer(ctx, common.HexToAddress(to), raw)
	if err != nil {
		f.breaker.RecordFailure(breakerKey)
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}

	if _, err := f.transactor.WaitForConfirmation(ctx, result.TxHash, wallet.DefaultConfirmationTimeout); err != nil {
		f.breaker.RecordFailure(breakerKey)
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	f.breaker.RecordSuccess(breakerKey)

	receipt := &Receipt{
		Reference: reference,
		TxRef:     result.TxHash,
		To:        to,
		Amount:    usdc.Format(raw),
		Kind:      kind,
		SettledAt: time.Now(),
	}

	f.mu.Lock()
	f.receipts[reference] = receipt
	f.mu.Unlock()

	return receipt, nil
}

// -----------------------------------------------------------------------------
// Demo facilitator
// -----------------------------------------------------------------------------

// DemoFacilitator settles instantly without touching a chain. Used in
// development and tests.
type DemoFacilitator struct {
	mu       sync.Mutex
	receipts map[string]*Receipt
}

// NewDemoFacilitator creates an in-memory facilitator
func NewDemoFacilitator() *DemoFacilitator {
	return &DemoFacilitator{receipts: make(map[string]*Receipt)}
}

var _ Facilitator = (*DemoFacilitator)(nil)

func (f *DemoFacilitator) Payout(ctx context.Context, to, amount, reference string) (*Receipt, error) {
	return f.settle(to, amount, reference, "payout")
}

func (f *DemoFacilitator) Refund(ctx context.Context, to, amount, reference string) (*Receipt, error) {
	return f.settle(to, amount, reference, "refund")
}

func (f *DemoFacilitator) settle(to, amount, reference, kind string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.receipts[reference]; ok {
		return r, nil
	}

	raw, ok := usdc.Parse(amount)
	if !ok || raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	receipt := &Receipt{
		Reference: reference,
		TxRef:     "demo_" + idgen.Hex(16),
		To:        to,
		Amount:    usdc.Format(raw),
		Kind:      kind,
		SettledAt: time.Now(),
	}
	f.receipts[reference] = receipt
	return receipt, nil
}
