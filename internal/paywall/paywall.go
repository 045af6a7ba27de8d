// Package paywall implements HTTP 402 Payment Required for bet stakes.
//
// Unlike a route-level paywall, the price of a bet action is the stake
// inside the request body, so handlers call Gate.Require after binding
// the request. Without a proof header the gate writes a 402 challenge
// carrying a one-time nonce; with one it verifies the transfer covers
// the exact stake before the handler proceeds.
package paywall

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// nonceStore tracks issued nonces to prevent replay attacks.
type nonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time // nonce → issued-at
}

func newNonceStore() *nonceStore {
	return &nonceStore{nonces: make(map[string]time.Time)}
}

func (ns *nonceStore) issue(nonce string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.nonces[nonce] = time.Now()
	// Purge expired nonces (older than 10 minutes)
	cutoff := time.Now().Add(-10 * time.Minute)
	for k, t := range ns.nonces {
		if t.Before(cutoff) {
			delete(ns.nonces, k)
		}
	}
}

func (ns *nonceStore) consume(nonce string, maxAge time.Duration) bool {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	issued, ok := ns.nonces[nonce]
	if !ok {
		return false
	}
	delete(ns.nonces, nonce) // One-time use
	return time.Since(issued) <= maxAge
}

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// PaymentRequirement describes what payment is needed
// This is returned in the 402 response body
type PaymentRequirement struct {
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Chain       string `json:"chain"`
	ChainID     int64  `json:"chainId"`
	Recipient   string `json:"recipient"`
	Contract    string `json:"contract"`
	Description string `json:"description,omitempty"`
	ValidFor    int64  `json:"validFor,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
}

// PaymentProof is sent by the client to prove payment was made
type PaymentProof struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Verifier checks that a payment landed in the escrow account
type Verifier interface {
	Address() string
	VerifyPayment(ctx context.Context, from string, amount string, txHash string) (bool, error)
}

// DemoVerifier accepts any well-formed proof. Used when no chain is
// wired up in development.
type DemoVerifier struct{ Addr string }

func (d DemoVerifier) Address() string { return d.Addr }

func (d DemoVerifier) VerifyPayment(ctx context.Context, from, amount, txHash string) (bool, error) {
	return true, nil
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Config for the payment gate
type Config struct {
	Verifier Verifier

	Chain    string
	ChainID  int64
	Contract string

	// ValidFor bounds nonce and proof age
	ValidFor time.Duration

	// Hooks
	OnPaymentReceived func(proof *PaymentProof, route string)
	OnPaymentFailed   func(proof *PaymentProof, err error)
}

// Gate verifies stake payments before bet actions
type Gate struct {
	cfg    Config
	nonces *nonceStore
}

// NewGate creates a payment gate
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, nonces: newNonceStore()}
}

// Require checks the request for a valid payment proof covering amount.
// Returns the proof and true if payment is verified. Otherwise it
// writes the 402 challenge (or error) to the response and returns false;
// the handler must stop.
func (g *Gate) Require(c *gin.Context, amount, description string) (*PaymentProof, bool) {
	proofHeader := c.GetHeader("X-Payment-Proof")

	// Also check for x402 standard header
	if proofHeader == "" {
		proofHeader = c.GetHeader("X-402-Payment")
	}

	if proofHeader == "" {
		g.challenge(c, amount, description)
		return nil, false
	}

	// Parse the payment proof
	var proof PaymentProof
	if err := json.Unmarshal([]byte(proofHeader), &proof); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_payment_proof",
			"message": "Could not parse payment proof JSON",
		})
		return nil, false
	}

	verified, err := g.verify(c.Request.Context(), &proof, amount)
	if err != nil {
		if g.cfg.OnPaymentFailed != nil {
			g.cfg.OnPaymentFailed(&proof, err)
		}
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"success": false,
			"error":   "payment_verification_failed",
			"message": "Payment verification failed",
		})
		return nil, false
	}

	if !verified {
		if g.cfg.OnPaymentFailed != nil {
			g.cfg.OnPaymentFailed(&proof, fmt.Errorf("payment does not cover stake"))
		}
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"success": false,
			"error":   "payment_insufficient",
			"message": "Payment does not cover the stake",
		})
		return nil, false
	}

	if g.cfg.OnPaymentReceived != nil {
		g.cfg.OnPaymentReceived(&proof, c.FullPath())
	}

	return &proof, true
}

func (g *Gate) challenge(c *gin.Context, amount, description string) {
	nonce, err := generateSecureNonce()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "Failed to generate secure nonce",
		})
		return
	}

	g.nonces.issue(nonce)

	req := PaymentRequirement{
		Price:       amount,
		Currency:    "USDC",
		Chain:       g.cfg.Chain,
		ChainID:     g.cfg.ChainID,
		Recipient:   g.cfg.Verifier.Address(),
		Contract:    g.cfg.Contract,
		Description: description,
		ValidFor:    int64(g.maxAge().Seconds()),
		Nonce:       nonce,
	}

	// Set standard headers
	c.Header("X-Payment-Required", "true")
	c.Header("X-Payment-Currency", "USDC")
	c.Header("X-Payment-Amount", amount)
	c.Header("X-Payment-Recipient", g.cfg.Verifier.Address())
	c.Header("X-Payment-Chain", g.cfg.Chain)

	c.AbortWithStatusJSON(http.StatusPaymentRequired, req)
}

func (g *Gate) verify(ctx context.Context, proof *PaymentProof, amount string) (bool, error) {
	if proof.TxHash == "" {
		return false, fmt.Errorf("missing transaction hash")
	}
	if proof.From == "" {
		return false, fmt.Errorf("missing sender address")
	}

	// Validate nonce (one-time use, must have been issued by us)
	if proof.Nonce == "" {
		return false, fmt.Errorf("missing nonce")
	}
	if !g.nonces.consume(proof.Nonce, g.maxAge()) {
		return false, fmt.Errorf("invalid or expired nonce")
	}

	// Validate timestamp freshness
	if proof.Timestamp > 0 {
		proofAge := time.Since(time.Unix(proof.Timestamp, 0))
		if proofAge > g.maxAge() || proofAge < -30*time.Second {
			return false, fmt.Errorf("payment proof expired or has future timestamp")
		}
	}

	// Normalize and validate tx hash format
	txHash := proof.TxHash
	if !strings.HasPrefix(txHash, "0x") {
		txHash = "0x" + txHash
	}
	if !txHashRe.MatchString(txHash) {
		return false, fmt.Errorf("invalid transaction hash format")
	}

	// Validate from address format (0x + 40 hex chars)
	from := proof.From
	if !strings.HasPrefix(from, "0x") || len(from) != 42 {
		return false, fmt.Errorf("invalid sender address format")
	}

	// Verify the payment on-chain
	verified, err := g.cfg.Verifier.VerifyPayment(ctx, proof.From, amount, txHash)
	if err != nil {
		return false, fmt.Errorf("verification failed: %w", err)
	}

	return verified, nil
}

func (g *Gate) maxAge() time.Duration {
	if g.cfg.ValidFor > 0 {
		return g.cfg.ValidFor
	}
	return 5 * time.Minute
}

// generateSecureNonce creates a cryptographically secure nonce
func generateSecureNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
