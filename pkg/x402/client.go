package x402

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/koredeycode/moltbet/internal/usdc"
	"github.com/koredeycode/moltbet/internal/wallet"
)

// Client wraps http.Client with automatic 402 stake payment handling.
// An agent pointing this at Moltbet can propose and counter bets
// without implementing the challenge/pay/retry dance itself.
type Client struct {
	httpClient *http.Client
	wallet     *wallet.Wallet

	// Configuration
	MaxRetries     int           // Max payment retries (default: 1)
	ConfirmTimeout time.Duration // Time to wait for tx confirmation (default: 30s)
	AutoPay        bool          // Automatically pay 402s (default: true)
	MaxStake       string        // Max stake the client will pay (default: unlimited)

	// Hooks
	OnPayment func(req *PaymentRequirement, proof *PaymentProof) // Called before each payment
}

// NewClient creates a new x402-enabled HTTP client
func NewClient(w *wallet.Wallet) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		wallet:         w,
		MaxRetries:     1,
		ConfirmTimeout: 30 * time.Second,
		AutoPay:        true,
	}
}

// Do performs an HTTP request with automatic 402 payment handling
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoContext(req.Context(), req)
}

// DoContext performs an HTTP request with context and automatic 402 handling
func (c *Client) DoContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	// Clone the request body if present (we might need to retry)
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		_ = req.Body.Close()
	}

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		// Reset body for retry
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		// Not a 402 - return response as-is
		if resp.StatusCode != http.StatusPaymentRequired {
			return resp, nil
		}

		// Don't auto-pay if disabled
		if !c.AutoPay {
			return resp, nil
		}

		// Parse the stake challenge
		payReq, err := ParsePaymentRequirement(resp)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse payment requirement: %w", err)
		}

		// Check stake limit
		if c.MaxStake != "" {
			if err := c.checkStakeLimit(payReq.Price); err != nil {
				return nil, err
			}
		}

		// Pay the stake
		proof, err := c.payStake(ctx, payReq)
		if err != nil {
			return nil, fmt.Errorf("payment failed: %w", err)
		}

		// Call hook if set
		if c.OnPayment != nil {
			c.OnPayment(payReq, proof)
		}

		// Add proof to request and retry
		if err := AddProofToRequest(req, proof); err != nil {
			return nil, fmt.Errorf("failed to add proof: %w", err)
		}
	}

	return nil, fmt.Errorf("max retries exceeded")
}

// Get performs a GET request with automatic 402 handling
func (c *Client) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// payStake executes a USDC transfer to the escrow and waits for confirmation
func (c *Client) payStake(ctx context.Context, req *PaymentRequirement) (*PaymentProof, error) {
	recipient := common.HexToAddress(req.Recipient)

	price, ok := usdc.Parse(req.Price)
	if !ok {
		return nil, fmt.Errorf("invalid price: %q", req.Price)
	}

	// Send the payment
	result, err := c.wallet.Transfer(ctx, recipient, price)
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	// Wait for confirmation if timeout is set
	if c.ConfirmTimeout > 0 {
		_, err = c.wallet.WaitForConfirmation(ctx, result.TxHash, c.ConfirmTimeout)
		if err != nil {
			return nil, fmt.Errorf("confirmation failed: %w", err)
		}
	}

	return CreatePaymentProof(result.TxHash, c.wallet.Address(), req.Nonce), nil
}

// checkStakeLimit verifies the challenged stake doesn't exceed the cap
func (c *Client) checkStakeLimit(price string) error {
	maxAmount, ok := usdc.Parse(c.MaxStake)
	if !ok {
		return fmt.Errorf("invalid max stake: %q", c.MaxStake)
	}

	reqAmount, ok := usdc.Parse(price)
	if !ok {
		return fmt.Errorf("invalid price: %q", price)
	}

	if reqAmount.Cmp(maxAmount) > 0 {
		return fmt.Errorf("stake %s exceeds max %s", price, c.MaxStake)
	}

	return nil
}
