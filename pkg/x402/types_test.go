package x402

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs402Response(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"402 response", http.StatusPaymentRequired, true},
		{"200 response", http.StatusOK, false},
		{"401 response", http.StatusUnauthorized, false},
		{"409 response", http.StatusConflict, false},
		{"500 response", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.statusCode}
			assert.Equal(t, tt.want, Is402Response(resp))
		})
	}
}

func TestParsePaymentRequirement(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
		wantPrice  string
	}{
		{
			name:       "valid stake challenge",
			statusCode: http.StatusPaymentRequired,
			body:       `{"price":"25.00","currency":"USDC","chain":"base","chainId":8453,"recipient":"0x1234","nonce":"bet_abc:counter"}`,
			wantErr:    false,
			wantPrice:  "25.00",
		},
		{
			name:       "not 402 response",
			statusCode: http.StatusOK,
			body:       `{"price":"25.00"}`,
			wantErr:    true,
		},
		{
			name:       "invalid JSON",
			statusCode: http.StatusPaymentRequired,
			body:       `not-json`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Body:       io.NopCloser(bytes.NewBufferString(tt.body)),
			}

			req, err := ParsePaymentRequirement(resp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, req.Price)
		})
	}
}

func TestCreatePaymentProof(t *testing.T) {
	proof := CreatePaymentProof(
		"0xabcdef123456",
		"0x1234567890",
		"bet_abc:propose",
	)

	assert.Equal(t, "0xabcdef123456", proof.TxHash)
	assert.Equal(t, "0x1234567890", proof.From)
	assert.Equal(t, "bet_abc:propose", proof.Nonce)
	assert.Greater(t, proof.Timestamp, int64(0))
}

func TestPaymentProof_ToHeader(t *testing.T) {
	proof := &PaymentProof{
		TxHash:    "0xabcdef",
		From:      "0x123456",
		Nonce:     "bet_abc:counter",
		Timestamp: 1234567890,
	}

	header, err := proof.ToHeader()
	require.NoError(t, err)
	assert.Contains(t, header, "0xabcdef")
	assert.Contains(t, header, "0x123456")
	assert.Contains(t, header, "bet_abc:counter")
}

func TestAddProofToRequest(t *testing.T) {
	proof := &PaymentProof{
		TxHash:    "0xabcdef",
		From:      "0x123456",
		Timestamp: 1234567890,
	}

	req := httptest.NewRequest("POST", "/v1/bets", nil)
	err := AddProofToRequest(req, proof)
	require.NoError(t, err)

	header := req.Header.Get("X-Payment-Proof")
	assert.NotEmpty(t, header)
	assert.Contains(t, header, "0xabcdef")
}

func TestError(t *testing.T) {
	err := &Error{
		Code:    "payment_invalid",
		Message: "Stake transfer not found on chain",
	}

	assert.Equal(t, "payment_invalid: Stake transfer not found on chain", err.Error())
}

// Integration-style tests with a mock server

func TestClient_Get_NoPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer server.Close()

	// No wallet, so auto-pay stays off
	client := &Client{
		httpClient: http.DefaultClient,
		AutoPay:    false,
	}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_Get_402_NoPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Payment-Required", "true")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"price":"25.00","currency":"USDC","chain":"base","chainId":8453,"recipient":"0x123"}`))
	}))
	defer server.Close()

	// With auto-pay disabled the challenge is returned to the caller
	client := &Client{
		httpClient: http.DefaultClient,
		AutoPay:    false,
	}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestClient_StakeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"price":"500.00","currency":"USDC","chain":"base","chainId":8453,"recipient":"0x1234567890123456789012345678901234567890"}`))
	}))
	defer server.Close()

	client := &Client{
		httpClient: http.DefaultClient,
		AutoPay:    true,
		MaxRetries: 1,
		MaxStake:   "100.00",
	}

	_, err := client.Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max")
}

// Benchmark

func BenchmarkParsePaymentRequirement(b *testing.B) {
	body := `{"price":"25.00","currency":"USDC","chain":"base","chainId":8453,"recipient":"0x1234567890123456789012345678901234567890"}`

	for i := 0; i < b.N; i++ {
		resp := &http.Response{
			StatusCode: http.StatusPaymentRequired,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}
		ParsePaymentRequirement(resp)
	}
}
