package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrelmarket/billing/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string) *Client {
	cfg := &config.Config{}
	cfg.Gateway.BaseURL = baseURL
	cfg.Gateway.SecretKey = "sk_test_secret"
	cfg.Gateway.CallbackURL = "https://example.com/billing/callback"
	cfg.Gateway.Timeout = 5 * time.Second
	return NewClient(cfg, zap.NewNop().Sugar())
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestInitialize_SendsMinorUnits(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/initialize", r.URL.Path)
		require.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.example.com/abc",
				"access_code":       "abc",
				"reference":         "SUB-1-deadbeef",
			},
		})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Initialize(context.Background(), &InitializeRequest{
		Email:     "vendor@example.com",
		Amount:    50000,
		Reference: "SUB-1-deadbeef",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.example.com/abc", res.AuthorizationURL)
	require.Equal(t, "SUB-1-deadbeef", res.Reference)

	// 50,000 NGN goes over the wire as 5,000,000 kobo.
	require.Equal(t, float64(5000000), got["amount"])
	require.Equal(t, "vendor@example.com", got["email"])
	require.Equal(t, "https://example.com/billing/callback", got["callback_url"])
}

func TestInitialize_RoundsFractionalMinorUnits(t *testing.T) {
	// Amounts whose minor-unit value is not exactly representable in
	// binary float must round to the nearest kobo, never truncate down.
	cases := []struct {
		amount float64
		minor  float64
	}{
		{1.13, 113},
		{0.29, 29},
		{0.57, 57},
		{1.14, 114},
		{19.99, 1999},
	}
	for _, tc := range cases {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data":   map[string]any{"reference": "ref"},
			})
		}))

		_, err := testClient(srv.URL).Initialize(context.Background(), &InitializeRequest{
			Email:     "vendor@example.com",
			Amount:    tc.amount,
			Reference: "ref",
		})
		srv.Close()
		require.NoError(t, err)
		require.Equal(t, tc.minor, got["amount"], "amount=%v", tc.amount)
	}
}

func TestVerify_ConvertsToMajorUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/verify/SUB-1-deadbeef", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":    "success",
				"reference": "SUB-1-deadbeef",
				"amount":    5000000,
				"currency":  "NGN",
			},
		})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Verify(context.Background(), "SUB-1-deadbeef")
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	require.Equal(t, float64(50000), res.Amount)
}

func TestVerify_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Transaction reference not found",
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Verify(context.Background(), "nope")
	require.ErrorIs(t, err, ErrGateway)
	require.Contains(t, err.Error(), "Transaction reference not found")
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := testClient("http://unused")
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

	require.True(t, c.VerifyWebhookSignature(body, sign("sk_test_secret", body)))
	require.False(t, c.VerifyWebhookSignature(body, sign("wrong_secret", body)))
	require.False(t, c.VerifyWebhookSignature(body, ""))
	require.False(t, c.VerifyWebhookSignature(body, "not-hex"))

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = 'x'
	require.False(t, c.VerifyWebhookSignature(tampered, sign("sk_test_secret", body)))
}
