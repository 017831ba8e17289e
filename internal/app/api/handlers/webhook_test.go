package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/internal/app/service/gateway"
	"github.com/kestrelmarket/billing/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const webhookSecret = "sk_test_webhook"

type recordingBiller struct {
	succeeded []string
}

func (r *recordingBiller) ProcessPaymentSuccess(ctx context.Context, reference string) (*billing.PaymentOutcome, error) {
	r.succeeded = append(r.succeeded, reference)
	return &billing.PaymentOutcome{}, nil
}

func (r *recordingBiller) ProcessPaymentFailure(ctx context.Context, reference, reason string) (*billing.PaymentOutcome, error) {
	return &billing.PaymentOutcome{}, nil
}

func (r *recordingBiller) CancelSubscriptionByID(ctx context.Context, subscriptionID string) error {
	return nil
}

func webhookRouter(biller gateway.Biller) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()

	cfg := &config.Config{}
	cfg.Gateway.BaseURL = "http://unused"
	cfg.Gateway.SecretKey = webhookSecret
	cfg.Gateway.Timeout = time.Second

	gw := gateway.NewClient(cfg, log)
	events := gateway.NewEventHandler(biller, log)

	r := gin.New()
	RegisterWebhookRoutes(r.Group("/api/subscription"), gw, events, log)
	return r
}

func signBody(body []byte) string {
	mac := hmac.New(sha512.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/subscription/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhook_ValidSignatureProcessed(t *testing.T) {
	biller := &recordingBiller{}
	r := webhookRouter(biller)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	w := postWebhook(r, body, signBody(body))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"ref-1"}, biller.succeeded)
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	biller := &recordingBiller{}
	r := webhookRouter(biller)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	w := postWebhook(r, body, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, biller.succeeded)
}

func TestWebhook_BadSignatureTouchesNothing(t *testing.T) {
	biller := &recordingBiller{}
	r := webhookRouter(biller)

	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)
	tampered := []byte(`{"event":"charge.success","data":{"reference":"ref-2"}}`)
	w := postWebhook(r, tampered, signBody(body))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, biller.succeeded)
}
