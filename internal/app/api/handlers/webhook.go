package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/internal/app/service/gateway"
	"github.com/kestrelmarket/billing/pkg/logctx"
	"github.com/kestrelmarket/billing/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @Summary      Payment gateway webhook
// @Description  Receives signed gateway events. Requests with a missing or
// @Description  invalid signature are rejected before any state is touched.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  response.APIResponse[string]
// @Failure      401  {object}  response.APIResponse[string]
// @Router       /api/subscription/webhook [post]
func ApiGatewayWebhook(gw *gateway.Client, events *gateway.EventHandler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "failed to read body"))
			return
		}

		signature := c.GetHeader(gateway.SignatureHeader)
		if !gw.VerifyWebhookSignature(body, signature) {
			logctx.FromGin(c, log).Warnw("webhook_signature_rejected", "client_ip", c.ClientIP())
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid signature"))
			return
		}

		if err := events.HandleEvent(c.Request.Context(), body); err != nil {
			// An unknown reference is not retryable; acknowledge it so the
			// provider stops redelivering.
			if errors.Is(err, billing.ErrNotFound) {
				logctx.FromGin(c, log).Warnw("webhook_unknown_reference", "err", err)
				c.JSON(http.StatusOK, response.OKT("ignored"))
				return
			}
			logctx.FromGin(c, log).Errorw("webhook_processing_failed", "err", err)
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, "processing failed"))
			return
		}
		c.JSON(http.StatusOK, response.OKT("processed"))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, gw *gateway.Client, events *gateway.EventHandler, log *zap.SugaredLogger) {
	r.POST("/webhook", ApiGatewayWebhook(gw, events, log))
}
