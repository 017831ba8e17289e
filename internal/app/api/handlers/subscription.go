package handlers

import (
	"errors"
	"net/http"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/internal/app/service/gateway"
	mw "github.com/kestrelmarket/billing/internal/app/api/middleware"
	models "github.com/kestrelmarket/billing/internal/models"
	"github.com/kestrelmarket/billing/pkg/response"

	"github.com/gin-gonic/gin"
)

func codeFor(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, billing.ErrValidation):
		return response.APIResponseCodeBadRequest
	case errors.Is(err, billing.ErrConflict):
		return response.APIResponseCodeConflict
	case errors.Is(err, gateway.ErrGateway):
		return response.APIResponseCodeGateway
	default:
		return response.APIResponseCodeError
	}
}

// @Summary      Current subscription
// @Description  Returns the vendor's subscription, creating a trial on first contact.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[models.Subscription]
// @Router       /api/subscription/current [get]
func ApiCurrentSubscription(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.GetOrCreateSubscription(c.Request.Context(), mw.Actor(c).ID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      List plans
// @Description  Returns the active plan catalog.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[[]models.SubscriptionPlan]
// @Router       /api/subscription/plans [get]
func ApiListPlans(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := svc.ListActivePlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

// @Summary      Payment history
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[[]models.SubscriptionPayment]
// @Router       /api/subscription/payments [get]
func ApiVendorPayments(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := svc.ListVendorPayments(c.Request.Context(), mw.Actor(c).ID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(payments))
	}
}

type initializePaymentRequest struct {
	PlanID string `json:"plan_id"`
	Email  string `json:"email" binding:"required,email"`
}

type initializePaymentResponse struct {
	AuthorizationURL string  `json:"authorization_url"`
	Reference        string  `json:"reference"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	PlanName         string  `json:"plan_name"`
}

// @Summary      Initialize payment
// @Description  Creates a pending charge and a hosted checkout session for it.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body initializePaymentRequest true "Payment request"
// @Success      200  {object}  response.APIResponse[initializePaymentResponse]
// @Router       /api/subscription/pay [post]
func ApiInitializePayment(svc *billing.Service, gw *gateway.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initializePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		vendorID := mw.Actor(c).ID

		res, err := svc.InitializePayment(c.Request.Context(), vendorID, req.PlanID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}

		session, err := gw.Initialize(c.Request.Context(), &gateway.InitializeRequest{
			Email:     req.Email,
			Amount:    res.Payment.Amount,
			Reference: res.Payment.TransactionReference,
			Metadata: map[string]any{
				"vendor_id":       vendorID,
				"subscription_id": res.Subscription.ID,
				"plan_id":         res.Plan.ID,
			},
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		if session.Reference != "" && session.Reference != res.Payment.TransactionReference {
			if err := svc.UpdatePaymentReference(c.Request.Context(), res.Payment.ID, session.Reference); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
				return
			}
			res.Payment.TransactionReference = session.Reference
		}

		c.JSON(http.StatusOK, response.OKT(initializePaymentResponse{
			AuthorizationURL: session.AuthorizationURL,
			Reference:        res.Payment.TransactionReference,
			Amount:           res.Payment.Amount,
			Currency:         res.Payment.Currency,
			PlanName:         res.Plan.Name,
		}))
	}
}

type verifyPaymentRequest struct {
	Reference string `json:"reference" binding:"required"`
}

type verifyPaymentResponse struct {
	Payment      *models.SubscriptionPayment `json:"payment"`
	Subscription *models.Subscription        `json:"subscription"`
}

// @Summary      Verify payment
// @Description  Confirms a charge with the gateway and applies the outcome.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body verifyPaymentRequest true "Verification request"
// @Success      200  {object}  response.APIResponse[verifyPaymentResponse]
// @Router       /api/subscription/verify [post]
func ApiVerifyPayment(svc *billing.Service, gw *gateway.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		verified, err := gw.Verify(c.Request.Context(), req.Reference)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}

		var outcome *billing.PaymentOutcome
		if verified.Status == "success" {
			outcome, err = svc.ProcessPaymentSuccess(c.Request.Context(), req.Reference)
		} else {
			outcome, err = svc.ProcessPaymentFailure(c.Request.Context(), req.Reference, "verification returned "+verified.Status)
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(verifyPaymentResponse{
			Payment:      outcome.Payment,
			Subscription: outcome.Subscription,
		}))
	}
}

type settingsRequest struct {
	AutoRenew *bool `json:"auto_renew" binding:"required"`
}

// @Summary      Update subscription settings
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body settingsRequest true "Settings"
// @Success      200  {object}  response.APIResponse[models.Subscription]
// @Router       /api/subscription/settings [put]
func ApiUpdateSettings(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req settingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sub, err := svc.SetAutoRenew(c.Request.Context(), mw.Actor(c).ID, *req.AutoRenew)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Cancel subscription
// @Description  Cancels the vendor's subscription. Already-cancelled is a no-op.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[models.Subscription]
// @Router       /api/subscription/cancel [post]
func ApiCancelSubscription(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := svc.CancelSubscription(c.Request.Context(), mw.Actor(c).ID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type statusResponse struct {
	Access       billing.AccessSummary `json:"access"`
	Subscription *models.Subscription  `json:"subscription,omitempty"`
}

// @Summary      Access status
// @Description  Returns the effective access decision for the vendor.
// @Tags         Subscription
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[statusResponse]
// @Router       /api/subscription/status [get]
func ApiSubscriptionStatus(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, sub, err := svc.Status(c.Request.Context(), mw.Actor(c).ID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(statusResponse{Access: access, Subscription: sub}))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, svc *billing.Service, gw *gateway.Client) {
	r.GET("/current", ApiCurrentSubscription(svc))
	r.GET("/plans", ApiListPlans(svc))
	r.GET("/payments", ApiVendorPayments(svc))
	r.GET("/status", ApiSubscriptionStatus(svc))
	r.POST("/pay", ApiInitializePayment(svc, gw))
	r.POST("/verify", ApiVerifyPayment(svc, gw))
	r.PUT("/settings", ApiUpdateSettings(svc))
	r.POST("/cancel", ApiCancelSubscription(svc))
}
