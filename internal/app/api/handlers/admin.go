package handlers

import (
	"net/http"
	"strconv"

	"github.com/kestrelmarket/billing/internal/app/service/billing"
	"github.com/kestrelmarket/billing/internal/app/service/scheduler"
	"github.com/kestrelmarket/billing/pkg/response"
	types "github.com/kestrelmarket/billing/pkg/types"

	"github.com/gin-gonic/gin"
)

// @Summary      List subscriptions
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        page    query  int     false  "Page (1-based)"
// @Param        limit   query  int     false  "Page size"
// @Param        status  query  string  false  "Status filter"
// @Success      200  {object}  response.APIResponse[billing.ListSubscriptionsResponse]
// @Router       /api/admin/subscription [get]
func ApiAdminListSubscriptions(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		res, err := svc.ListSubscriptions(c.Request.Context(), &billing.ListSubscriptionsRequest{
			Page:   page,
			Limit:  limit,
			Status: types.SubscriptionStatus(c.Query("status")),
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Subscription stats
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[billing.SubscriptionStats]
// @Router       /api/admin/subscription/stats [get]
func ApiAdminStats(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(stats))
	}
}

// @Summary      List payments
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        page    query  int     false  "Page (1-based)"
// @Param        limit   query  int     false  "Page size"
// @Param        status  query  string  false  "Status filter"
// @Success      200  {object}  response.APIResponse[billing.ListPaymentsResponse]
// @Router       /api/admin/subscription/payments [get]
func ApiAdminListPayments(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		res, err := svc.ListPayments(c.Request.Context(), &billing.ListPaymentsRequest{
			Page:   page,
			Limit:  limit,
			Status: types.PaymentStatus(c.Query("status")),
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Scheduler health
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.APIResponse[scheduler.Health]
// @Router       /api/admin/subscription/scheduler/health [get]
func ApiAdminSchedulerHealth(runner *scheduler.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		health, err := runner.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(health))
	}
}

// @Summary      Subscription detail
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Subscription ID"
// @Success      200  {object}  response.APIResponse[billing.SubscriptionDetail]
// @Router       /api/admin/subscription/{id} [get]
func ApiAdminGetSubscription(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := svc.GetSubscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(detail))
	}
}

type setStatusRequest struct {
	Status types.SubscriptionStatus `json:"status" binding:"required"`
	Reason string                   `json:"reason"`
}

// @Summary      Override subscription status
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string            true  "Subscription ID"
// @Param        request  body  setStatusRequest  true  "Target status"
// @Success      200  {object}  response.APIResponse[models.Subscription]
// @Router       /api/admin/subscription/{id}/status [put]
func ApiAdminSetStatus(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sub, err := svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status, req.Reason)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type extendTrialRequest struct {
	Days   int    `json:"days" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// @Summary      Extend trial
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string              true  "Subscription ID"
// @Param        request  body  extendTrialRequest  true  "Extension"
// @Success      200  {object}  response.APIResponse[models.Subscription]
// @Router       /api/admin/subscription/{id}/extend-trial [post]
func ApiAdminExtendTrial(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req extendTrialRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		sub, err := svc.ExtendTrial(c.Request.Context(), c.Param("id"), req.Days, req.Reason)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type suspendVendorRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary      Suspend vendor
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        vendorId  path  string                true  "Vendor ID"
// @Param        request   body  suspendVendorRequest  true  "Suspension reason"
// @Success      200  {object}  response.APIResponse[string]
// @Router       /api/admin/subscription/suspend-vendor/{vendorId} [post]
func ApiAdminSuspendVendor(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req suspendVendorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err := svc.SuspendVendor(c.Request.Context(), c.Param("vendorId"), req.Reason); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT("suspended"))
	}
}

// @Summary      Create plan
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body  billing.PlanInput  true  "Plan"
// @Success      200  {object}  response.APIResponse[models.SubscriptionPlan]
// @Router       /api/admin/subscription/plans [post]
func ApiAdminCreatePlan(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in billing.PlanInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		plan, err := svc.CreatePlan(c.Request.Context(), &in)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plan))
	}
}

// @Summary      Update plan
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string             true  "Plan ID"
// @Param        request  body  billing.PlanInput  true  "Plan"
// @Success      200  {object}  response.APIResponse[models.SubscriptionPlan]
// @Router       /api/admin/subscription/plans/{id} [put]
func ApiAdminUpdatePlan(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in billing.PlanInput
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		plan, err := svc.UpdatePlan(c.Request.Context(), c.Param("id"), &in)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plan))
	}
}

// @Summary      Delete plan
// @Description  Deletes an unused plan; plans with billing history are deactivated.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Plan ID"
// @Success      200  {object}  response.APIResponse[string]
// @Router       /api/admin/subscription/plans/{id} [delete]
func ApiAdminDeletePlan(svc *billing.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT("deleted"))
	}
}

func RegisterAdminRoutes(r gin.IRouter, svc *billing.Service, runner *scheduler.Runner) {
	r.GET("", ApiAdminListSubscriptions(svc))
	r.GET("/stats", ApiAdminStats(svc))
	r.GET("/payments", ApiAdminListPayments(svc))
	r.GET("/scheduler/health", ApiAdminSchedulerHealth(runner))
	r.POST("/plans", ApiAdminCreatePlan(svc))
	r.PUT("/plans/:id", ApiAdminUpdatePlan(svc))
	r.DELETE("/plans/:id", ApiAdminDeletePlan(svc))
	r.POST("/suspend-vendor/:vendorId", ApiAdminSuspendVendor(svc))
	r.GET("/:id", ApiAdminGetSubscription(svc))
	r.PUT("/:id/status", ApiAdminSetStatus(svc))
	r.POST("/:id/extend-trial", ApiAdminExtendTrial(svc))
}
