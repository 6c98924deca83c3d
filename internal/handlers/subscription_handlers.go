package handlers

import (
	"errors"
	"log"
	"net/http"

	"buildledger/internal/common"
	"buildledger/internal/models"
	"buildledger/internal/services"

	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers handles HTTP requests for subscriptions, plans and
// usage.
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

// CreateSubscription handles POST /api/subscriptions
func (h *SubscriptionHandlers) CreateSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PriceID string `json:"price_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}
	if err := common.ValidateRequiredString(req.PriceID, "price_id"); err != nil {
		return common.SendValidationError(c, err.Error())
	}

	subscription, err := h.subscriptionService.CreateSubscription(ctx, userID, req.PriceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "user")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to create subscription for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, subscription)
}

// GetSubscription handles GET /api/subscriptions
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.subscriptionService.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "subscription")
		}
		log.Printf("failed to load subscription for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, subscription)
}

// CancelSubscription handles DELETE /api/subscriptions
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	if err := h.subscriptionService.CancelSubscription(ctx, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "subscription")
		}
		log.Printf("failed to cancel subscription for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "canceled"})
}

// GetSubscriptionStatus handles GET /api/subscriptions/status. It bundles
// the subscription with its plan limits and current usage.
func (h *SubscriptionHandlers) GetSubscriptionStatus(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscription, err := h.subscriptionService.GetSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "subscription")
		}
		log.Printf("failed to load subscription for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	response := map[string]interface{}{
		"subscription": subscription,
	}

	if plan, err := h.subscriptionService.GetPlanByName(ctx, subscription.PlanName); err == nil {
		response["plan"] = plan
	}
	if usage, err := h.subscriptionService.GetUsage(ctx, userID, subscription.ID); err == nil {
		response["usage"] = usage
	}

	return c.JSON(http.StatusOK, response)
}

// ListPlans handles GET /api/subscriptions/plans
func (h *SubscriptionHandlers) ListPlans(c echo.Context) error {
	plans, err := h.subscriptionService.GetPlans(c.Request().Context())
	if err != nil {
		log.Printf("failed to list plans: %v", err)
		return common.SendServerError(c)
	}
	return c.JSON(http.StatusOK, plans)
}

// GetUsage handles GET /api/subscriptions/:id/usage
func (h *SubscriptionHandlers) GetUsage(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscriptionID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	usage, err := h.subscriptionService.GetUsage(ctx, userID, subscriptionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "subscription")
		}
		log.Printf("failed to load usage for subscription %s: %v", subscriptionID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, usage)
}

// RecordUsage handles POST /api/subscriptions/:id/usage
func (h *SubscriptionHandlers) RecordUsage(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	subscriptionID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var req struct {
		Feature string `json:"feature"`
		Delta   int64  `json:"delta"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}
	if !isKnownUsageFeature(req.Feature) {
		return common.SendValidationError(c, "unknown usage feature")
	}
	if req.Delta == 0 {
		req.Delta = 1
	}

	// The subscription id in the path must belong to the caller.
	subscription, err := h.subscriptionService.GetSubscription(ctx, userID)
	if err != nil || subscription.ID != subscriptionID {
		return common.SendNotFoundError(c, "subscription")
	}

	if err := h.subscriptionService.RecordUsage(ctx, userID, req.Feature, req.Delta); err != nil {
		log.Printf("failed to record usage for subscription %s: %v", subscriptionID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// CreateCheckoutSession handles POST /api/stripe/checkout
func (h *SubscriptionHandlers) CreateCheckoutSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		PriceID string `json:"price_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}
	if err := common.ValidateRequiredString(req.PriceID, "price_id"); err != nil {
		return common.SendValidationError(c, err.Error())
	}

	url, err := h.subscriptionService.CreateCheckoutSession(ctx, userID, req.PriceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "user")
		}
		log.Printf("failed to create checkout session for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// CreatePortalSession handles POST /api/stripe/create-portal-session
func (h *SubscriptionHandlers) CreatePortalSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	url, err := h.subscriptionService.CreatePortalSession(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNoCustomer) {
			return common.SendValidationError(c, "no billing customer on file")
		}
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "user")
		}
		log.Printf("failed to create portal session for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func isKnownUsageFeature(feature string) bool {
	switch feature {
	case models.UsageFeatureInvoices, models.UsageFeatureStorageMB,
		models.UsageFeatureTeamMembers, models.UsageFeatureAPICalls:
		return true
	}
	return false
}
