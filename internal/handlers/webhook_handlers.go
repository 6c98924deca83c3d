package handlers

import (
	"io"
	"log"
	"net/http"

	"buildledger/internal/common"
	"buildledger/internal/services"

	"github.com/labstack/echo/v4"
)

// Stripe caps webhook payloads well under this.
const maxWebhookBody = 64 * 1024

// WebhookHandlers handles payment provider webhook deliveries.
type WebhookHandlers struct {
	billing             services.BillingProvider
	subscriptionService services.SubscriptionService
}

func NewWebhookHandlers(billing services.BillingProvider, subscriptionService services.SubscriptionService) *WebhookHandlers {
	return &WebhookHandlers{billing: billing, subscriptionService: subscriptionService}
}

// HandleStripeWebhook handles POST /api/webhooks/stripe. The legacy
// /api/stripe/webhook route points here too.
//
// Signature failures return 400. Internal failures return 500 so the
// provider retries the delivery.
func (h *WebhookHandlers) HandleStripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return common.SendValidationError(c, "failed to read request body")
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	event, err := h.billing.ConstructWebhookEvent(payload, signature)
	if err != nil {
		log.Printf("webhook: signature verification failed: %v", err)
		return common.SendValidationError(c, "invalid webhook signature")
	}

	if err := h.subscriptionService.HandleWebhookEvent(c.Request().Context(), event); err != nil {
		log.Printf("webhook: handling %s (%s) failed: %v", event.Type, event.ID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
