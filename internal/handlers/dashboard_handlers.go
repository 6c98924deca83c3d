package handlers

import (
	"log"
	"net/http"

	"buildledger/internal/analytics"
	"buildledger/internal/common"

	"github.com/labstack/echo/v4"
)

// DashboardHandlers serves the per-user summary.
type DashboardHandlers struct {
	analyticsService *analytics.Service
}

func NewDashboardHandlers(analyticsService *analytics.Service) *DashboardHandlers {
	return &DashboardHandlers{analyticsService: analyticsService}
}

// GetDashboard handles GET /api/dashboard
func (h *DashboardHandlers) GetDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	summary, err := h.analyticsService.GetDashboard(ctx, userID)
	if err != nil {
		log.Printf("failed to build dashboard for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, summary)
}
