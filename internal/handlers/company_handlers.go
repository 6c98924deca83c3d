package handlers

import (
	"errors"
	"log"
	"net/http"

	"buildledger/internal/common"
	"buildledger/internal/services"

	"github.com/labstack/echo/v4"
)

// CompanyHandlers handles the user's business profile.
type CompanyHandlers struct {
	companyService services.CompanyService
}

func NewCompanyHandlers(companyService services.CompanyService) *CompanyHandlers {
	return &CompanyHandlers{companyService: companyService}
}

// GetCompany handles GET /api/company
func (h *CompanyHandlers) GetCompany(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	company, err := h.companyService.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "company")
		}
		log.Printf("failed to load company for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, company)
}

// UpsertCompany handles PUT /api/company
func (h *CompanyHandlers) UpsertCompany(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var input services.CompanyInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	company, err := h.companyService.Upsert(ctx, userID, &input)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "user")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to save company for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, company)
}
