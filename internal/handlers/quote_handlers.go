package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"buildledger/internal/common"
	"buildledger/internal/services"

	"github.com/labstack/echo/v4"
)

// QuoteHandlers handles HTTP requests for quotes
type QuoteHandlers struct {
	quoteService services.QuoteService
}

func NewQuoteHandlers(quoteService services.QuoteService) *QuoteHandlers {
	return &QuoteHandlers{quoteService: quoteService}
}

// ListQuotes handles GET /api/quotes
func (h *QuoteHandlers) ListQuotes(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	quotes, err := h.quoteService.List(ctx, userID, limit, offset)
	if err != nil {
		log.Printf("failed to list quotes for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, quotes)
}

// CreateQuote handles POST /api/quotes
func (h *QuoteHandlers) CreateQuote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var input services.CreateQuoteInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	quote, err := h.quoteService.Create(ctx, userID, &input)
	if err != nil {
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to create quote for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, quote)
}

// GetQuote handles GET /api/quotes/:id
func (h *QuoteHandlers) GetQuote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	quoteID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	quote, err := h.quoteService.Get(ctx, userID, quoteID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "quote")
		}
		log.Printf("failed to load quote %s: %v", quoteID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, quote)
}

// UpdateQuote handles PUT /api/quotes/:id
func (h *QuoteHandlers) UpdateQuote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	quoteID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var input services.CreateQuoteInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	quote, err := h.quoteService.Update(ctx, userID, quoteID, &input)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "quote")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update quote %s: %v", quoteID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, quote)
}

// DeleteQuote handles DELETE /api/quotes/:id
func (h *QuoteHandlers) DeleteQuote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	quoteID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	if err := h.quoteService.Delete(ctx, userID, quoteID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "quote")
		}
		log.Printf("failed to delete quote %s: %v", quoteID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// UpdateQuoteStatus handles PUT /api/quotes/:id/status
func (h *QuoteHandlers) UpdateQuoteStatus(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	quoteID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	if err := h.quoteService.UpdateStatus(ctx, userID, quoteID, req.Status); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "quote")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update quote %s status: %v", quoteID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

// ConvertQuote handles POST /api/quotes/:id/convert
func (h *QuoteHandlers) ConvertQuote(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	quoteID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	invoice, err := h.quoteService.ConvertToInvoice(ctx, userID, quoteID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "quote")
		}
		if errors.Is(err, common.ErrLimitExceeded) {
			return common.SendError(c, http.StatusBadRequest, err.Error())
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to convert quote %s: %v", quoteID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, invoice)
}
