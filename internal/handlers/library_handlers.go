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

// LibraryHandlers handles HTTP requests for the billable item library
type LibraryHandlers struct {
	libraryService services.LibraryService
}

func NewLibraryHandlers(libraryService services.LibraryService) *LibraryHandlers {
	return &LibraryHandlers{libraryService: libraryService}
}

// ListItems handles GET /api/library-items
func (h *LibraryHandlers) ListItems(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	query := c.QueryParam("q")

	items, err := h.libraryService.List(ctx, userID, query, limit, offset)
	if err != nil {
		log.Printf("failed to list library items for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, items)
}

// CreateItem handles POST /api/library-items
func (h *LibraryHandlers) CreateItem(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var input services.LibraryItemInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	item, err := h.libraryService.Create(ctx, userID, &input)
	if err != nil {
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to create library item for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, item)
}

// GetItem handles GET /api/library-items/:id
func (h *LibraryHandlers) GetItem(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	itemID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	item, err := h.libraryService.Get(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "library item")
		}
		log.Printf("failed to load library item %s: %v", itemID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, item)
}

// UpdateItem handles PUT /api/library-items/:id
func (h *LibraryHandlers) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	itemID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var input services.LibraryItemInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	item, err := h.libraryService.Update(ctx, userID, itemID, &input)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "library item")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update library item %s: %v", itemID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, item)
}

// DeleteItem handles DELETE /api/library-items/:id
func (h *LibraryHandlers) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	itemID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	if err := h.libraryService.Delete(ctx, userID, itemID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "library item")
		}
		log.Printf("failed to delete library item %s: %v", itemID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
