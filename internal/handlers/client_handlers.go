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

// ClientHandlers handles HTTP requests for client records
type ClientHandlers struct {
	clientService services.ClientService
}

func NewClientHandlers(clientService services.ClientService) *ClientHandlers {
	return &ClientHandlers{clientService: clientService}
}

// ListClients handles GET /api/clients
func (h *ClientHandlers) ListClients(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	clients, err := h.clientService.List(ctx, userID, limit, offset)
	if err != nil {
		log.Printf("failed to list clients for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, clients)
}

// CreateClient handles POST /api/clients
func (h *ClientHandlers) CreateClient(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var input services.ClientInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	client, err := h.clientService.Create(ctx, userID, &input)
	if err != nil {
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to create client for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, client)
}

// GetClient handles GET /api/clients/:id
func (h *ClientHandlers) GetClient(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	clientID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	client, err := h.clientService.Get(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "client")
		}
		log.Printf("failed to load client %s: %v", clientID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, client)
}

// UpdateClient handles PUT /api/clients/:id
func (h *ClientHandlers) UpdateClient(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	clientID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var input services.ClientInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	client, err := h.clientService.Update(ctx, userID, clientID, &input)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "client")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update client %s: %v", clientID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, client)
}

// DeleteClient handles DELETE /api/clients/:id
func (h *ClientHandlers) DeleteClient(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	clientID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	if err := h.clientService.Delete(ctx, userID, clientID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "client")
		}
		log.Printf("failed to delete client %s: %v", clientID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
