package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"buildledger/internal/common"
	"buildledger/internal/services"

	"github.com/labstack/echo/v4"
)

// InvoiceHandlers handles HTTP requests for invoices
type InvoiceHandlers struct {
	invoiceService services.InvoiceService
	storageService services.StorageService
}

func NewInvoiceHandlers(invoiceService services.InvoiceService, storageService services.StorageService) *InvoiceHandlers {
	return &InvoiceHandlers{invoiceService: invoiceService, storageService: storageService}
}

// ListInvoices handles GET /api/invoices
func (h *InvoiceHandlers) ListInvoices(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	status := c.QueryParam("status")

	invoices, err := h.invoiceService.List(ctx, userID, status, limit, offset)
	if err != nil {
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to list invoices for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, invoices)
}

// CreateInvoice handles POST /api/invoices
func (h *InvoiceHandlers) CreateInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var input services.CreateInvoiceInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	invoice, err := h.invoiceService.Create(ctx, userID, &input)
	if err != nil {
		if errors.Is(err, common.ErrLimitExceeded) {
			return common.SendError(c, http.StatusBadRequest, err.Error())
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to create invoice for user %s: %v", userID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, invoice)
}

// GetInvoice handles GET /api/invoices/:id
func (h *InvoiceHandlers) GetInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	invoice, err := h.invoiceService.Get(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		log.Printf("failed to load invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, invoice)
}

// UpdateInvoice handles PUT /api/invoices/:id
func (h *InvoiceHandlers) UpdateInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var input services.CreateInvoiceInput
	if err := c.Bind(&input); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	invoice, err := h.invoiceService.Update(ctx, userID, invoiceID, &input)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, invoice)
}

// DeleteInvoice handles DELETE /api/invoices/:id
func (h *InvoiceHandlers) DeleteInvoice(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	if err := h.invoiceService.Delete(ctx, userID, invoiceID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		log.Printf("failed to delete invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

// UpdateInvoiceStatus handles PUT /api/invoices/:id/status
func (h *InvoiceHandlers) UpdateInvoiceStatus(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendValidationError(c, "invalid request format")
	}

	if err := h.invoiceService.UpdateStatus(ctx, userID, invoiceID, req.Status); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		if isValidationError(err) {
			return common.SendValidationError(c, err.Error())
		}
		log.Printf("failed to update invoice %s status: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": req.Status})
}

// GetPublicInvoice handles GET /public/invoices/:token without auth. The
// token is the only credential.
func (h *InvoiceHandlers) GetPublicInvoice(c echo.Context) error {
	token, err := common.ValidateUUID(c.Param("token"), "token")
	if err != nil {
		return common.SendNotFoundError(c, "invoice")
	}

	invoice, err := h.invoiceService.GetByPublicToken(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		log.Printf("failed to load public invoice: %v", err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, invoice)
}

// UploadAttachment handles POST /api/invoices/:id/attachment
func (h *InvoiceHandlers) UploadAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return common.SendValidationError(c, "file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("failed to open upload: %v", err)
		return common.SendServerError(c)
	}
	defer file.Close()

	objectName, err := h.storageService.UploadAttachment(ctx, userID, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file, fileHeader.Size)
	if err != nil {
		log.Printf("failed to upload attachment for invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	if err := h.invoiceService.AttachObject(ctx, userID, invoiceID, objectName, fileHeader.Size); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		log.Printf("failed to link attachment for invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusCreated, map[string]string{"object_name": objectName})
}

// GetAttachmentURL handles GET /api/invoices/:id/attachment
func (h *InvoiceHandlers) GetAttachmentURL(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	invoiceID, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, err.Error())
	}

	invoice, err := h.invoiceService.Get(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.SendNotFoundError(c, "invoice")
		}
		log.Printf("failed to load invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}
	if invoice.AttachmentObject == nil || *invoice.AttachmentObject == "" {
		return common.SendNotFoundError(c, "attachment")
	}

	url, err := h.storageService.GetPresignedURL(ctx, *invoice.AttachmentObject, 15*time.Minute)
	if err != nil {
		log.Printf("failed to presign attachment for invoice %s: %v", invoiceID, err)
		return common.SendServerError(c)
	}

	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
