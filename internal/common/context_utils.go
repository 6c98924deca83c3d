package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
)

// Sentinel errors so callers can tell "not found" from "query failed".
var (
	ErrNotFound          = errors.New("not found")
	ErrNoCustomer        = errors.New("no billing customer on file")
	ErrLimitExceeded     = errors.New("plan limit exceeded")
	ErrInvalidTransition = errors.New("invalid subscription status transition")
)

type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

// ValidationErrorf builds an error that handlers map to a 400 response.
func ValidationErrorf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err (or anything it wraps) came from
// ValidationErrorf.
func IsValidationError(err error) bool {
	var v *validationError
	return errors.As(err, &v)
}

// ErrorResponse is the JSON error envelope for every API endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendError sends a JSON error response with the given status code.
func SendError(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: message})
}

// SendValidationError sends a 400 validation error response.
func SendValidationError(c echo.Context, message string) error {
	return SendError(c, http.StatusBadRequest, message)
}

// SendServerError sends a generic 500 without leaking internal detail.
func SendServerError(c echo.Context) error {
	return SendError(c, http.StatusInternalServerError, "internal server error")
}

// SendNotFoundError sends a 404 for the named resource.
func SendNotFoundError(c echo.Context, resource string) error {
	return SendError(c, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

// SendUnauthorizedError sends a 401 with a generic message.
func SendUnauthorizedError(c echo.Context) error {
	return SendError(c, http.StatusUnauthorized, "unauthorized")
}

// GetUserIDFromContext extracts the authenticated user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// WithUserID returns a context carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// ValidateUUID validates a UUID path or body parameter.
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, ValidationErrorf("%s is required", fieldName)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, ValidationErrorf("%s is not a valid UUID", fieldName)
	}
	return id, nil
}

// ValidateRequiredString validates required string fields.
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationErrorf("%s is required", fieldName)
	}
	return nil
}

// ValidateEmail performs a minimal email sanity check.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationErrorf("email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at:], ".") {
		return ValidationErrorf("email is not valid")
	}
	return nil
}

// ValidateInvoiceStatus validates invoice status values.
func ValidateInvoiceStatus(status string) error {
	validStatuses := map[string]bool{
		"draft": true, "sent": true, "paid": true, "overdue": true, "canceled": true,
	}
	if !validStatuses[status] {
		return ValidationErrorf("invoice status must be one of: draft, sent, paid, overdue, canceled")
	}
	return nil
}

// ValidateQuoteStatus validates quote status values.
func ValidateQuoteStatus(status string) error {
	validStatuses := map[string]bool{
		"draft": true, "sent": true, "accepted": true, "declined": true,
		"expired": true, "converted": true,
	}
	if !validStatuses[status] {
		return ValidationErrorf("quote status must be one of: draft, sent, accepted, declined, expired, converted")
	}
	return nil
}

// ValidateLineItem validates a billable line item before totals are computed.
func ValidateLineItem(description string, quantity, unitPrice float64) error {
	if strings.TrimSpace(description) == "" {
		return ValidationErrorf("item description is required")
	}
	if quantity <= 0 {
		return ValidationErrorf("item quantity must be positive")
	}
	if quantity > 1000000 {
		return ValidationErrorf("item quantity cannot exceed 1,000,000")
	}
	if unitPrice < 0 {
		return ValidationErrorf("item unit price cannot be negative")
	}
	if unitPrice > 10000000 {
		return ValidationErrorf("item unit price cannot exceed 10,000,000")
	}
	return nil
}

// ValidatePaginationParams clamps pagination parameters to safe bounds.
func ValidatePaginationParams(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ValidateDateFormat validates YYYY-MM-DD date strings.
func ValidateDateFormat(dateStr, fieldName string) error {
	if strings.TrimSpace(dateStr) == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		return ValidationErrorf("%s must be in YYYY-MM-DD format", fieldName)
	}
	return nil
}

// SafeString safely dereferences string pointers.
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
