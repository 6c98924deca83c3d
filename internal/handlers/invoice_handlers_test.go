package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"buildledger/internal/common"
	"buildledger/internal/models"
	"buildledger/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) Create(ctx context.Context, userID uuid.UUID, input *services.CreateInvoiceInput) (*models.Invoice, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Get(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GetByPublicToken(ctx context.Context, token uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Update(ctx context.Context, userID, invoiceID uuid.UUID, input *services.CreateInvoiceInput) (*models.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Delete(ctx context.Context, userID, invoiceID uuid.UUID) error {
	args := m.Called(ctx, userID, invoiceID)
	return args.Error(0)
}

func (m *MockInvoiceService) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) UpdateStatus(ctx context.Context, userID, invoiceID uuid.UUID, status string) error {
	args := m.Called(ctx, userID, invoiceID, status)
	return args.Error(0)
}

func (m *MockInvoiceService) AttachObject(ctx context.Context, userID, invoiceID uuid.UUID, objectName string, sizeBytes int64) error {
	args := m.Called(ctx, userID, invoiceID, objectName, sizeBytes)
	return args.Error(0)
}

func (m *MockInvoiceService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).(int64), args.Error(1)
}

type MockStorageService struct {
	mock.Mock
}

func (m *MockStorageService) UploadAttachment(ctx context.Context, userID uuid.UUID, filename, contentType string, reader io.Reader, objectSize int64) (string, error) {
	args := m.Called(ctx, userID, filename, contentType, reader, objectSize)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) GetPresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) DeleteAttachment(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}

func (m *MockStorageService) EnsureBucketExists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// InvoiceHandlersTestSuite defines the test suite
type InvoiceHandlersTestSuite struct {
	suite.Suite
	echo            *echo.Echo
	mockInvoiceSvc  *MockInvoiceService
	mockStorageSvc  *MockStorageService
	handlers        *InvoiceHandlers
	userID          uuid.UUID
}

func (suite *InvoiceHandlersTestSuite) SetupTest() {
	suite.echo = echo.New()
	suite.mockInvoiceSvc = &MockInvoiceService{}
	suite.mockStorageSvc = &MockStorageService{}
	suite.handlers = NewInvoiceHandlers(suite.mockInvoiceSvc, suite.mockStorageSvc)
	suite.userID = uuid.New()
}

func (suite *InvoiceHandlersTestSuite) TearDownTest() {
	suite.mockInvoiceSvc.AssertExpectations(suite.T())
	suite.mockStorageSvc.AssertExpectations(suite.T())
}

func TestInvoiceHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(InvoiceHandlersTestSuite))
}

// newContext builds an echo context carrying the authenticated user, the
// way the JWT middleware does in production.
func (suite *InvoiceHandlersTestSuite) newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(common.WithUserID(req.Context(), suite.userID))
	rec := httptest.NewRecorder()
	return suite.echo.NewContext(req, rec), rec
}

func (suite *InvoiceHandlersTestSuite) TestListInvoices_Unauthenticated() {
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)

	err := suite.handlers.ListInvoices(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
	suite.mockInvoiceSvc.AssertNotCalled(suite.T(), "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *InvoiceHandlersTestSuite) TestListInvoices_FiltersByStatus() {
	invoices := []*models.Invoice{{ID: uuid.New(), UserID: suite.userID, Status: "sent"}}

	suite.mockInvoiceSvc.On("List", mock.Anything, suite.userID, "sent", 10, 0).Return(invoices, nil).Once()

	c, rec := suite.newContext(http.MethodGet, "/api/invoices?status=sent&limit=10", "")
	err := suite.handlers.ListInvoices(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *InvoiceHandlersTestSuite) TestCreateInvoice_Success() {
	invoice := &models.Invoice{
		ID:            uuid.New(),
		UserID:        suite.userID,
		InvoiceNumber: "INV-2025-09-0001",
		Status:        "draft",
		Total:         132,
	}

	suite.mockInvoiceSvc.On("Create", mock.Anything, suite.userID, mock.MatchedBy(func(input *services.CreateInvoiceInput) bool {
		return input.CustomerName == "Hilltop Builders" && len(input.Items) == 1
	})).Return(invoice, nil).Once()

	body := `{"customer_name":"Hilltop Builders","tax_rate":10,"items":[{"description":"Framing labor","quantity":2,"unit_price":50}]}`
	c, rec := suite.newContext(http.MethodPost, "/api/invoices", body)
	err := suite.handlers.CreateInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusCreated, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "INV-2025-09-0001")
}

func (suite *InvoiceHandlersTestSuite) TestCreateInvoice_LimitExceeded() {
	limitErr := fmt.Errorf("%w: invoices (5/5)", common.ErrLimitExceeded)
	suite.mockInvoiceSvc.On("Create", mock.Anything, suite.userID, mock.Anything).Return(nil, limitErr).Once()

	body := `{"customer_name":"Hilltop Builders","items":[{"description":"Framing labor","quantity":2,"unit_price":50}]}`
	c, rec := suite.newContext(http.MethodPost, "/api/invoices", body)
	err := suite.handlers.CreateInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), "limit")
}

func (suite *InvoiceHandlersTestSuite) TestGetInvoice_NotFound() {
	invoiceID := uuid.New()

	suite.mockInvoiceSvc.On("Get", mock.Anything, suite.userID, invoiceID).Return(nil, common.ErrNotFound).Once()

	c, rec := suite.newContext(http.MethodGet, "/api/invoices/"+invoiceID.String(), "")
	c.SetParamNames("id")
	c.SetParamValues(invoiceID.String())
	err := suite.handlers.GetInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *InvoiceHandlersTestSuite) TestGetInvoice_InvalidID() {
	c, rec := suite.newContext(http.MethodGet, "/api/invoices/not-a-uuid", "")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := suite.handlers.GetInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *InvoiceHandlersTestSuite) TestUpdateInvoiceStatus_Success() {
	invoiceID := uuid.New()

	suite.mockInvoiceSvc.On("UpdateStatus", mock.Anything, suite.userID, invoiceID, "sent").Return(nil).Once()

	c, rec := suite.newContext(http.MethodPut, "/api/invoices/"+invoiceID.String()+"/status", `{"status":"sent"}`)
	c.SetParamNames("id")
	c.SetParamValues(invoiceID.String())
	err := suite.handlers.UpdateInvoiceStatus(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *InvoiceHandlersTestSuite) TestGetPublicInvoice_NoAuthRequired() {
	token := uuid.New()
	invoice := &models.Invoice{ID: uuid.New(), PublicToken: token, Status: "sent"}

	suite.mockInvoiceSvc.On("GetByPublicToken", mock.Anything, token).Return(invoice, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/public/invoices/"+token.String(), nil)
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues(token.String())
	err := suite.handlers.GetPublicInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *InvoiceHandlersTestSuite) TestGetPublicInvoice_MalformedTokenHidesExistence() {
	req := httptest.NewRequest(http.MethodGet, "/public/invoices/guessed-token", nil)
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)
	c.SetParamNames("token")
	c.SetParamValues("guessed-token")
	err := suite.handlers.GetPublicInvoice(c)

	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}
