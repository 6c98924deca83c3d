package repositories

import (
	"context"
	"testing"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type QuoteRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    QuoteRepository
	userID  uuid.UUID
	quoteID uuid.UUID
	context context.Context
}

func (suite *QuoteRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewQuoteRepo(mock)
	suite.userID = uuid.New()
	suite.quoteID = uuid.New()
	suite.context = context.Background()
}

func (suite *QuoteRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestQuoteRepoTestSuite(t *testing.T) {
	suite.Run(t, new(QuoteRepoTestSuite))
}

func (suite *QuoteRepoTestSuite) buildQuote() *models.Quote {
	validUntil := time.Now().UTC().AddDate(0, 0, 30)
	quote := &models.Quote{
		ID:           suite.quoteID,
		UserID:       suite.userID,
		QuoteNumber:  "QUO-2025-09-0001",
		CustomerName: "Acme Builders",
		Status:       "draft",
		Subtotal:     100,
		TaxRate:      10,
		TaxAmount:    10,
		Total:        110,
		PublicToken:  uuid.New(),
		ValidUntil:   &validUntil,
	}
	quote.Items = []models.QuoteItem{
		{
			ID:          uuid.New(),
			QuoteID:     suite.quoteID,
			Description: "Framing labor",
			Quantity:    2,
			UnitPrice:   50,
			Amount:      100,
		},
	}
	return quote
}

func (suite *QuoteRepoTestSuite) TestUpdate_ReplacesLineItemsInTx() {
	quote := suite.buildQuote()
	quote.Items = []models.QuoteItem{
		{
			ID:          uuid.New(),
			QuoteID:     suite.quoteID,
			Description: "Drywall install",
			Quantity:    3,
			UnitPrice:   40,
			Amount:      120,
		},
	}
	item := quote.Items[0]

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`(?s)UPDATE quotes.*WHERE user_id = \$9 AND id = \$10`).
		WithArgs(quote.ClientID, quote.CustomerName, quote.Status, quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.Total, quote.ValidUntil, quote.UserID, quote.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`DELETE FROM quote_items WHERE quote_id = \$1`).
		WithArgs(quote.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	suite.mock.ExpectExec(`INSERT INTO quote_items`).
		WithArgs(item.ID, item.QuoteID, item.Description, item.Quantity, item.UnitPrice, item.Amount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectCommit()

	err := suite.repo.Update(suite.context, quote)
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *QuoteRepoTestSuite) TestUpdate_RollsBackOnItemFailure() {
	quote := suite.buildQuote()
	item := quote.Items[0]

	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`(?s)UPDATE quotes.*WHERE user_id = \$9 AND id = \$10`).
		WithArgs(quote.ClientID, quote.CustomerName, quote.Status, quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.Total, quote.ValidUntil, quote.UserID, quote.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	suite.mock.ExpectExec(`DELETE FROM quote_items WHERE quote_id = \$1`).
		WithArgs(quote.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	suite.mock.ExpectExec(`INSERT INTO quote_items`).
		WithArgs(item.ID, item.QuoteID, item.Description, item.Quantity, item.UnitPrice, item.Amount).
		WillReturnError(assertError{})
	suite.mock.ExpectRollback()

	err := suite.repo.Update(suite.context, quote)
	assert.Error(suite.T(), err)
}

func (suite *QuoteRepoTestSuite) TestMarkConverted_StampsInvoiceID() {
	invoiceID := uuid.New()

	suite.mock.ExpectExec(`(?s)UPDATE quotes.*SET status = 'converted', converted_invoice_id = \$1.*WHERE user_id = \$2 AND id = \$3`).
		WithArgs(invoiceID, suite.userID, suite.quoteID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.MarkConverted(suite.context, suite.userID, suite.quoteID, invoiceID)
	assert.NoError(suite.T(), err)
}
