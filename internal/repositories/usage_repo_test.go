package repositories

import (
	"context"
	"testing"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type UsageRepoTestSuite struct {
	suite.Suite
	mock    pgxmock.PgxPoolIface
	repo    UsageRepository
	subID   uuid.UUID
	context context.Context
}

func (suite *UsageRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewUsageRepo(mock)
	suite.subID = uuid.New()
	suite.context = context.Background()
}

func (suite *UsageRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestUsageRepoTestSuite(t *testing.T) {
	suite.Run(t, new(UsageRepoTestSuite))
}

func (suite *UsageRepoTestSuite) TestIncrement_IsAdditive() {
	// The upsert adds the delta to the existing count instead of
	// overwriting it with the new value.
	suite.mock.ExpectExec(`(?s)INSERT INTO subscription_usage.*ON CONFLICT \(subscription_id, feature\).*usage_count = GREATEST\(subscription_usage\.usage_count \+ \$3, 0\)`).
		WithArgs(suite.subID, models.UsageFeatureInvoices, int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Increment(suite.context, suite.subID, models.UsageFeatureInvoices, 3)
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *UsageRepoTestSuite) TestIncrement_NegativeDelta() {
	suite.mock.ExpectExec(`(?s)INSERT INTO subscription_usage.*GREATEST`).
		WithArgs(suite.subID, models.UsageFeatureInvoices, int64(-1)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Increment(suite.context, suite.subID, models.UsageFeatureInvoices, -1)
	assert.NoError(suite.T(), err)
}

func (suite *UsageRepoTestSuite) TestGet_Success() {
	now := time.Now()
	rows := pgxmock.NewRows([]string{"subscription_id", "feature", "usage_count", "last_updated"}).
		AddRow(suite.subID, models.UsageFeatureInvoices, int64(4), now)

	suite.mock.ExpectQuery(`(?s)SELECT .* FROM subscription_usage.*WHERE subscription_id = \$1 AND feature = \$2`).
		WithArgs(suite.subID, models.UsageFeatureInvoices).
		WillReturnRows(rows)

	metric, err := suite.repo.Get(suite.context, suite.subID, models.UsageFeatureInvoices)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(4), metric.UsageCount)
}

func (suite *UsageRepoTestSuite) TestGet_NotFound() {
	suite.mock.ExpectQuery(`(?s)SELECT .* FROM subscription_usage`).
		WithArgs(suite.subID, models.UsageFeatureStorageMB).
		WillReturnError(pgx.ErrNoRows)

	metric, err := suite.repo.Get(suite.context, suite.subID, models.UsageFeatureStorageMB)
	assert.ErrorIs(suite.T(), err, pgx.ErrNoRows)
	assert.Nil(suite.T(), metric)
}

func (suite *UsageRepoTestSuite) TestList() {
	now := time.Now()
	rows := pgxmock.NewRows([]string{"subscription_id", "feature", "usage_count", "last_updated"}).
		AddRow(suite.subID, models.UsageFeatureAPICalls, int64(120), now).
		AddRow(suite.subID, models.UsageFeatureInvoices, int64(7), now)

	suite.mock.ExpectQuery(`(?s)SELECT .* FROM subscription_usage.*WHERE subscription_id = \$1`).
		WithArgs(suite.subID).
		WillReturnRows(rows)

	metrics, err := suite.repo.List(suite.context, suite.subID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), metrics, 2)
	assert.Equal(suite.T(), int64(120), metrics[0].UsageCount)
}

func (suite *UsageRepoTestSuite) TestReset() {
	suite.mock.ExpectExec(`(?s)UPDATE subscription_usage.*SET usage_count = 0`).
		WithArgs(suite.subID, models.UsageFeatureInvoices).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.Reset(suite.context, suite.subID, models.UsageFeatureInvoices)
	assert.NoError(suite.T(), err)
}
