package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/eventing"
)

type captureRecorder struct {
	events []any
}

func (r *captureRecorder) Record(ctx context.Context, exec eventing.Execer, event any) error {
	r.events = append(r.events, event)
	return nil
}

// idListConverter lets []int64 arguments through the way the pgx driver does.
type idListConverter struct{}

func (idListConverter) ConvertValue(v any) (driver.Value, error) {
	if ids, ok := v.([]int64); ok {
		return ids, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

type BatchStoreTestSuite struct {
	suite.Suite
	mock     sqlmock.Sqlmock
	db       *sql.DB
	recorder *captureRecorder
	store    *Store
}

func (s *BatchStoreTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New(sqlmock.ValueConverterOption(idListConverter{}))
	s.Require().NoError(err)
	s.recorder = &captureRecorder{}
	s.store = NewStore(s.db, WithRecorder(s.recorder))
	s.store.clock = func() time.Time { return time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC) }
}

func (s *BatchStoreTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

var runColumns = []string{"id", "location_id", "run_year", "run_month", "run_date", "audit_user_id", "validity_from", "validity_to"}

func (s *BatchStoreTestSuite) TestWithinTx_LocksAndCommits() {
	loc := int64(12)
	key := batch.NewRunKey(2024, 3, &loc)

	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1, $2)")).
		WithArgs(202403, 12).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery("FROM batch_runs").
		WithArgs(2024, 3, int64(12)).
		WillReturnRows(sqlmock.NewRows(runColumns))
	s.mock.ExpectCommit()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		if err := tx.LockRunKey(ctx, key); err != nil {
			return err
		}
		run, err := tx.FindActiveRun(ctx, key)
		s.Nil(run)
		return err
	})
	s.NoError(err)
}

func (s *BatchStoreTestSuite) TestWithinTx_RollsBackOnError() {
	now := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM batch_runs").
		WithArgs(2024, 3, int64(-1)).
		WillReturnRows(sqlmock.NewRows(runColumns).AddRow(5, nil, 2024, 3, now, 1, now, nil))
	s.mock.ExpectRollback()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		key := batch.NewRunKey(2024, 3, nil)
		run, err := tx.FindActiveRun(ctx, key)
		s.Require().NoError(err)
		s.Require().NotNil(run)
		s.Equal(int64(5), run.ID())
		s.Nil(run.Key().LocationID)
		return batch.NewAlreadyRun(key)
	})
	s.ErrorIs(err, batch.ErrAlreadyRun)
}

func (s *BatchStoreTestSuite) TestInsertBatchRun_UniqueViolationIsAlreadyRun() {
	run, err := batch.NewBatchRun(batch.NewRunKey(2024, 3, nil), 9, time.Now())
	s.Require().NoError(err)

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("INSERT INTO batch_runs").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "batch_runs_active_key"})
	s.mock.ExpectRollback()

	err = s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		return tx.InsertBatchRun(ctx, run)
	})
	s.ErrorIs(err, batch.ErrAlreadyRun)
}

func (s *BatchStoreTestSuite) TestInsertBatchRun_AssignsID() {
	loc := int64(3)
	run, err := batch.NewBatchRun(batch.NewRunKey(2024, 3, &loc), 9, time.Now())
	s.Require().NoError(err)

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("INSERT INTO batch_runs").
		WithArgs(int64(3), 2024, 3, sqlmock.AnyArg(), int64(9), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	s.mock.ExpectCommit()

	err = s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		return tx.InsertBatchRun(ctx, run)
	})
	s.NoError(err)
	s.Equal(int64(41), run.ID())
}

func (s *BatchStoreTestSuite) TestFinalizeValuatedClaims() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("UPDATE claims c").
		WithArgs(int64(7), []int64{1, 2, 3}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(3))
	s.mock.ExpectCommit()

	var updated []int64
	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		var err error
		updated, err = tx.FinalizeValuatedClaims(ctx, 7, []int64{1, 2, 3})
		return err
	})
	s.NoError(err)
	s.Equal([]int64{1, 3}, updated)
}

func (s *BatchStoreTestSuite) TestFinalizeValuatedClaims_NoClaims() {
	s.mock.ExpectBegin()
	s.mock.ExpectCommit()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		updated, err := tx.FinalizeValuatedClaims(ctx, 7, nil)
		s.Empty(updated)
		return err
	})
	s.NoError(err)
}

func (s *BatchStoreTestSuite) TestSetValuatedPrice_MissingDetail() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE claim_services SET price_valuated = $1 WHERE id = $2")).
		WithArgs(decimal.NewFromInt(200), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		return tx.SetValuatedPrice(ctx, batch.DetailService, 21, decimal.NewFromInt(200))
	})
	s.ErrorIs(err, batch.ErrDataError)
}

func (s *BatchStoreTestSuite) TestListWindowPremiums() {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM premiums pr").
		WithArgs(int64(10), start, end).
		WillReturnRows(sqlmock.NewRows([]string{"id", "amount", "policy_id", "product_id", "effective_date", "expiry_date"}).
			AddRow(1, "120.50", 4, 10, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)))
	s.mock.ExpectCommit()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		premiums, err := tx.ListWindowPremiums(ctx, 10, start, end)
		s.Require().NoError(err)
		s.Require().Len(premiums, 1)
		s.True(premiums[0].Amount.Equal(decimal.RequireFromString("120.50")))
		s.Equal(int64(4), premiums[0].Policy.ID)
		return nil
	})
	s.NoError(err)
}

func (s *BatchStoreTestSuite) TestGetLocation_NotFound() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM locations").WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)
	s.mock.ExpectCommit()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		loc, err := tx.GetLocation(ctx, 99)
		s.Nil(loc)
		return err
	})
	s.NoError(err)
}

func (s *BatchStoreTestSuite) TestCapitation_GenerateRecordsRequest() {
	region := int64(2)
	key := batch.CapitationKey{RegionID: &region, ProductID: 10, Year: 2024, Month: 3}

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("FROM capitation_payments").
		WithArgs(int64(2), int64(-1), int64(10), 2024, 3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	s.mock.ExpectExec("INSERT INTO capitation_payments").
		WithArgs(int64(2), nil, int64(10), 2024, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	s.mock.ExpectCommit()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		exists, err := tx.Capitation().Exists(ctx, key)
		s.Require().NoError(err)
		s.False(exists)
		return tx.Capitation().Generate(ctx, key)
	})
	s.NoError(err)
	s.Require().Len(s.recorder.events, 1)
	req, ok := s.recorder.events[0].(batch.CapitationRequested)
	s.Require().True(ok)
	s.Equal(int64(10), req.ProductID)
	s.Nil(req.DistrictID)
}

func (s *BatchStoreTestSuite) TestBeginFailure() {
	s.mock.ExpectBegin().WillReturnError(errors.New("conn refused"))

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx batch.Tx) error {
		s.Fail("fn must not run")
		return nil
	})
	s.ErrorContains(err, "conn refused")
}

func TestBatchStoreTestSuite(t *testing.T) {
	suite.Run(t, new(BatchStoreTestSuite))
}

