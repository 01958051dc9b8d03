package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type anyMatcher struct{}

func (anyMatcher) Match(expectedSQL, actualSQL string) error { return nil }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyMatcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, zap.NewNop()), mock
}

func TestWithUnitOfWorkCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		return uow.Campaigns.Save(ctx, domain.Campaign{ID: domain.NewID(), Activity: "a", CountryCode: "US", MaxBots: 1})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithUnitOfWorkRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("boom")
	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithUnitOfWorkRollsBackAndRepanicsOnPanic(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
			panic("unexpected")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepositoryGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		_, err := uow.Campaigns.Get(ctx, domain.NewID())
		return err
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestTaskRepositoryPendingTasksOf(t *testing.T) {
	store, mock := newMockStore(t)
	campaignID := domain.NewID()
	task1, task2 := domain.NewID(), domain.NewID()

	rows := sqlmock.NewRows(taskColumns).
		AddRow(string(task1), string(campaignID), int64(1), "Springfield", "coffee", string(domain.TaskPending), 0, nil, nil, nil).
		AddRow(string(task2), string(campaignID), int64(2), "Shelbyville", "coffee", string(domain.TaskPending), 0, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(rows)
	mock.ExpectCommit()

	var tasks []domain.PlaceExtractionTask
	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		var err error
		tasks, err = uow.Tasks.PendingTasksOf(ctx, campaignID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, task1, tasks[0].ID)
	assert.Equal(t, domain.TaskPending, tasks[0].Status)
}

func TestPlaceRepositorySaveReturnsFalseOnFingerprintConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 0)) // ON CONFLICT DO NOTHING, 0 rows affected
	mock.ExpectCommit()

	place := domain.NewExtractedPlace(domain.NewID(), "Dup Cafe", "1 Main St")
	var inserted bool
	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		var err error
		inserted, err = uow.Places.Save(ctx, place)
		return err
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceRepositorySaveInsertsChildReviewsWhenNew(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // place insert
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // review insert
	mock.ExpectCommit()

	place := domain.NewExtractedPlace(domain.NewID(), "New Cafe", "2 Main St")
	place.Reviews = []domain.ExtractedPlaceReview{
		{ID: domain.NewID(), PlaceID: place.ID, Author: "Bob", Rating: 5, Text: "Nice", PostedAt: time.Now().UTC()},
	}

	var inserted bool
	err := store.WithUnitOfWork(context.Background(), func(ctx context.Context, uow *UnitOfWork) error {
		var err error
		inserted, err = uow.Places.Save(ctx, place)
		return err
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

var taskColumns = []string{
	"id", "campaign_id", "geoname_id", "geoname_name", "search_seed", "status", "attempts",
	"last_error", "started_at", "completed_at",
}
