package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// anyMatcher accepts any SQL text: these tests assert call shape and
// ordering (query vs exec, commit boundaries), not literal SQL strings.
type anyMatcher struct{}

func (anyMatcher) Match(expectedSQL, actualSQL string) error { return nil }

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyMatcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewStore(db, zap.NewNop()), mock
}

var campaignCols = []string{
	"id", "title", "activity", "country_code", "admin1_code", "admin2_code", "city_geoname_id",
	"location_name", "iso_language", "locale", "max_results", "min_rating", "min_population",
	"max_bots", "total_tasks", "completed_tasks", "failed_tasks", "created_at", "started_at",
	"completed_at", "status",
}

func campaignRow(c domain.Campaign) *sqlmock.Rows {
	return sqlmock.NewRows(campaignCols).AddRow(
		string(c.ID), c.Title, c.Activity, c.CountryCode, nil, nil, nil,
		c.LocationName, nil, nil, c.MaxResults, c.MinRating, nil,
		c.MaxBots, c.TotalTasks, c.CompletedTasks, c.FailedTasks, c.CreatedAt, c.StartedAt,
		c.CompletedAt, string(c.Status),
	)
}

var taskCols = []string{
	"id", "campaign_id", "geoname_id", "geoname_name", "search_seed", "status", "attempts",
	"last_error", "started_at", "completed_at",
}

func taskRow(tk domain.PlaceExtractionTask) *sqlmock.Rows {
	return sqlmock.NewRows(taskCols).AddRow(
		string(tk.ID), string(tk.CampaignID), tk.GeonameID, tk.GeonameName, tk.SearchSeed,
		string(tk.Status), tk.Attempts, nil, tk.StartedAt, tk.CompletedAt,
	)
}

func TestExecuteHappyPathCompletesCampaign(t *testing.T) {
	SnapshotInterval = time.Hour // keep the snapshot ticker from ever firing

	campaignID := domain.NewID()
	taskID := domain.NewID()

	pendingCampaign := domain.Campaign{
		ID: campaignID, Title: "coffee shops in Springfield", Activity: "coffee shops",
		CountryCode: "US", MaxResults: 20, MaxBots: 1, TotalTasks: 1, CreatedAt: time.Now().UTC(),
		Status: domain.CampaignPending,
	}
	inProgressCampaign := pendingCampaign.WithStatus(domain.CampaignInProgress)

	pendingTask := domain.PlaceExtractionTask{
		ID: taskID, CampaignID: campaignID, GeonameID: 123, GeonameName: "Springfield",
		SearchSeed: "coffee shops Springfield", Status: domain.TaskPending,
	}
	completedTask := pendingTask.WithStatus(domain.TaskCompleted)

	store, mock := newMockStore(t)

	// TX1: Execute's initial load + transition to IN_PROGRESS.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(pendingCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectCommit()

	// TX2: runOneTask transitions the task to IN_PROGRESS.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// TX3: extract reads the campaign for its SearchSpec.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()

	// TX4: completeTask persists the parsed place and completes the task.
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // place insert
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // task save
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // campaign save
	mock.ExpectCommit()

	// TX5: finalize computes the terminal status.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectQuery("").WillReturnRows(taskRow(completedTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drv := driver.NewFakeDriver([]driver.PlaceRecord{
		{Name: "Joe's Coffee", Address: "123 Main St"},
	})
	bus := eventbus.New(zap.NewNop())

	run := New(zap.NewNop(), store, drv, bus, campaignID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, run.Execute(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 1, drv.OpenCount)
	require.Equal(t, 1, drv.CloseCount)
}

func TestExecuteRejectsNonStartableCampaign(t *testing.T) {
	campaignID := domain.NewID()
	archived := domain.Campaign{ID: campaignID, Status: domain.CampaignArchived, MaxBots: 1}

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(archived))
	mock.ExpectRollback()

	drv := driver.NewFakeDriver(nil)
	bus := eventbus.New(zap.NewNop())
	run := New(zap.NewNop(), store, drv, bus, campaignID)

	err := run.Execute(context.Background())
	require.Error(t, err)
	require.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRetriesTransientFailureThenSucceeds(t *testing.T) {
	SnapshotInterval = time.Hour

	campaignID := domain.NewID()
	taskID := domain.NewID()

	pendingCampaign := domain.Campaign{
		ID: campaignID, Activity: "coffee shops", CountryCode: "US", MaxResults: 20,
		MaxBots: 1, TotalTasks: 1, CreatedAt: time.Now().UTC(), Status: domain.CampaignPending,
	}
	inProgressCampaign := pendingCampaign.WithStatus(domain.CampaignInProgress)

	pendingTask := domain.PlaceExtractionTask{
		ID: taskID, CampaignID: campaignID, GeonameID: 1, GeonameName: "Springfield",
		Status: domain.TaskPending,
	}
	// State as it would have been persisted after the first (failed) attempt:
	// IN_PROGRESS with Attempts=1, still under DefaultRetryBudget.
	retryTask := pendingTask
	retryTask.Status = domain.TaskInProgress
	retryTask.Attempts = 1
	completedTask := pendingTask
	completedTask.Status = domain.TaskCompleted
	completedTask.Attempts = 2

	store, mock := newMockStore(t)

	// TX1: initial load.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(pendingCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectCommit()

	// Attempt 1: task transitions to IN_PROGRESS, extract fails transiently,
	// task is re-enqueued (no further DB writes on the retry path itself).
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()

	// Attempt 2 (retry): succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(retryTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// finalize: the one task completed, so the campaign completes too.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectQuery("").WillReturnRows(taskRow(completedTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drv := driver.NewFakeDriver([]driver.PlaceRecord{{Name: "Place", Address: "Addr"}})
	drv.FailNavigateTimes = 1

	bus := eventbus.New(zap.NewNop())
	run := New(zap.NewNop(), store, drv, bus, campaignID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Execute(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestExecuteCrashedSessionReplacesAndSucceeds covers the same retry shape
// as TestExecuteRetriesTransientFailureThenSucceeds, but with a session
// that doesn't merely time out: CrashSessionOnNavigateFailure makes the
// post-failure sessionHealthy check fail too, so the run must go through
// Pool.Replace (spec.md §8's "driver crash" boundary case) rather than a
// plain Release before the retry succeeds.
func TestExecuteCrashedSessionReplacesAndSucceeds(t *testing.T) {
	SnapshotInterval = time.Hour

	campaignID := domain.NewID()
	taskID := domain.NewID()

	pendingCampaign := domain.Campaign{
		ID: campaignID, Activity: "coffee shops", CountryCode: "US", MaxResults: 20,
		MaxBots: 1, TotalTasks: 1, CreatedAt: time.Now().UTC(), Status: domain.CampaignPending,
	}
	inProgressCampaign := pendingCampaign.WithStatus(domain.CampaignInProgress)

	pendingTask := domain.PlaceExtractionTask{
		ID: taskID, CampaignID: campaignID, GeonameID: 1, GeonameName: "Springfield",
		Status: domain.TaskPending,
	}
	retryTask := pendingTask
	retryTask.Status = domain.TaskInProgress
	retryTask.Attempts = 1
	completedTask := pendingTask
	completedTask.Status = domain.TaskCompleted
	completedTask.Attempts = 2

	store, mock := newMockStore(t)

	// TX1: initial load.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(pendingCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectCommit()

	// Attempt 1: task transitions to IN_PROGRESS, Navigate fails and kills
	// the session, sessionHealthy's CurrentURL check also fails, Replace
	// opens a fresh session, task is re-enqueued.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()

	// Attempt 2 (retry, on the replaced session): succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(retryTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// finalize: the one task completed, so the campaign completes too.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectQuery("").WillReturnRows(taskRow(completedTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drv := driver.NewFakeDriver([]driver.PlaceRecord{{Name: "Place", Address: "Addr"}})
	drv.FailNavigateTimes = 1
	drv.CrashSessionOnNavigateFailure = true

	bus := eventbus.New(zap.NewNop())
	run := New(zap.NewNop(), store, drv, bus, campaignID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Execute(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, 2, drv.OpenCount, "the crashed session must have been replaced with a fresh Open")
}

// TestExecutePermanentFailureFailsCampaign covers spec.md §8 scenario 3:
// a Permanent driver error fails the task after a single attempt, with no
// retry, and the campaign's only task failing fails the campaign too.
func TestExecutePermanentFailureFailsCampaign(t *testing.T) {
	SnapshotInterval = time.Hour

	campaignID := domain.NewID()
	taskID := domain.NewID()

	pendingCampaign := domain.Campaign{
		ID: campaignID, Activity: "coffee shops", CountryCode: "US", MaxResults: 20,
		MaxBots: 1, TotalTasks: 1, CreatedAt: time.Now().UTC(), Status: domain.CampaignPending,
	}
	inProgressCampaign := pendingCampaign.WithStatus(domain.CampaignInProgress)

	pendingTask := domain.PlaceExtractionTask{
		ID: taskID, CampaignID: campaignID, GeonameID: 1, GeonameName: "Springfield",
		Status: domain.TaskPending,
	}
	failedTask := pendingTask
	failedTask.Status = domain.TaskFailed
	failedTask.Attempts = 1

	store, mock := newMockStore(t)

	// TX1: initial load.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(pendingCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectCommit()

	// Attempt: task transitions to IN_PROGRESS, ParseResults returns
	// Permanent, no retry — failTask persists FAILED directly.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(taskRow(pendingTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // task save FAILED
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // campaign failed_tasks++
	mock.ExpectCommit()

	// finalize: the one task failed, so the campaign fails too.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(campaignRow(inProgressCampaign))
	mock.ExpectQuery("").WillReturnRows(taskRow(failedTask))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	drv := driver.NewFakeDriver(nil)
	drv.FailParsePermanently = true

	bus := eventbus.New(zap.NewNop())
	run := New(zap.NewNop(), store, drv, bus, campaignID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Execute(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}
