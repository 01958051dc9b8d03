package campaignsvc

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/geonames"
	"github.com/placescout/scoutengine/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type anyMatcher struct{}

func (anyMatcher) Match(expectedSQL, actualSQL string) error { return nil }

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(anyMatcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.NewStore(db, zap.NewNop()), mock
}

type fakeResolver struct {
	cities []geonames.City
	err    error
}

func (f *fakeResolver) Countries(ctx context.Context) ([]geonames.Country, error) { return nil, nil }
func (f *fakeResolver) Regions(ctx context.Context, cc string) ([]geonames.Region, error) {
	return nil, nil
}
func (f *fakeResolver) Provinces(ctx context.Context, cc, admin1 string) ([]geonames.Region, error) {
	return nil, nil
}
func (f *fakeResolver) Cities(ctx context.Context, cc, admin1, admin2 string, minPop int64) ([]geonames.Region, error) {
	return nil, nil
}
func (f *fakeResolver) ResolveCities(ctx context.Context, q geonames.CityQuery) ([]geonames.City, error) {
	return f.cities, f.err
}

func noopDriverFactory() driver.Driver { return driver.NewFakeDriver(nil) }

func TestCreateMaterializesOneTaskPerResolvedCity(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // campaign save
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // task 1
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // task 2
	mock.ExpectCommit()

	geo := &fakeResolver{cities: []geonames.City{
		{GeonameID: 1, Name: "Springfield"},
		{GeonameID: 2, Name: "Shelbyville"},
	}}
	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), geo, noopDriverFactory)

	campaign, err := svc.Create(context.Background(), CreateSpec{Activity: "coffee shops", CountryCode: "US"})
	require.NoError(t, err)
	require.Equal(t, 2, campaign.TotalTasks)
	require.Equal(t, domain.DefaultMaxBots, campaign.MaxBots)
	require.Equal(t, domain.CampaignPending, campaign.Status)
	require.Contains(t, campaign.Title, "coffee shops")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRejectsMissingActivity(t *testing.T) {
	store, _ := newMockStore(t)
	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{}, noopDriverFactory)

	_, err := svc.Create(context.Background(), CreateSpec{CountryCode: "US"})
	require.Error(t, err)
	require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestCreateFailsWhenScopeResolvesToZeroCities(t *testing.T) {
	store, _ := newMockStore(t)
	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{cities: nil}, noopDriverFactory)

	_, err := svc.Create(context.Background(), CreateSpec{Activity: "coffee shops", CountryCode: "US"})
	require.Error(t, err)
	require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestStartRejectsNonPendingCampaign(t *testing.T) {
	id := domain.NewID()
	store, mock := newMockStore(t)
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
		string(id), "t", "a", "US", nil, nil, nil, "loc", nil, nil, 20, 0.0, nil,
		1, 1, 0, 0, time.Now().UTC(), nil, nil, string(domain.CampaignArchived),
	))

	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{}, noopDriverFactory)
	err := svc.Start(context.Background(), id)
	require.Error(t, err)
	require.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResumeReconcilesInProgressTasksAndRestarts(t *testing.T) {
	id := domain.NewID()
	taskID := domain.NewID()
	store, mock := newMockStore(t)

	// ReadSide().Campaigns.Get for the CanResume() check.
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
		string(id), "t", "a", "US", nil, nil, nil, "loc", nil, nil, 20, 0.0, nil,
		1, 1, 0, 1, time.Now().UTC(), nil, nil, string(domain.CampaignFailed),
	))

	// Reconciliation unit of work.
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(taskCols).AddRow(
		string(taskID), string(id), 1, "Springfield", "coffee shops", string(domain.TaskInProgress), 1, nil, nil, nil,
	))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // task back to PENDING
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
		string(id), "t", "a", "US", nil, nil, nil, "loc", nil, nil, 20, 0.0, nil,
		1, 1, 0, 1, time.Now().UTC(), nil, nil, string(domain.CampaignFailed),
	))
	mock.ExpectExec("").WillReturnResult(sqlmock.NewResult(0, 1)) // campaign back to PENDING
	mock.ExpectCommit()

	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{}, noopDriverFactory)
	err := svc.Resume(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveIsIdempotentOnAlreadyArchived(t *testing.T) {
	id := domain.NewID()
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
		string(id), "t", "a", "US", nil, nil, nil, "loc", nil, nil, 20, 0.0, nil,
		1, 1, 0, 0, time.Now().UTC(), nil, nil, string(domain.CampaignArchived),
	))
	mock.ExpectCommit()

	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{}, noopDriverFactory)
	require.NoError(t, svc.Archive(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArchiveRejectsNonArchivableCampaign(t *testing.T) {
	id := domain.NewID()
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("").WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
		string(id), "t", "a", "US", nil, nil, nil, "loc", nil, nil, 20, 0.0, nil,
		1, 1, 0, 0, time.Now().UTC(), nil, nil, string(domain.CampaignPending),
	))
	mock.ExpectRollback()

	svc := New(zap.NewNop(), store, eventbus.New(zap.NewNop()), &fakeResolver{}, noopDriverFactory)
	err := svc.Archive(context.Background(), id)
	require.Error(t, err)
	require.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

var campaignCols = []string{
	"id", "title", "activity", "country_code", "admin1_code", "admin2_code", "city_geoname_id",
	"location_name", "iso_language", "locale", "max_results", "min_rating", "min_population",
	"max_bots", "total_tasks", "completed_tasks", "failed_tasks", "created_at", "started_at",
	"completed_at", "status",
}

var taskCols = []string{
	"id", "campaign_id", "geoname_id", "geoname_name", "search_seed", "status", "attempts",
	"last_error", "started_at", "completed_at",
}
