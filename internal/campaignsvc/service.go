// Package campaignsvc implements the Campaign Service (spec.md §4.7):
// campaign creation, task materialization from a resolved geographic
// scope, and lifecycle transitions.
package campaignsvc

import (
	"context"
	"time"

	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/geonames"
	"github.com/placescout/scoutengine/internal/orchestrator"
	"github.com/placescout/scoutengine/internal/storage"
	"go.uber.org/zap"
)

// CreateSpec is the validated input to Create, matching the POST
// /api/campaigns body from spec.md §6.
type CreateSpec struct {
	Activity      string
	CountryCode   string
	Admin1Code    string
	Admin2Code    string
	CityGeonameID int64
	ISOLanguage   string
	LocationName  string
	MinPopulation int64
	Locale        string
	MaxResults    int
	MinRating     float64
	MaxBots       int
}

// DriverFactory constructs a fresh Driver for one campaign run. The
// service does not hold a Driver itself — only the Orchestrator does, for
// the lifetime of one Execute call — so a factory is injected instead.
type DriverFactory func() driver.Driver

// Service implements campaign lifecycle operations on top of the Unit of
// Work and the geonames adapter.
type Service struct {
	log      *zap.Logger
	store    *storage.Store
	bus      *eventbus.Bus
	geo      geonames.Resolver
	newDrv   DriverFactory
	runMu    runRegistry
}

// New constructs a Service.
func New(log *zap.Logger, store *storage.Store, bus *eventbus.Bus, geo geonames.Resolver, newDrv DriverFactory) *Service {
	return &Service{log: log, store: store, bus: bus, geo: geo, newDrv: newDrv, runMu: newRunRegistry()}
}

// Create resolves spec's geographic scope into a concrete city list,
// auto-generates the title, and materializes the campaign and its tasks
// in a single unit of work, per spec.md §4.7.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (domain.Campaign, error) {
	if spec.Activity == "" {
		return domain.Campaign{}, domain.NewValidationError("activity is required")
	}
	if spec.CountryCode == "" {
		return domain.Campaign{}, domain.NewValidationError("country_code is required")
	}
	maxBots := spec.MaxBots
	if maxBots == 0 {
		maxBots = domain.DefaultMaxBots
	}
	if maxBots < 0 {
		return domain.Campaign{}, domain.NewValidationError("max_bots must be >= 1")
	}

	cities, err := s.geo.ResolveCities(ctx, geonames.CityQuery{
		CountryCode:   spec.CountryCode,
		Admin1Code:    spec.Admin1Code,
		Admin2Code:    spec.Admin2Code,
		CityGeonameID: spec.CityGeonameID,
		MinPopulation: spec.MinPopulation,
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	if len(cities) == 0 {
		return domain.Campaign{}, domain.NewValidationError("geographic scope resolved to zero cities")
	}

	locationName := spec.LocationName
	if locationName == "" {
		locationName = geonames.SummarizeScope(cities)
	}

	maxResults := spec.MaxResults
	if maxResults == 0 {
		maxResults = 20
	}

	campaign := domain.Campaign{
		ID:            domain.NewID(),
		Title:         domain.GenerateTitle(spec.Activity, locationName),
		Activity:      spec.Activity,
		CountryCode:   spec.CountryCode,
		Admin1Code:    spec.Admin1Code,
		Admin2Code:    spec.Admin2Code,
		CityGeonameID: spec.CityGeonameID,
		LocationName:  locationName,
		ISOLanguage:   spec.ISOLanguage,
		Locale:        spec.Locale,
		MaxResults:    maxResults,
		MinRating:     spec.MinRating,
		MinPopulation: spec.MinPopulation,
		MaxBots:       maxBots,
		TotalTasks:    len(cities),
		CreatedAt:     time.Now().UTC(),
		Status:        domain.CampaignPending,
	}
	if err := campaign.Validate(); err != nil {
		return domain.Campaign{}, err
	}

	tasks := make([]domain.PlaceExtractionTask, len(cities))
	for i, city := range cities {
		tasks[i] = domain.PlaceExtractionTask{
			ID:          domain.NewID(),
			CampaignID:  campaign.ID,
			GeonameID:   city.GeonameID,
			GeonameName: city.Name,
			SearchSeed:  spec.Activity,
			Status:      domain.TaskPending,
		}
	}

	err = s.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		if err := uow.Campaigns.Save(ctx, campaign); err != nil {
			return err
		}
		for _, t := range tasks {
			if err := uow.Tasks.Save(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Campaign{}, err
	}

	return campaign, nil
}

// Start spawns an Orchestrator run for id. Legal only from PENDING; any
// other status is a Conflict. The run executes on a background goroutine
// registered so Cancel/Pause can reach it.
func (s *Service) Start(ctx context.Context, id domain.ID) error {
	campaign, err := s.store.ReadSide().Campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if !campaign.CanStart() {
		return domain.NewConflictError("campaign is not PENDING: " + string(campaign.Status))
	}
	return s.launch(id)
}

// Resume reconciles any IN_PROGRESS tasks of id back to PENDING — the
// engine never trusts IN_PROGRESS as surviving a process restart without
// reconciliation (spec.md §3, §9 open question) — then restarts the run.
// Legal only from FAILED.
func (s *Service) Resume(ctx context.Context, id domain.ID) error {
	campaign, err := s.store.ReadSide().Campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if !campaign.CanResume() {
		return domain.NewConflictError("campaign is not resumable: " + string(campaign.Status))
	}

	err = s.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		stuck, err := uow.Tasks.InProgressTasksOf(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range stuck {
			t = t.WithStatus(domain.TaskPending)
			if err := uow.Tasks.Save(ctx, t); err != nil {
				return err
			}
		}
		c, err := uow.Campaigns.Get(ctx, id)
		if err != nil {
			return err
		}
		c = c.WithStatus(domain.CampaignPending)
		return uow.Campaigns.Save(ctx, c)
	})
	if err != nil {
		return err
	}

	return s.launch(id)
}

func (s *Service) launch(id domain.ID) error {
	run := orchestrator.New(s.log, s.store, s.newDrv(), s.bus, id)
	runCtx, cancel := context.WithCancel(context.Background())
	s.runMu.register(id, cancel)

	go func() {
		defer s.runMu.unregister(id)
		if err := run.Execute(runCtx); err != nil {
			s.log.Error("campaign run ended with error", zap.String("campaign_id", string(id)), zap.Error(err))
		}
	}()
	return nil
}

// Cancel requests cooperative cancellation of id's active run, if any. A
// no-op if the campaign has no run in flight.
func (s *Service) Cancel(id domain.ID) {
	s.runMu.cancel(id)
}

// Archive transitions id to ARCHIVED. Legal from COMPLETED or FAILED;
// idempotent on ARCHIVED per spec.md §8.
func (s *Service) Archive(ctx context.Context, id domain.ID) error {
	return s.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, id)
		if err != nil {
			return err
		}
		if c.Status == domain.CampaignArchived {
			return nil
		}
		if !c.CanArchive() {
			return domain.NewConflictError("campaign cannot be archived from status: " + string(c.Status))
		}
		c = c.WithStatus(domain.CampaignArchived)
		return uow.Campaigns.Save(ctx, c)
	})
}

// List, Get, PlacesOf and TasksOf are read-side operations: they bypass
// the Unit of Work entirely, per spec.md §4.2.
func (s *Service) List(ctx context.Context) ([]domain.Campaign, error) {
	return s.store.ReadSide().Campaigns.List(ctx)
}

func (s *Service) Get(ctx context.Context, id domain.ID) (domain.Campaign, error) {
	return s.store.ReadSide().Campaigns.Get(ctx, id)
}

func (s *Service) PlacesOf(ctx context.Context, id domain.ID) ([]domain.ExtractedPlace, error) {
	return s.store.ReadSide().Places.PlacesOf(ctx, id)
}

func (s *Service) TasksOf(ctx context.Context, id domain.ID) ([]domain.PlaceExtractionTask, error) {
	return s.store.ReadSide().Tasks.TasksOf(ctx, id)
}
