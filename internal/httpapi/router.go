// Package httpapi implements the HTTP API (spec.md §4.9, §6): campaign
// CRUD and geonames read endpoints, a thin layer atop the Campaign Service
// and the geonames adapter, routed with the standard library's
// net/http.ServeMux the way the teacher's internal/server/rest does.
package httpapi

import (
	"context"
	"net/http"

	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/geonames"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CampaignController is the subset of campaignsvc.Service the HTTP layer
// drives.
type CampaignController interface {
	Create(ctx context.Context, spec CreateSpec) (domain.Campaign, error)
	Start(ctx context.Context, id domain.ID) error
	Resume(ctx context.Context, id domain.ID) error
	Archive(ctx context.Context, id domain.ID) error
	List(ctx context.Context) ([]domain.Campaign, error)
	Get(ctx context.Context, id domain.ID) (domain.Campaign, error)
	PlacesOf(ctx context.Context, id domain.ID) ([]domain.ExtractedPlace, error)
	TasksOf(ctx context.Context, id domain.ID) ([]domain.PlaceExtractionTask, error)
}

// CreateSpec mirrors campaignsvc.CreateSpec, decoded directly from the
// POST /api/campaigns body.
type CreateSpec struct {
	Activity      string  `json:"activity"`
	CountryCode   string  `json:"country_code"`
	Admin1Code    string  `json:"admin1_code"`
	Admin2Code    string  `json:"admin2_code"`
	CityGeonameID int64   `json:"city_geoname_id"`
	ISOLanguage   string  `json:"iso_language"`
	LocationName  string  `json:"location_name"`
	MinPopulation int64   `json:"min_population"`
	Locale        string  `json:"locale"`
	MaxResults    int     `json:"max_results"`
	MinRating     float64 `json:"min_rating"`
	MaxBots       int     `json:"max_bots"`
}

// HealthChecker reports storage connectivity for /healthz.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router builds the HTTP API's handler tree.
type Router struct {
	log       *zap.Logger
	campaigns CampaignController
	geo       geonames.Resolver
	health    HealthChecker
	bus       *eventbus.Bus
}

// New constructs a Router.
func New(log *zap.Logger, campaigns CampaignController, geo geonames.Resolver, health HealthChecker, bus *eventbus.Bus) *Router {
	return &Router{log: log, campaigns: campaigns, geo: geo, health: health, bus: bus}
}

// Handler returns the fully wired net/http.Handler: campaign CRUD,
// geonames reads, and operational endpoints.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/campaigns", rt.createCampaign)
	mux.HandleFunc("GET /api/campaigns", rt.listCampaigns)
	mux.HandleFunc("GET /api/campaigns/{id}", rt.getCampaign)
	mux.HandleFunc("GET /api/campaigns/{id}/places", rt.getCampaignPlaces)
	mux.HandleFunc("GET /api/campaigns/{id}/tasks", rt.getCampaignTasks)
	mux.HandleFunc("POST /api/campaigns/{id}/start", rt.startCampaign)
	mux.HandleFunc("POST /api/campaigns/{id}/resume", rt.resumeCampaign)
	mux.HandleFunc("POST /api/campaigns/{id}/archive", rt.archiveCampaign)

	mux.HandleFunc("GET /api/geonames/countries", rt.getCountries)
	mux.HandleFunc("GET /api/geonames/countries/{cc}/regions", rt.getRegions)
	mux.HandleFunc("GET /api/geonames/countries/{cc}/provinces", rt.getProvinces)
	mux.HandleFunc("GET /api/geonames/countries/{cc}/cities", rt.getCities)

	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/debug/eventbus", rt.debugEventBus)

	return withRequestLogging(rt.log, mux)
}

func withRequestLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		log.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
	})
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if err := rt.health.Health(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, domain.NewTransientError("storage unavailable", err))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// debugEventBus reports per-kind subscriber counts, a read-only diagnostic
// surface for confirming the gateway's event forwarding is actually wired
// up in a running deployment.
func (rt *Router) debugEventBus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.bus.Stats())
}
