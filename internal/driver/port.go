// Package driver defines the Driver Port (spec.md §4.3): an abstraction
// over "one headless browser context" searching a map service. The port
// never exposes driver-specific state — a Session is an opaque handle
// minted and interpreted only by the concrete implementation that issued
// it — and every failure is classified by the driver into Transient,
// Permanent or Cancelled before it ever reaches the Bot Pool or
// Orchestrator.
package driver

import (
	"context"
	"time"

	"github.com/placescout/scoutengine/internal/domain"
)

// Default capability timeouts from spec.md §5.
const (
	TimeoutOpen     = 45 * time.Second
	TimeoutNavigate = 30 * time.Second
	TimeoutWaitFor  = 20 * time.Second
	TimeoutScroll   = 15 * time.Second
	TimeoutParse    = 10 * time.Second
	TimeoutCapture  = 5 * time.Second
	TimeoutClose    = 10 * time.Second
)

// Session is an opaque handle to one driver-backed browser context.
// Concrete Driver implementations define their own underlying type; no
// other component may inspect it.
type Session interface {
	sessionMarker()
}

// PlaceRecord is the structured result of parsing one entry in a map
// search's result list.
type PlaceRecord struct {
	Name        string
	Address     string
	City        string
	Category    string
	Rating      *float64
	ReviewCount *int
	Phone       string
	Website     string
	Coordinates *domain.Coordinates
	Reviews     []ReviewRecord
}

// ReviewRecord is one review attached to a PlaceRecord.
type ReviewRecord struct {
	Author   string
	Rating   float64
	Text     string
	PostedAt time.Time
}

// SearchSpec parameterizes a search: what to type into the query box and
// which locale/language to request results in.
type SearchSpec struct {
	Activity    string
	GeonameName string
	ISOLanguage string
	Locale      string
}

// Driver is the abstract headless-browser capability the Bot Pool pools
// and the Orchestrator drives. Every method may fail with a
// domain.ScoutError of Code Transient (network/timeout — retriable),
// Permanent (selector missing, page unrecognized) or the context being
// Cancelled; classification is the implementation's responsibility, never
// the caller's.
type Driver interface {
	// Open starts a new browser session.
	Open(ctx context.Context) (Session, error)
	// Navigate loads the search URL for spec.
	Navigate(ctx context.Context, s Session, spec SearchSpec) error
	// WaitFor blocks until the result-list DOM node is present.
	WaitFor(ctx context.Context, s Session) error
	// FillQuery types the search seed into the query box (used when the
	// driver needs to refine or retry a search in place).
	FillQuery(ctx context.Context, s Session, text string) error
	// ScrollResultList scrolls the result list to load more entries, up
	// to maxScrolls times.
	ScrollResultList(ctx context.Context, s Session, maxScrolls int) error
	// ParseResults extracts up to maxResults structured place records
	// from the currently loaded result list.
	ParseResults(ctx context.Context, s Session, maxResults int) ([]PlaceRecord, error)
	// CaptureImage takes a screenshot of the current viewport, PNG-encoded.
	CaptureImage(ctx context.Context, s Session) ([]byte, error)
	// CurrentURL reports the session's current page URL, for snapshot events.
	CurrentURL(ctx context.Context, s Session) (string, error)
	// Close tears the session down. Close is idempotent.
	Close(ctx context.Context, s Session) error
}
