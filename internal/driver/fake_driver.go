package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/placescout/scoutengine/internal/domain"
)

// FakeDriver is a deterministic Driver test double. It never touches a real
// browser: Open mints an in-memory session, ParseResults returns a
// caller-configured slice of PlaceRecord, and Open and Navigate can be
// made to fail a fixed number of times before succeeding, to exercise the
// Bot Pool's and Orchestrator's retry and replacement paths.
type FakeDriver struct {
	mu sync.Mutex

	// Results is returned verbatim by ParseResults, truncated to maxResults.
	Results []PlaceRecord

	// FailOpenTimes makes Open return a Transient error this many times
	// before succeeding.
	FailOpenTimes int
	openCalls     int

	// FailNavigateTimes makes Navigate return a Transient error this many
	// times before succeeding.
	FailNavigateTimes int
	navigateCalls     int

	// CrashSessionOnNavigateFailure, if true, makes each Navigate failure
	// also kill the underlying session: a subsequent CurrentURL call on
	// that same session fails too, simulating a crashed browser process
	// rather than a recoverable page-load timeout. Used to exercise the
	// Bot Pool's Replace path.
	CrashSessionOnNavigateFailure bool
	crashed                       map[int]bool

	// FailParsePermanently, if true, makes ParseResults always return a
	// Permanent error (simulating an unrecognized page layout).
	FailParsePermanently bool

	OpenCount    int
	CloseCount   int
	ClosedEarly  bool
	LastSearch   SearchSpec
	CapturedURLs []string
}

type fakeSession struct {
	id int
}

func (*fakeSession) sessionMarker() {}

// NewFakeDriver returns a FakeDriver that yields the given records on
// ParseResults.
func NewFakeDriver(results []PlaceRecord) *FakeDriver {
	return &FakeDriver{Results: results}
}

func (d *FakeDriver) Open(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	d.OpenCount++
	if d.openCalls <= d.FailOpenTimes {
		return nil, domain.NewTransientError(fmt.Sprintf("fake open failure %d", d.openCalls), nil)
	}
	return &fakeSession{id: d.openCalls}, nil
}

func (d *FakeDriver) Navigate(ctx context.Context, s Session, spec SearchSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigateCalls++
	d.LastSearch = spec
	if d.navigateCalls <= d.FailNavigateTimes {
		if d.CrashSessionOnNavigateFailure {
			if d.crashed == nil {
				d.crashed = make(map[int]bool)
			}
			d.crashed[s.(*fakeSession).id] = true
		}
		return domain.NewTransientError(fmt.Sprintf("fake navigate failure %d", d.navigateCalls), nil)
	}
	return nil
}

func (d *FakeDriver) WaitFor(ctx context.Context, s Session) error {
	return nil
}

func (d *FakeDriver) FillQuery(ctx context.Context, s Session, text string) error {
	return nil
}

func (d *FakeDriver) ScrollResultList(ctx context.Context, s Session, maxScrolls int) error {
	return nil
}

func (d *FakeDriver) ParseResults(ctx context.Context, s Session, maxResults int) ([]PlaceRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailParsePermanently {
		return nil, domain.NewPermanentError("fake: unrecognized result page", nil)
	}
	if maxResults < len(d.Results) {
		out := make([]PlaceRecord, maxResults)
		copy(out, d.Results[:maxResults])
		return out, nil
	}
	out := make([]PlaceRecord, len(d.Results))
	copy(out, d.Results)
	return out, nil
}

func (d *FakeDriver) CaptureImage(ctx context.Context, s Session) ([]byte, error) {
	return []byte("fake-png-bytes"), nil
}

func (d *FakeDriver) CurrentURL(ctx context.Context, s Session) (string, error) {
	fs := s.(*fakeSession)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.crashed[fs.id] {
		return "", domain.NewTransientError(fmt.Sprintf("fake: session %d crashed", fs.id), nil)
	}
	url := fmt.Sprintf("https://maps.example.com/search?session=%d", fs.id)
	d.CapturedURLs = append(d.CapturedURLs, url)
	return url, nil
}

func (d *FakeDriver) Close(ctx context.Context, s Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCount++
	if ctx.Err() != nil {
		d.ClosedEarly = true
	}
	return nil
}
