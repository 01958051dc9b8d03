// Package orchestrator implements the coordination core (spec.md §4.6): it
// couples the Bot Pool, Task Queue, Driver Port, Event Bus, and Unit of
// Work to run a campaign's tasks to completion.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/placescout/scoutengine/internal/botpool"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/placescout/scoutengine/internal/storage"
	"github.com/placescout/scoutengine/internal/taskqueue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SnapshotInterval controls how often BotSnapshotCaptured fires during a
// task's extraction pipeline. Overridable for tests.
var SnapshotInterval = time.Second

// Run drives one campaign's extraction to completion: it owns the pool,
// queue, and worker loops for the lifetime of the call, and returns only
// once every worker has exited (queue drained, cancelled, or fatally
// failed).
type Run struct {
	log        *zap.Logger
	store      *storage.Store
	drv        driver.Driver
	bus        *eventbus.Bus
	campaignID domain.ID

	pool  *botpool.Pool
	queue *taskqueue.Queue

	outstanding int64 // tasks neither completed nor terminally failed
	fatal       atomic.Value // error
}

// taskFinished records that a task will never be requeued (completed,
// terminally failed, or abandoned for a non-retryable reason). Once every
// outstanding task has finished, the queue is drained so idle workers
// blocked in DequeueOrWait wake up and exit rather than waiting forever.
func (r *Run) taskFinished() {
	if atomic.AddInt64(&r.outstanding, -1) <= 0 {
		r.queue.Drain()
	}
}

// New constructs a Run for campaignID. drv is the driver to pool; a fresh
// instance (or a shared thread-safe one) is supplied by the caller.
func New(log *zap.Logger, store *storage.Store, drv driver.Driver, bus *eventbus.Bus, campaignID domain.ID) *Run {
	return &Run{
		log:        log.With(zap.String("campaign_id", string(campaignID))),
		store:      store,
		drv:        drv,
		bus:        bus,
		campaignID: campaignID,
	}
}

// Execute implements spec.md §4.6 steps 1-4. ctx's cancellation is the
// cooperative cancellation signal: workers observe it between iterations
// and at driver suspension points. In-flight driver steps run under
// contexts derived from ctx and stop as soon as it is cancelled; there is
// no grace window. The pool is drained once every worker has returned.
func (r *Run) Execute(ctx context.Context) error {
	var campaign domain.Campaign
	var pending []domain.PlaceExtractionTask

	err := r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		if err != nil {
			return err
		}
		if !c.CanStart() && c.Status != domain.CampaignInProgress {
			return domain.NewConflictError("campaign is not in a startable state: " + string(c.Status))
		}
		c = c.WithStatus(domain.CampaignInProgress)
		if c.StartedAt == nil {
			now := time.Now().UTC()
			c.StartedAt = &now
		}
		if err := uow.Campaigns.Save(ctx, c); err != nil {
			return err
		}
		tasks, err := uow.Tasks.PendingTasksOf(ctx, r.campaignID)
		if err != nil {
			return err
		}
		campaign, pending = c, tasks
		return nil
	})
	if err != nil {
		return err
	}

	r.pool = botpool.New(r.log, r.drv, r.bus, r.campaignID, domain.DefaultPoolInitBudget)
	r.queue = taskqueue.New()

	ids := make([]domain.ID, len(pending))
	for i, t := range pending {
		ids[i] = t.ID
	}
	atomic.StoreInt64(&r.outstanding, int64(len(ids)))
	r.queue.EnqueueAll(ids)
	if len(ids) == 0 {
		r.queue.Drain()
	}

	if err := r.pool.Initialize(ctx, campaign.MaxBots); err != nil {
		r.finalizeFatal(ctx, err)
		return err
	}

	grp, workerCtx := errgroup.WithContext(ctx)
	for i := 0; i < campaign.MaxBots; i++ {
		i := i
		grp.Go(func() error {
			return r.workerLoop(workerCtx, i)
		})
	}

	runErr := grp.Wait()
	r.pool.Drain(context.Background())

	if f := r.fatal.Load(); f != nil {
		runErr = f.(error)
	}

	if runErr != nil && !isCancellation(runErr) {
		r.finalizeFatal(ctx, runErr)
		return runErr
	}

	return r.finalize(context.Background())
}

func isCancellation(err error) bool {
	return err == context.Canceled || err == context.DeadlineExceeded
}

// workerLoop is one of max_bots concurrent loops, each repeating
// spec.md §4.6 step 3 until the queue is empty or ctx is cancelled.
func (r *Run) workerLoop(ctx context.Context, workerIndex int) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		taskID, ok := r.queue.DequeueOrWait(ctx)
		if !ok {
			return nil
		}

		if err := r.runOneTask(ctx, workerIndex, taskID); err != nil {
			if domain.CodeOf(err) == domain.CodeFatal {
				r.fatal.Store(err)
				return err
			}
		}
	}
}

func (r *Run) runOneTask(ctx context.Context, workerIndex int, taskID domain.ID) error {
	handle, err := r.pool.Acquire(ctx)
	if err != nil {
		r.taskFinished() // pool drained or cancelled; abandoning, not retrying
		return nil
	}

	var task domain.PlaceExtractionTask
	err = r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		t, err := uow.Tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.CanTransitionToInProgress() {
			return domain.NewConflictError("task " + string(t.ID) + " is already " + string(t.Status))
		}
		t = t.WithStatus(domain.TaskInProgress)
		t.Attempts++
		now := time.Now().UTC()
		t.StartedAt = &now
		if err := uow.Tasks.Save(ctx, t); err != nil {
			return err
		}
		task = t
		return nil
	})
	if err != nil {
		r.pool.Release(handle)
		r.taskFinished()
		return err
	}

	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindTaskStarted,
		CampaignID: string(r.campaignID),
		Payload:    eventbus.TaskStartedPayload{Task: task},
	})
	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindBotTaskAssigned,
		CampaignID: string(r.campaignID),
		Payload:    eventbus.BotTaskAssignedPayload{BotIndex: workerIndex, TaskID: taskID},
	})

	places, driverErr := r.extract(ctx, handle, workerIndex, task)

	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindBotTaskCompleted,
		CampaignID: string(r.campaignID),
		Payload:    eventbus.BotTaskCompletedPayload{BotIndex: workerIndex, TaskID: taskID},
	})

	if driverErr != nil {
		return r.handleTaskFailure(ctx, handle, workerIndex, task, driverErr)
	}

	r.pool.Release(handle)
	err = r.completeTask(ctx, task, places)
	r.taskFinished()
	return err
}

// extract runs one task's browsing pipeline on an acquired session:
// navigate, scroll, parse, capture, with periodic snapshot events.
func (r *Run) extract(ctx context.Context, handle *botpool.Handle, workerIndex int, task domain.PlaceExtractionTask) ([]driver.PlaceRecord, error) {
	var campaign domain.Campaign
	if err := r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		campaign = c
		return err
	}); err != nil {
		return nil, err
	}

	spec := driver.SearchSpec{
		Activity:    campaign.Activity,
		GeonameName: task.GeonameName,
		ISOLanguage: campaign.ISOLanguage,
		Locale:      campaign.Locale,
	}

	navCtx, cancel := context.WithTimeout(ctx, driver.TimeoutNavigate)
	err := r.drv.Navigate(navCtx, handle.Session, spec)
	cancel()
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, driver.TimeoutWaitFor)
	err = r.drv.WaitFor(waitCtx, handle.Session)
	cancel()
	if err != nil {
		return nil, err
	}

	stopSnapshots := r.startSnapshotLoop(ctx, handle, workerIndex, task.ID)
	defer stopSnapshots()

	maxResults := campaign.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	scrollCtx, cancel := context.WithTimeout(ctx, driver.TimeoutScroll)
	err = r.drv.ScrollResultList(scrollCtx, handle.Session, maxResults/10+1)
	cancel()
	if err != nil {
		return nil, err
	}

	parseCtx, cancel := context.WithTimeout(ctx, driver.TimeoutParse)
	records, err := r.drv.ParseResults(parseCtx, handle.Session, maxResults)
	cancel()
	if err != nil {
		return nil, err
	}

	return records, nil
}

// startSnapshotLoop publishes BotSnapshotCaptured on SnapshotInterval until
// the returned stop func is called, capturing the session's current image
// and URL on each tick.
func (r *Run) startSnapshotLoop(ctx context.Context, handle *botpool.Handle, workerIndex int, taskID domain.ID) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.captureSnapshot(ctx, handle, workerIndex, taskID)
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

func (r *Run) captureSnapshot(ctx context.Context, handle *botpool.Handle, workerIndex int, taskID domain.ID) {
	capCtx, cancel := context.WithTimeout(ctx, driver.TimeoutCapture)
	defer cancel()
	img, err := r.drv.CaptureImage(capCtx, handle.Session)
	if err != nil {
		return
	}
	url, err := r.drv.CurrentURL(capCtx, handle.Session)
	if err != nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindBotSnapshotCaptured,
		CampaignID: string(r.campaignID),
		Payload: eventbus.BotSnapshotCapturedPayload{
			BotIndex:   workerIndex,
			TaskID:     taskID,
			ImagePNG:   img,
			CurrentURL: url,
		},
	})
}

// completeTask persists parsed places (deduped by fingerprint) and
// transitions the task to COMPLETED, in one unit of work, per spec.md
// §4.6 step e.
func (r *Run) completeTask(ctx context.Context, task domain.PlaceExtractionTask, records []driver.PlaceRecord) error {
	var persisted []domain.ExtractedPlace

	err := r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		for _, rec := range records {
			place := domain.NewExtractedPlace(task.ID, rec.Name, rec.Address)
			place.City = rec.City
			place.Category = rec.Category
			place.Rating = rec.Rating
			place.ReviewCount = rec.ReviewCount
			place.Phone = rec.Phone
			place.Website = rec.Website
			place.Coordinates = rec.Coordinates
			for _, rv := range rec.Reviews {
				place.Reviews = append(place.Reviews, domain.ExtractedPlaceReview{
					ID:       domain.NewID(),
					PlaceID:  place.ID,
					Author:   rv.Author,
					Rating:   rv.Rating,
					Text:     rv.Text,
					PostedAt: rv.PostedAt,
				})
			}

			inserted, err := uow.Places.Save(ctx, place)
			if err != nil {
				return err
			}
			if inserted {
				persisted = append(persisted, place)
			}
		}

		now := time.Now().UTC()
		t := task.WithStatus(domain.TaskCompleted)
		t.CompletedAt = &now
		if err := uow.Tasks.Save(ctx, t); err != nil {
			return err
		}

		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		if err != nil {
			return err
		}
		c.CompletedTasks++
		return uow.Campaigns.Save(ctx, c)
	})
	if err != nil {
		return err
	}

	for _, p := range persisted {
		r.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindPlaceExtracted,
			CampaignID: string(r.campaignID),
			Payload:    eventbus.PlaceExtractedPayload{Place: p},
		})
	}

	completedTask := task.WithStatus(domain.TaskCompleted)
	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindTaskCompleted,
		CampaignID: string(r.campaignID),
		Payload:    eventbus.TaskCompletedPayload{Task: completedTask, PlaceCount: len(persisted)},
	})
	return nil
}

// handleTaskFailure implements spec.md §4.6 steps f-h: Transient failures
// are re-enqueued while task.Attempts is below DefaultRetryBudget; Permanent
// failures and retry exhaustion transition the task to FAILED. A Transient
// failure never tells the orchestrator by itself whether the browser
// session survived it (a timed-out navigation and a crashed tab both
// classify as Transient per spec.md §4.3), so a health check decides
// whether the session goes back to the pool or gets replaced.
func (r *Run) handleTaskFailure(ctx context.Context, handle *botpool.Handle, workerIndex int, task domain.PlaceExtractionTask, taskErr error) error {
	r.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindBotError,
		CampaignID: string(r.campaignID),
		Payload:    eventbus.BotErrorPayload{BotIndex: workerIndex, TaskID: task.ID, Message: taskErr.Error()},
	})

	if domain.IsTransient(taskErr) && !r.sessionHealthy(ctx, handle) {
		if repErr := r.pool.Replace(ctx, handle); repErr != nil {
			r.fatal.Store(repErr)
			r.taskFinished()
			return repErr
		}
	} else {
		r.pool.Release(handle)
	}

	if domain.IsTransient(taskErr) && task.Attempts < domain.DefaultRetryBudget {
		r.queue.EnqueueAll([]domain.ID{task.ID})
		return nil
	}

	err := r.failTask(ctx, task, taskErr)
	r.taskFinished()
	return err
}

// sessionHealthy reports whether handle's session still responds, by
// asking it for its current URL. Called after a Transient failure to tell
// a recoverable timeout apart from a session the browser process already
// killed — the latter must be replaced, not returned to the pool.
func (r *Run) sessionHealthy(ctx context.Context, handle *botpool.Handle) bool {
	healthCtx, cancel := context.WithTimeout(ctx, driver.TimeoutCapture)
	defer cancel()
	_, err := r.drv.CurrentURL(healthCtx, handle.Session)
	return err == nil
}

func (r *Run) failTask(ctx context.Context, task domain.PlaceExtractionTask, cause error) error {
	return r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		now := time.Now().UTC()
		t := task.WithStatus(domain.TaskFailed)
		t.LastError = cause.Error()
		t.CompletedAt = &now
		if err := uow.Tasks.Save(ctx, t); err != nil {
			return err
		}

		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		if err != nil {
			return err
		}
		c.FailedTasks++
		if err := uow.Campaigns.Save(ctx, c); err != nil {
			return err
		}

		r.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindTaskFailed,
			CampaignID: string(r.campaignID),
			Payload:    eventbus.TaskFailedPayload{Task: t},
		})
		return nil
	})
}

// finalize computes the terminal campaign status per spec.md §3's
// invariant (COMPLETED iff every task is COMPLETED or SKIPPED, FAILED iff
// any task is FAILED and none remain in progress) and persists it.
func (r *Run) finalize(ctx context.Context) error {
	return r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		if err != nil {
			return err
		}
		tasks, err := uow.Tasks.TasksOf(ctx, r.campaignID)
		if err != nil {
			return err
		}

		anyInProgress, anyFailed, allTerminal := false, false, true
		for _, t := range tasks {
			if !t.Terminal() {
				anyInProgress = true
				allTerminal = false
			}
			if t.Status == domain.TaskFailed {
				anyFailed = true
			}
		}

		now := time.Now().UTC()
		switch {
		case anyInProgress:
			return nil // cancelled mid-run; leave IN_PROGRESS for resume reconciliation
		case anyFailed:
			c = c.WithStatus(domain.CampaignFailed)
		case allTerminal:
			c = c.WithStatus(domain.CampaignCompleted)
		}
		c.CompletedAt = &now
		return uow.Campaigns.Save(ctx, c)
	})
}

// finalizeFatal marks the campaign FAILED immediately, used when pool
// initialization or a fatal mid-run error means no further progress is
// possible, per spec.md §7's Fatal propagation.
func (r *Run) finalizeFatal(ctx context.Context, cause error) {
	err := r.store.WithUnitOfWork(ctx, func(ctx context.Context, uow *storage.UnitOfWork) error {
		c, err := uow.Campaigns.Get(ctx, r.campaignID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		c = c.WithStatus(domain.CampaignFailed)
		c.CompletedAt = &now
		return uow.Campaigns.Save(ctx, c)
	})
	if err != nil {
		r.log.Error("failed to persist fatal campaign failure", zap.Error(err), zap.NamedError("cause", cause))
	}
}
