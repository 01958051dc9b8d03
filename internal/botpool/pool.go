// Package botpool implements the Bot Pool (spec.md §4.4): a fixed-size
// collection of driver sessions, sized by a campaign's max_bots, with
// FIFO-fair acquisition, crash replacement, and a bounded drain.
package botpool

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/placescout/scoutengine/internal/domain"
	"github.com/placescout/scoutengine/internal/driver"
	"github.com/placescout/scoutengine/internal/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// slot states, per spec.md §4.4's invariant that a session is in exactly
// one of {initializing, free, in_use, dead} at any scheduler-visible moment.
type slotState int

const (
	stateInitializing slotState = iota
	stateFree
	stateInUse
	stateDead
)

type slot struct {
	index   int
	state   slotState
	session driver.Session
}

// Handle is a caller's lease on a pooled session, returned by Acquire and
// consumed by Release or Replace.
type Handle struct {
	Index   int
	Session driver.Session
}

// Pool owns InitBudget retries of Open before surfacing a fatal
// pool-initialization error, per spec.md §4.4's failure semantics.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	log        *zap.Logger
	drv        driver.Driver
	bus        *eventbus.Bus
	campaignID domain.ID
	initBudget int

	slots   []*slot
	waitQ   []chan *slot
	closed  bool

	metricFree  prometheus.Gauge
	metricInUse prometheus.Gauge
}

// New constructs a Pool. It does not start any sessions; call Initialize.
func New(log *zap.Logger, drv driver.Driver, bus *eventbus.Bus, campaignID domain.ID, initBudget int) *Pool {
	p := &Pool{
		log:         log,
		drv:         drv,
		bus:         bus,
		campaignID:  campaignID,
		initBudget:  initBudget,
		metricFree:  poolFreeGauge.WithLabelValues(string(campaignID)),
		metricInUse: poolInUseGauge.WithLabelValues(string(campaignID)),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Initialize starts n sessions concurrently, each with its own bounded
// exponential-backoff retry budget. If any session exhausts its budget, the
// already-opened sessions are closed and a Fatal ScoutError is returned —
// per spec.md §4.4, exhaustion means no work begins and no partial pool is
// left running.
func (p *Pool) Initialize(ctx context.Context, n int) error {
	if n <= 0 {
		return domain.NewValidationError("max_bots must be >= 1")
	}

	p.mu.Lock()
	p.slots = make([]*slot, n)
	for i := range p.slots {
		p.slots[i] = &slot{index: i, state: stateInitializing}
	}
	p.mu.Unlock()

	type result struct {
		index   int
		session driver.Session
		err     error
	}
	results := make(chan result, n)

	for i := 0; i < n; i++ {
		i := i
		go func() {
			session, err := p.openWithRetry(ctx)
			results <- result{index: i, session: session, err: err}
		}()
	}

	var firstErr error
	opened := make([]*slot, 0, n)
	for i := 0; i < n; i++ {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		p.mu.Lock()
		p.slots[r.index].session = r.session
		p.slots[r.index].state = stateFree
		p.mu.Unlock()
		opened = append(opened, p.slots[r.index])
		p.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindBotInitialized,
			CampaignID: string(p.campaignID),
			Payload:    eventbus.BotInitializedPayload{BotIndex: r.index},
		})
	}

	if firstErr != nil {
		for _, s := range opened {
			_ = p.drv.Close(context.Background(), s.session)
		}
		return domain.NewFatalError("bot pool initialization exhausted retry budget", firstErr)
	}

	p.refreshMetrics()
	return nil
}

func (p *Pool) openWithRetry(ctx context.Context) (driver.Session, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.initBudget)), ctx)

	var session driver.Session
	err := backoff.Retry(func() error {
		s, err := p.drv.Open(ctx)
		if err != nil {
			if domain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		session = s
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Acquire blocks until a free session is available or ctx is cancelled, in
// FIFO order of callers — per spec.md §4.4's fairness invariant.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, domain.NewTransientError("bot pool drained", nil)
		}
		if s := p.findFree(); s != nil {
			s.state = stateInUse
			p.mu.Unlock()
			p.refreshMetrics()
			return &Handle{Index: s.index, Session: s.session}, nil
		}
		ch := make(chan *slot, 1)
		p.waitQ = append(p.waitQ, ch)
		p.mu.Unlock()

		select {
		case s, ok := <-ch:
			if !ok {
				return nil, domain.NewTransientError("bot pool drained while waiting", nil)
			}
			p.refreshMetrics()
			return &Handle{Index: s.index, Session: s.session}, nil
		case <-ctx.Done():
			p.mu.Lock()
			p.removeWaiter(ch)
			p.mu.Unlock()
			return nil, domain.NewTransientError("acquire cancelled", ctx.Err())
		}
	}
}

func (p *Pool) findFree() *slot {
	for _, s := range p.slots {
		if s.state == stateFree {
			return s
		}
	}
	return nil
}

func (p *Pool) removeWaiter(ch chan *slot) {
	for i, w := range p.waitQ {
		if w == ch {
			p.waitQ = append(p.waitQ[:i], p.waitQ[i+1:]...)
			return
		}
	}
}

// Release returns h's session to the free set, waking the longest-waiting
// caller in FIFO order if any.
func (p *Pool) Release(h *Handle) {
	p.mu.Lock()
	s := p.slots[h.Index]
	if s.state == stateDead {
		p.mu.Unlock()
		return
	}
	if len(p.waitQ) > 0 {
		ch := p.waitQ[0]
		p.waitQ = p.waitQ[1:]
		s.state = stateInUse
		p.mu.Unlock()
		ch <- s
		return
	}
	s.state = stateFree
	p.mu.Unlock()
	p.refreshMetrics()
}

// Replace destroys a crashed session and opens a new one in its place,
// preserving pool size. On repeated failure it marks the slot dead and
// returns an error; the caller (Orchestrator) treats any Replace error as
// fatal for the campaign.
func (p *Pool) Replace(ctx context.Context, h *Handle) error {
	p.mu.Lock()
	s := p.slots[h.Index]
	p.mu.Unlock()

	_ = p.drv.Close(ctx, h.Session)

	newSession, err := p.openWithRetry(ctx)
	if err != nil {
		p.mu.Lock()
		s.state = stateDead
		p.mu.Unlock()
		p.refreshMetrics()
		return domain.NewFatalError("bot pool failed to replace crashed session", err)
	}

	p.mu.Lock()
	s.session = newSession
	if len(p.waitQ) > 0 {
		ch := p.waitQ[0]
		p.waitQ = p.waitQ[1:]
		s.state = stateInUse
		p.mu.Unlock()
		ch <- s
		p.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindBotInitialized,
			CampaignID: string(p.campaignID),
			Payload:    eventbus.BotInitializedPayload{BotIndex: h.Index},
		})
		p.refreshMetrics()
		return nil
	}
	s.state = stateFree
	p.mu.Unlock()

	p.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindBotInitialized,
		CampaignID: string(p.campaignID),
		Payload:    eventbus.BotInitializedPayload{BotIndex: h.Index},
	})
	p.refreshMetrics()
	return nil
}

// DeadCount reports how many slots have been permanently lost to repeated
// replacement failure.
func (p *Pool) DeadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.state == stateDead {
			n++
		}
	}
	return n
}

// Drain closes every live session and unblocks any pending Acquire calls
// with an error. Drain is idempotent.
func (p *Pool) Drain(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	waiters := p.waitQ
	p.waitQ = nil
	slots := make([]*slot, len(p.slots))
	copy(slots, p.slots)
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), driverCloseGrace)
	defer cancel()

	for _, s := range slots {
		if s.state == stateDead || s.session == nil {
			continue
		}
		_ = p.drv.Close(closeCtx, s.session)
		p.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindBotClosed,
			CampaignID: string(p.campaignID),
			Payload:    eventbus.BotClosedPayload{BotIndex: s.index},
		})
	}
	_ = ctx
	p.refreshMetrics()
}

const driverCloseGrace = 10 * time.Second

func (p *Pool) refreshMetrics() {
	free, inUse := p.counts()
	p.metricFree.Set(float64(free))
	p.metricInUse.Set(float64(inUse))
}

func (p *Pool) counts() (free, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		switch s.state {
		case stateFree:
			free++
		case stateInUse:
			inUse++
		}
	}
	return
}

var (
	poolFreeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scoutengine_bot_pool_free",
		Help: "Number of free bot sessions per campaign.",
	}, []string{"campaign_id"})
	poolInUseGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scoutengine_bot_pool_in_use",
		Help: "Number of in-use bot sessions per campaign.",
	}, []string{"campaign_id"})
)

func init() {
	prometheus.MustRegister(poolFreeGauge, poolInUseGauge)
}
