package trialrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/trialrun/internal/errors"
	"github.com/Iron-Ham/trialrun/internal/event"
	"github.com/Iron-Ham/trialrun/internal/logging"
	"github.com/Iron-Ham/trialrun/internal/metrics"
)

// DefaultNotificationTitle is used when Config.Title is empty.
const DefaultNotificationTitle = "trialrun"

// Config holds the coordinator's collaborators. Every field is optional.
type Config struct {
	Notifier Notifier
	Bus      *event.Bus
	Metrics  *metrics.Metrics
	Logger   *logging.Logger

	// Title is the notification title.
	Title string
	// MaxAge is forwarded to every run as RunOptions.MaxAge.
	MaxAge time.Duration
	// DisableAutoTrigger makes SetEntity always take the skip path.
	DisableAutoTrigger bool
}

// Coordinator tracks a single in-flight trial run for one entity and keeps
// its State consistent when runs overlap, get cancelled, or finish after
// the coordinator is closed.
type Coordinator struct {
	notifier Notifier
	bus      *event.Bus
	metrics  *metrics.Metrics
	logger   *logging.Logger
	title    string
	maxAge   time.Duration
	auto     bool

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	entity    Entity
	state     State
	tracked   RunHandle
	gen       uint64 // generation of the tracked run; 0 when none or closed
	lastGen   uint64
	startedAt time.Time
	closed    bool

	// emitMu serializes listener delivery so the last snapshot a listener
	// sees is always the latest state.
	emitMu    sync.Mutex
	listeners []func(State)
}

// NewCoordinator creates a Coordinator. Cancelling ctx has the same effect on
// waiting goroutines as Close.
func NewCoordinator(ctx context.Context, cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Title == "" {
		cfg.Title = DefaultNotificationTitle
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		notifier:   cfg.Notifier,
		bus:        cfg.Bus,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.WithComponent("coordinator"),
		title:      cfg.Title,
		maxAge:     cfg.MaxAge,
		auto:       !cfg.DisableAutoTrigger,
		ctx:        ctx,
		cancelFunc: cancel,
	}
	context.AfterFunc(ctx, c.Close)
	return c
}

// State returns the current snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TrackedRun returns the handle of the most recently started run, or nil.
func (c *Coordinator) TrackedRun() RunHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracked
}

// Entity returns the current entity, or nil.
func (c *Coordinator) Entity() Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entity
}

// OnChange registers fn to be called with a fresh snapshot after every state
// replacement. fn runs outside the coordinator lock; it may read State but
// must not start or cancel runs synchronously.
func (c *Coordinator) OnChange(fn func(State)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetEntity makes e the coordinator's entity. The first entity, and every
// entity with a different identity, is evaluated once: a run starts if it
// already has a result or needs parameters, otherwise the initial result is
// considered loaded. Passing nil or the current entity does nothing.
// An in-flight run is not cancelled; the next StartRun supersedes it.
func (c *Coordinator) SetEntity(e Entity) {
	if e == nil {
		return
	}
	wantsRun := e.HasResult() || e.RequiresParameters()

	c.mu.Lock()
	if c.closed || c.entity == e {
		c.mu.Unlock()
		return
	}
	c.entity = e
	logger := c.logger.WithEntity(e.ID())

	if c.auto && wantsRun {
		started := c.startLocked()
		c.mu.Unlock()
		logger.Debug("auto-triggering trial run")
		c.afterStart(started)
		return
	}

	c.state.HasLoadedInitialResult = true
	c.mu.Unlock()

	logger.Debug("skipping initial trial run", "auto_trigger", c.auto)
	c.publish(event.NewRunSkippedEvent(e.ID()))
	c.emit()
}

// StartRun produces a new run from the current entity and makes it the
// tracked run, superseding any earlier one. It returns nil when there is no
// entity or the coordinator is closed.
func (c *Coordinator) StartRun() RunHandle {
	c.mu.Lock()
	started := c.startLocked()
	c.mu.Unlock()

	if started == nil {
		return nil
	}
	c.afterStart(started)
	return started.handle
}

type startedRun struct {
	entity Entity
	handle RunHandle
	gen    uint64
}

// startLocked must be called with c.mu held.
func (c *Coordinator) startLocked() *startedRun {
	if c.closed || c.entity == nil {
		return nil
	}

	entity := c.entity
	handle := entity.ProduceRun(RunOptions{MaxAge: c.maxAge})
	if handle == nil {
		c.logger.WithEntity(entity.ID()).Warn("entity produced no run")
		return nil
	}

	c.lastGen++
	r := &startedRun{entity: entity, handle: handle, gen: c.lastGen}
	c.gen = r.gen
	c.tracked = handle
	c.startedAt = time.Now()

	c.state.IsRunning = true
	c.state.IsCancelling = false
	c.state.Status = handle.Status()
	c.state.UpdatedAt = handle.UpdatedAt()
	c.state.Cancel = c.cancelFor(r)
	c.state.Err = nil

	c.wg.Add(1)
	return r
}

// relevantLocked reports whether r is still the tracked, unresolved run.
func (c *Coordinator) relevantLocked(r *startedRun) bool {
	return r.gen == c.gen && c.state.IsRunning && c.ctx.Err() == nil
}

func (c *Coordinator) afterStart(r *startedRun) {
	c.metrics.RunStarted()
	go c.await(r)

	permitted := c.notifier.CheckPermission()
	c.logger.WithEntity(r.entity.ID()).WithRun(r.handle.ID()).Info("trial run started",
		"generation", r.gen,
		"max_age", c.maxAge.String(),
		"notifications", permitted,
	)
	c.publish(event.NewRunStartedEvent(r.entity.ID(), r.handle.ID(), r.gen))
	c.emit()
}

func (c *Coordinator) await(r *startedRun) {
	defer c.wg.Done()
	defer c.metrics.RunFinished()

	result, err := r.handle.Await(c.ctx, func(s Status) {
		c.refreshStatus(r, s)
	})
	c.resolve(r, result, err)
}

// refreshStatus applies an intermediate status from r if r is still tracked
// and unresolved.
func (c *Coordinator) refreshStatus(r *startedRun, s Status) {
	c.mu.Lock()
	if !c.relevantLocked(r) || s == "" || s.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.state.Status = s
	c.state.UpdatedAt = r.handle.UpdatedAt()
	c.mu.Unlock()

	c.publish(event.NewRunStatusEvent(r.entity.ID(), r.handle.ID(), string(s)))
	c.emit()
}

func (c *Coordinator) resolve(r *startedRun, result *Result, err error) {
	logger := c.logger.WithEntity(r.entity.ID()).WithRun(r.handle.ID())

	c.mu.Lock()
	if !c.relevantLocked(r) {
		current := c.gen
		c.mu.Unlock()

		c.metrics.IncStale()
		logger.Debug("discarding stale run outcome", "generation", r.gen, "current", current, "error", err)
		c.publish(event.NewStaleOutcomeEvent(r.handle.ID(), r.gen, current))
		return
	}
	wasLoaded := c.state.HasLoadedInitialResult
	duration := time.Since(c.startedAt)

	// A result only belongs to the entity if it was computed from the text
	// the entity holds now.
	attached := err == nil && result != nil && result.Query == r.entity.QueryText()
	if attached {
		r.entity.AttachResult(result.ID, result)
	}

	c.state = State{
		Result:                 result,
		HasLoadedInitialResult: true,
		Err:                    err,
	}
	c.mu.Unlock()

	name := r.entity.Name()
	if err != nil {
		canceled := errors.Is(err, errors.ErrRunCanceled)
		outcome := metrics.OutcomeFailed
		if canceled {
			outcome = metrics.OutcomeCanceled
		}
		c.metrics.ObserveOutcome(outcome, duration)

		reason := errors.UserMessage(err)
		if wasLoaded {
			c.notifier.Notify(c.title, fmt.Sprintf("%s failed to run: %s", name, reason))
		}
		logger.Warn("trial run failed", "error", err, "canceled", canceled, "duration", duration)
		c.publish(event.NewRunFailedEvent(r.entity.ID(), r.handle.ID(), reason, canceled, duration))
		c.emit()
		return
	}

	c.metrics.ObserveOutcome(metrics.OutcomeSucceeded, duration)

	if wasLoaded {
		c.notifier.Notify(c.title, fmt.Sprintf("%s updated.", name))
	}

	resultID := ""
	if result != nil {
		resultID = result.ID
	}
	logger.Info("trial run completed", "result_id", resultID, "attached", attached, "duration", duration)
	c.publish(event.NewRunCompletedEvent(r.entity.ID(), r.handle.ID(), resultID, attached, duration))
	c.emit()
}

// cancelFor returns the cancel action for r. It forwards to the handle at
// most once and does nothing once r is superseded or resolved or the
// coordinator is closed.
func (c *Coordinator) cancelFor(r *startedRun) func() {
	return func() {
		c.mu.Lock()
		if !c.relevantLocked(r) || c.state.IsCancelling {
			c.mu.Unlock()
			return
		}
		c.state.IsCancelling = true
		c.mu.Unlock()

		c.metrics.IncCancelRequest()
		c.logger.WithEntity(r.entity.ID()).WithRun(r.handle.ID()).Info("cancelling trial run")
		r.handle.Cancel()

		c.publish(event.NewCancelRequestedEvent(r.entity.ID(), r.handle.ID()))
		c.emit()
	}
}

// Close detaches the coordinator from any in-flight run. Outcomes and
// statuses arriving afterwards are ignored. The run itself is not cancelled.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen = 0
	c.tracked = nil
	c.mu.Unlock()

	c.cancelFunc()
	c.logger.Debug("coordinator closed")
}

// Wait blocks until every await goroutine has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// emit delivers the current snapshot to listeners and the bus.
func (c *Coordinator) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	snap := c.state
	entityID := ""
	if c.entity != nil {
		entityID = c.entity.ID()
	}
	c.mu.Unlock()

	for _, fn := range c.listeners {
		fn(snap)
	}

	if c.bus == nil {
		return
	}
	resultID, errMsg := "", ""
	if snap.Result != nil {
		resultID = snap.Result.ID
	}
	if snap.Err != nil {
		errMsg = errors.UserMessage(snap.Err)
	}
	c.bus.Publish(event.NewStateChangedEvent(entityID, snap.IsRunning, snap.IsCancelling,
		snap.HasLoadedInitialResult, string(snap.Status), resultID, errMsg))
}
