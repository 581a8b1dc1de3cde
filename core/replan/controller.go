package replan

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/volteq/flexplan/core/events"
	"github.com/volteq/flexplan/core/flex"
	"github.com/volteq/flexplan/core/history"
	"github.com/volteq/flexplan/core/logger"
	"github.com/volteq/flexplan/core/market"
	"github.com/volteq/flexplan/core/metrics"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/core/monitoring"
	"github.com/volteq/flexplan/core/plan"
	"github.com/volteq/flexplan/core/publish"
	"github.com/volteq/flexplan/core/solver"
	"github.com/volteq/flexplan/internal/eventbus"
)

// AssetSource returns the current asset fleet of a portfolio. Snapshots must
// be stable: later mutations of the source must not change returned slices.
type AssetSource interface {
	Snapshot(ctx context.Context, portfolio string) ([]model.Asset, error)
}

// RequirementSource returns the market requirements covering a horizon.
type RequirementSource interface {
	Requirements(ctx context.Context, portfolio string, h model.Horizon) ([]model.Requirement, error)
}

// pendingTrigger is the single-slot trigger queue. Bursts merge into one
// slot so a run always starts from the freshest demand, never from a backlog.
type pendingTrigger struct {
	trig      model.Trigger
	coalesced int
}

func (p *pendingTrigger) merge(t model.Trigger) {
	p.coalesced++
	if t.Kind.Urgent() && !p.trig.Kind.Urgent() {
		p.trig.Kind = t.Kind
		p.trig.Reason = t.Reason
	}
	if t.At.After(p.trig.At) {
		p.trig.At = t.At
	}
}

// Controller owns the replanning lifecycle of one portfolio.
type Controller struct {
	portfolio string
	cfg       Config
	combine   market.CombinationMode

	assets  AssetSource
	reqs    RequirementSource
	builder plan.Builder
	solver  solver.Solver
	pub     publish.Publisher
	sink    metrics.MetricsSink
	bus     *eventbus.Bus[events.Event]
	logger  logger.Logger
	history history.Store

	now func() time.Time

	mu          sync.Mutex
	state       State
	pending     *pendingTrigger
	seq         uint64
	lastGood    *publish.Publication
	solveCancel context.CancelFunc

	notify chan struct{}
}

// NewController creates a controller for one portfolio. The asset source,
// requirement source, solver, publisher and logger are mandatory; the metrics
// sink and event bus may be nil.
func NewController(portfolio string, cfg Config, assets AssetSource, reqs RequirementSource, solv solver.Solver, pub publish.Publisher, sink metrics.MetricsSink, bus *eventbus.Bus[events.Event], log logger.Logger) (*Controller, error) {
	if portfolio == "" {
		return nil, fmt.Errorf("replan: portfolio name must not be empty")
	}
	if assets == nil || reqs == nil || solv == nil || pub == nil || log == nil {
		return nil, fmt.Errorf("replan: nil parameter provided to NewController")
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	mode, err := market.ParseCombinationMode(cfg.Combination)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Controller{
		portfolio: portfolio,
		cfg:       cfg,
		combine:   mode,
		assets:    assets,
		reqs:      reqs,
		builder:   plan.NewBuilder(),
		solver:    solv,
		pub:       pub,
		sink:      sink,
		bus:       bus,
		logger:    log,
		history:   history.NopStore{},
		now:       time.Now,
		state:     StateIdle,
		notify:    make(chan struct{}, 1),
	}, nil
}

// SetHistory configures the store used to persist planning runs.
func (c *Controller) SetHistory(store history.Store) {
	if store == nil {
		return
	}
	c.mu.Lock()
	c.history = store
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastPublication returns the most recent fresh publication, if any.
func (c *Controller) LastPublication() (publish.Publication, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastGood == nil {
		return publish.Publication{}, false
	}
	return *c.lastGood, true
}

// Submit queues a trigger. Triggers arriving while one is queued merge into
// it; an urgent trigger additionally aborts an in-flight solve so the next
// run starts from fresh snapshots. Submit never blocks.
func (c *Controller) Submit(t model.Trigger) {
	if t.Portfolio == "" {
		t.Portfolio = c.portfolio
	}
	if t.Portfolio != c.portfolio {
		c.logger.Warnf("trigger for portfolio %q ignored by controller %q", t.Portfolio, c.portfolio)
		return
	}
	if t.At.IsZero() {
		t.At = c.now()
	}
	c.mu.Lock()
	if c.pending == nil {
		c.pending = &pendingTrigger{trig: t}
	} else {
		c.pending.merge(t)
	}
	cancel := c.solveCancel
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	if t.Kind.Urgent() && cancel != nil {
		c.logger.Infof("urgent trigger %s, aborting in-flight solve", t.Kind)
		cancel()
	}
}

// Run executes queued triggers until the context is cancelled. Runs are
// strictly sequential; at most one schedule is in flight per portfolio.
func (c *Controller) Run(ctx context.Context) {
	defer monitoring.Recover()

	var rolloverC <-chan time.Time
	if iv := c.cfg.RolloverInterval(); iv > 0 {
		ticker := time.NewTicker(iv)
		defer ticker.Stop()
		rolloverC = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-rolloverC:
			c.Submit(model.Trigger{Kind: model.TriggerRollover, Portfolio: c.portfolio, Reason: "periodic rollover"})
			continue
		case <-c.notify:
		}
		c.settle(ctx)
		pt := c.takePending()
		if pt == nil {
			continue
		}
		c.execute(ctx, pt.trig, pt.coalesced)
		if !c.hasPending() {
			c.transition(StateIdle, nil, nil)
		}
	}
}

// settle waits the coalesce window so trigger bursts collapse into a single
// run. An urgent trigger ends the window early.
func (c *Controller) settle(ctx context.Context) {
	w := c.cfg.CoalesceWindow()
	if w <= 0 || c.pendingUrgent() {
		return
	}
	timer := time.NewTimer(w)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
			if c.pendingUrgent() {
				return
			}
		case <-timer.C:
			return
		}
	}
}

func (c *Controller) takePending() *pendingTrigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	pt := c.pending
	c.pending = nil
	return pt
}

func (c *Controller) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Controller) pendingUrgent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil && c.pending.trig.Kind.Urgent()
}

func (c *Controller) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// runInputs is the immutable snapshot one run plans from.
type runInputs struct {
	horizon model.Horizon
	envs    []flex.Envelope
	tracks  []market.Track
}

func (c *Controller) snapshot(ctx context.Context) (runInputs, error) {
	assets, err := c.assets.Snapshot(ctx, c.portfolio)
	if err != nil {
		return runInputs{}, fmt.Errorf("asset snapshot: %w", err)
	}
	h, err := model.Rolling(c.now(), c.cfg.Resolution(), c.cfg.Periods)
	if err != nil {
		return runInputs{}, err
	}
	envs, err := flex.BuildAll(assets, h)
	if err != nil {
		return runInputs{}, err
	}
	reqs, err := c.reqs.Requirements(ctx, c.portfolio, h)
	if err != nil {
		return runInputs{}, fmt.Errorf("requirements: %w", err)
	}
	tracks, err := market.BuildTracks(reqs, h)
	if err != nil {
		return runInputs{}, err
	}
	tracks, err = market.Combine(tracks, c.combine)
	if err != nil {
		return runInputs{}, err
	}
	return runInputs{horizon: h, envs: envs, tracks: tracks}, nil
}

// execute drives one trigger through the full pipeline.
func (c *Controller) execute(ctx context.Context, trig model.Trigger, coalesced int) {
	run := model.Run{
		ID:        uuid.NewString(),
		Portfolio: c.portfolio,
		Trigger:   trig,
		Seq:       c.nextSeq(),
		Source:    "replan",
		StartedAt: c.now(),
	}
	c.emit(events.TriggerEvent{Trigger: trig, Coalesced: coalesced})
	c.recordTrigger(trig, coalesced)
	c.logger.Infof("run %s started trigger=%s coalesced=%d seq=%d", run.ID, trig.Kind, coalesced, run.Seq)

	c.transition(StateBuilding, &run, nil)
	in, err := c.snapshot(ctx)
	if err != nil {
		c.fail(ctx, &run, fmt.Errorf("build: %w", err))
		return
	}
	run.Periods = in.horizon.Len()
	run.Assets = len(in.envs)
	run.Products = len(in.tracks)

	problem, err := c.builder.Build(in.horizon, in.envs, in.tracks)
	if err != nil {
		c.fail(ctx, &run, fmt.Errorf("build: %w", err))
		return
	}

	c.transition(StateSolving, &run, nil)
	res, preempted, err := c.solve(ctx, problem)
	if err != nil {
		c.fail(ctx, &run, fmt.Errorf("solve: %w", err))
		return
	}
	if preempted {
		c.preempt(&run)
		return
	}

	if res.Status == model.StatusInfeasible && c.cfg.RelaxFactor > 0 {
		run.Relaxed = true
		c.emit(events.FallbackEvent{Portfolio: c.portfolio, RunID: run.ID, Relaxed: true, Reason: res.Detail})
		c.logger.Warnf("run %s infeasible, retrying with bands widened by %.0f%%: %s", run.ID, c.cfg.RelaxFactor*100, res.Detail)

		relaxed := make([]market.Track, len(in.tracks))
		for i, tr := range in.tracks {
			relaxed[i] = tr.Relax(c.cfg.RelaxFactor)
		}
		c.transition(StateBuilding, &run, nil)
		problem, err = c.builder.Build(in.horizon, in.envs, relaxed)
		if err != nil {
			c.fail(ctx, &run, fmt.Errorf("relaxed build: %w", err))
			return
		}
		c.transition(StateSolving, &run, nil)
		res, preempted, err = c.solve(ctx, problem)
		if err != nil {
			c.fail(ctx, &run, fmt.Errorf("relaxed solve: %w", err))
			return
		}
		if preempted {
			c.preempt(&run)
			return
		}
	}

	run.Status = res.Status
	run.Objective = res.Objective
	if !res.Status.Usable() {
		c.fail(ctx, &run, fmt.Errorf("solve ended %s: %s", res.Status, res.Detail))
		return
	}

	c.transition(StateAssembling, &run, nil)
	sched, err := plan.Assemble(plan.Input{
		Portfolio: c.portfolio,
		Problem:   problem,
		Status:    res.Status,
		Objective: res.Objective,
		X:         res.X,
		Solver:    c.solver.Name(),
	})
	if err != nil {
		// Assembly defects come from model construction, not from market
		// conditions; a relaxed retry would rebuild the same defect.
		c.fail(ctx, &run, fmt.Errorf("assemble: %w", err))
		return
	}
	run.ScheduleID = sched.ID

	p := publish.Publication{Portfolio: c.portfolio, Seq: run.Seq, Schedule: sched}
	if err := c.pub.PublishSchedule(ctx, p); err != nil {
		c.fail(ctx, &run, fmt.Errorf("publish: %w", err))
		return
	}
	c.mu.Lock()
	c.lastGood = &p
	c.mu.Unlock()

	c.transition(StatePublished, &run, nil)
	run.FinishedAt = c.now()
	dev := maxDeviation(sched.AggregateKW, in.tracks)
	c.emit(events.PublishEvent{Portfolio: c.portfolio, ScheduleID: sched.ID, Seq: p.Seq, Stale: false})
	c.recordPublication(p, dev)
	publicationsTotal.WithLabelValues(c.portfolio, "false").Inc()
	c.logger.Infof("run %s published schedule=%s status=%s objective=%.3f deviation=%.3fkW",
		run.ID, sched.ID, run.Status, run.Objective, dev)
	c.finishRun(run)
}

// solve runs the backend under the budget with a cancel hook installed, so
// Submit can abort the attempt for an urgent trigger.
func (c *Controller) solve(ctx context.Context, p *plan.Problem) (solver.Result, bool, error) {
	c.mu.Lock()
	urgentQueued := c.pending != nil && c.pending.trig.Kind.Urgent()
	c.mu.Unlock()
	if urgentQueued {
		return solver.Result{}, true, nil
	}

	solveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.solveCancel = cancel
	c.mu.Unlock()

	start := time.Now()
	res, err := c.solver.Solve(solveCtx, p, c.cfg.SolveBudget())
	solveDuration.WithLabelValues(c.portfolio).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	c.solveCancel = nil
	c.mu.Unlock()

	if err != nil {
		if solveCtx.Err() != nil && ctx.Err() == nil {
			return solver.Result{}, true, nil
		}
		return solver.Result{}, false, err
	}
	return res, false, nil
}

// preempt abandons the run in favour of the queued urgent trigger. The
// partial result is discarded; nothing is published.
func (c *Controller) preempt(run *model.Run) {
	run.Err = "preempted by urgent trigger"
	run.FinishedAt = c.now()
	c.logger.Infof("run %s preempted, replanning from fresh snapshots", run.ID)
	c.finishRun(*run)
}

// fail finishes a run without a fresh schedule and degrades to the
// last-known-good publication when one exists.
func (c *Controller) fail(ctx context.Context, run *model.Run, cause error) {
	run.Err = cause.Error()
	run.FinishedAt = c.now()
	if run.Status == model.StatusUnknown {
		run.Status = model.StatusSolverError
	}
	c.transition(StateFailed, run, cause)
	c.logger.Errorf("run %s failed: %v", run.ID, cause)
	if ctx.Err() != nil {
		// Shutdown, not a planning failure: no capture, no stale fallback.
		c.finishRun(*run)
		return
	}
	monitoring.CaptureException(cause, map[string]string{
		"module":    "replan",
		"portfolio": c.portfolio,
		"run_id":    run.ID,
	})

	c.mu.Lock()
	last := c.lastGood
	c.mu.Unlock()
	if last != nil {
		stale := *last
		stale.Stale = true
		stale.Seq = c.nextSeq()
		if err := c.pub.PublishSchedule(ctx, stale); err != nil {
			c.logger.Errorf("stale republication failed: %v", err)
		} else {
			c.transition(StateStale, run, nil)
			c.emit(events.FallbackEvent{Portfolio: c.portfolio, RunID: run.ID, Reason: "republished last known good schedule"})
			c.emit(events.PublishEvent{Portfolio: c.portfolio, ScheduleID: stale.Schedule.ID, Seq: stale.Seq, Stale: true})
			c.recordPublication(stale, 0)
			publicationsTotal.WithLabelValues(c.portfolio, "true").Inc()
			c.logger.Warnf("republished schedule %s as stale seq=%d", stale.Schedule.ID, stale.Seq)
		}
	}
	c.finishRun(*run)
}

// finishRun persists the run record and counts it, regardless of outcome.
// The append uses a fresh context so records survive shutdown.
func (c *Controller) finishRun(run model.Run) {
	runsTotal.WithLabelValues(c.portfolio, run.Status.String(), strconv.FormatBool(run.Relaxed)).Inc()
	c.emit(events.RunEvent{Portfolio: c.portfolio, RunID: run.ID, Phase: "finished", Status: run.Status})
	c.mu.Lock()
	store := c.history
	c.mu.Unlock()
	if err := store.Append(context.Background(), run); err != nil {
		c.logger.Errorf("history append failed: %v", err)
	}
	if err := c.sink.RecordRun(metrics.RunRecord{
		RunID:     run.ID,
		Portfolio: run.Portfolio,
		Trigger:   run.Trigger.Kind,
		Status:    run.Status,
		Solver:    c.solver.Name(),
		Objective: run.Objective,
		Periods:   run.Periods,
		Assets:    run.Assets,
		Relaxed:   run.Relaxed,
		Duration:  run.Duration(),
		Time:      run.FinishedAt,
	}); err != nil {
		c.logger.Errorf("metrics record failed: %v", err)
	}
}

func (c *Controller) transition(next State, run *model.Run, err error) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	if prev == next {
		return
	}
	if !prev.CanEnter(next) {
		c.logger.Errorf("illegal state transition %s -> %s", prev, next)
	}
	ev := events.RunEvent{Portfolio: c.portfolio, Phase: next.String(), Err: err}
	if run != nil {
		ev.RunID = run.ID
		ev.Status = run.Status
	}
	c.emit(ev)
}

func (c *Controller) emit(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Controller) recordTrigger(t model.Trigger, coalesced int) {
	triggersTotal.WithLabelValues(c.portfolio, t.Kind.String()).Inc()
	if coalesced > 0 {
		triggersCoalesced.Add(float64(coalesced))
	}
	if rec, ok := c.sink.(metrics.TriggerRecorder); ok {
		if err := rec.RecordTrigger(metrics.TriggerRecord{
			Portfolio: c.portfolio,
			Kind:      t.Kind,
			Coalesced: coalesced,
			Time:      c.now(),
		}); err != nil {
			c.logger.Errorf("trigger metrics error: %v", err)
		}
	}
}

func (c *Controller) recordPublication(p publish.Publication, maxDev float64) {
	if rec, ok := c.sink.(metrics.PublicationRecorder); ok {
		if err := rec.RecordPublication(metrics.PublicationRecord{
			Portfolio:      p.Portfolio,
			ScheduleID:     p.Schedule.ID,
			Seq:            p.Seq,
			Stale:          p.Stale,
			MaxDeviationKW: maxDev,
			PlannedKWh:     plannedEnergy(p.Schedule),
			Time:           c.now(),
		}); err != nil {
			c.logger.Errorf("publication metrics error: %v", err)
		}
	}
}

// plannedEnergy integrates the aggregate trajectory over the horizon.
func plannedEnergy(s model.Schedule) float64 {
	var kwh float64
	for i, agg := range s.AggregateKW {
		if i >= s.Horizon.Len() {
			break
		}
		kwh += agg * s.Horizon.Period(i).Hours()
	}
	return kwh
}

// maxDeviation returns the largest absolute gap between the aggregate and any
// track target across the horizon.
func maxDeviation(agg []float64, tracks []market.Track) float64 {
	var max float64
	for _, tr := range tracks {
		for i, target := range tr.TargetKW {
			if i >= len(agg) {
				break
			}
			if d := math.Abs(agg[i] - target); d > max {
				max = d
			}
		}
	}
	return max
}
