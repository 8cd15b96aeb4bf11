package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smilemakc/nbflow/internal/analyzer"
	"github.com/smilemakc/nbflow/internal/dbpool"
	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/eventbus"
	"github.com/smilemakc/nbflow/internal/executor"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/infrastructure/monitoring"
)

// Scheduler orchestrates reactive runs. It owns the shared namespace and
// the ephemeral dependency graph, serializes all runs and notebook
// mutations behind one exclusive lock, and publishes progress events.
type Scheduler struct {
	mu sync.Mutex // the run lock

	repo    domain.Repository
	bus     *eventbus.Bus
	pools   *dbpool.Manager
	imperat *executor.Imperative
	query   *executor.Query
	metrics *monitoring.Metrics
	logger  *logger.Logger

	ns     map[string]any
	runSeq atomic.Int64

	// staleDefs remembers, per cell, the union of its previously-known and
	// freshly-analyzed defs, so renamed or removed definitions are swept
	// from the namespace before re-execution.
	staleDefs map[string][]string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *monitoring.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithImperativeExecutor overrides the imperative executor.
func WithImperativeExecutor(e *executor.Imperative) SchedulerOption {
	return func(s *Scheduler) {
		s.imperat = e
	}
}

// WithQueryExecutor overrides the query executor.
func WithQueryExecutor(q *executor.Query) SchedulerOption {
	return func(s *Scheduler) {
		s.query = q
	}
}

// NewScheduler wires a scheduler over the repository, event bus and pool
// manager.
func NewScheduler(repo domain.Repository, bus *eventbus.Bus, pools *dbpool.Manager, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		repo:      repo,
		bus:       bus,
		pools:     pools,
		ns:        make(map[string]any),
		staleDefs: make(map[string][]string),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.imperat == nil {
		s.imperat = executor.NewImperative(executor.WithImperativeLogger(s.logger))
	}
	if s.query == nil {
		s.query = executor.NewQuery(pools, executor.WithQueryLogger(s.logger))
	}
	bus.SetSnapshotProvider(repo.Snapshot)
	return s
}

// StartRun validates the trigger, reserves a run id, and executes the run
// on its own goroutine. A newer run never preempts an older one; it waits
// for the run lock.
func (s *Scheduler) StartRun(triggerID string) (int64, error) {
	if _, err := s.repo.GetCell(triggerID); err != nil {
		return 0, err
	}
	runID := s.runSeq.Add(1)
	go s.run(context.Background(), runID, triggerID)
	return runID, nil
}

// Run executes a run synchronously. Used by tests and embedders that want
// completion rather than enqueueing.
func (s *Scheduler) Run(ctx context.Context, triggerID string) (int64, error) {
	if _, err := s.repo.GetCell(triggerID); err != nil {
		return 0, err
	}
	runID := s.runSeq.Add(1)
	s.run(ctx, runID, triggerID)
	return runID, nil
}

// run performs one serialized run.
func (s *Scheduler) run(ctx context.Context, runID int64, triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	log := s.logger.With("run_id", runID, "trigger", triggerID)
	log.Info("run started")

	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeRunStarted,
		RunID:  runID,
		CellID: triggerID,
	})

	// The trigger may have been deleted while an older run held the lock.
	if _, err := s.repo.GetCell(triggerID); err != nil {
		log.Warn("trigger vanished before run", "error", err)
		s.finishRun(runID, triggerID, "aborted", start)
		return
	}

	s.reanalyzeAll()

	g, diag := Build(s.repo.ListCells())
	if !diag.OK() {
		s.reportBuildErrors(runID, diag)
		if s.metrics != nil {
			s.metrics.RunFinished("build_error")
		}
		log.Warn("run aborted by graph errors",
			"duplicates", len(diag.Duplicates),
			"cycle_cells", len(diag.Cycle),
		)
		return
	}

	impacted := g.Descendants(triggerID)
	order := g.TopoOrder(impacted)

	s.sweepStaleDefs(impacted)

	failed := make(map[string]bool)
	for _, id := range order {
		s.executeCell(ctx, runID, g, id, failed)
	}

	outcome := "success"
	if len(failed) > 0 {
		outcome = "cell_error"
	}
	s.finishRun(runID, triggerID, outcome, start)
}

func (s *Scheduler) finishRun(runID int64, triggerID, outcome string, start time.Time) {
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeRunFinished,
		RunID:  runID,
		CellID: triggerID,
	})
	if s.metrics != nil {
		s.metrics.RunFinished(outcome)
	}
	s.logger.Info("run finished",
		"run_id", runID,
		"outcome", outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// reanalyzeAll refreshes defs and refs on every cell. The previous defs of
// each cell are folded into the stale-def sweep via the cells' recorded
// state before overwrite.
func (s *Scheduler) reanalyzeAll() {
	for _, c := range s.repo.ListCells() {
		var defs, refs []string
		switch c.Type {
		case domain.CellTypeQuery:
			defs, refs = analyzer.Query(c.Code)
		default:
			defs, refs = analyzer.Imperative(c.Code)
		}
		s.staleDefs[c.ID] = append(append([]string(nil), c.Defs...), defs...)
		if _, err := s.repo.UpdateCell(c.ID, domain.CellPatch{
			Defs: defs, SetDefs: true,
			Refs: refs, SetRefs: true,
		}); err != nil {
			s.logger.Error("failed to persist analysis", "cell_id", c.ID, "error", err)
		}
	}
}

// sweepStaleDefs removes from the namespace every name an impacted cell is
// or was known to define, so re-execution starts from a clean slate.
func (s *Scheduler) sweepStaleDefs(impacted []string) {
	for _, id := range impacted {
		for _, name := range s.staleDefs[id] {
			delete(s.ns, name)
		}
	}
}

// reportBuildErrors marks every cell involved in a duplicate-definition or
// cycle diagnostic and emits its error events.
func (s *Scheduler) reportBuildErrors(runID int64, diag *Diagnostics) {
	type diagnosed struct {
		id  string
		err *domain.CellError
	}
	var all []diagnosed

	for _, dup := range diag.Duplicates {
		for _, id := range dup.Cells {
			peers := make([]string, 0, len(dup.Cells)-1)
			for _, peer := range dup.Cells {
				if peer != id {
					peers = append(peers, peer)
				}
			}
			all = append(all, diagnosed{id: id, err: domain.NewDuplicateDefinition(dup.Name, peers[0])})
		}
	}
	for _, id := range diag.Cycle {
		all = append(all, diagnosed{id: id, err: domain.NewCycle(diag.Cycle)})
	}

	for _, d := range all {
		s.setCellError(runID, d.id, d.err)
	}
}

// executeCell runs one cell of the schedule, honoring skip-on-failure.
func (s *Scheduler) executeCell(ctx context.Context, runID int64, g *Graph, id string, failed map[string]bool) {
	cell, err := s.repo.GetCell(id)
	if err != nil {
		s.logger.Warn("scheduled cell vanished", "cell_id", id)
		return
	}

	if ancestor := g.failedAncestor(id, failed); ancestor != "" {
		s.skipCell(runID, id, ancestor)
		return
	}

	s.setStatus(runID, id, domain.CellStatusRunning)

	start := time.Now()
	var outputs []string
	var execErr error
	switch cell.Type {
	case domain.CellTypeQuery:
		outputs, execErr = s.query.Execute(ctx, cell, s.ns, s.repo.Settings().DSN)
	default:
		outputs, execErr = s.imperat.Execute(ctx, cell, s.ns)
	}

	if execErr != nil {
		failed[id] = true
		for _, name := range cell.Defs {
			delete(s.ns, name)
		}
		s.setCellError(runID, id, execErr)
		if s.metrics != nil {
			s.metrics.CellExecuted(string(cell.Type), "error", time.Since(start))
		}
		return
	}

	if outputs == nil {
		outputs = []string{}
	}
	if _, err := s.repo.UpdateCell(id, domain.CellPatch{
		Status:  statusPtr(domain.CellStatusSuccess),
		Outputs: outputs, SetOutputs: true,
		Error: nil, SetError: true,
	}); err != nil {
		s.logger.Error("failed to persist cell result", "cell_id", id, "error", err)
	}
	s.bus.Publish(domain.Event{
		Type:    domain.EventTypeCellOutput,
		RunID:   runID,
		CellID:  id,
		Outputs: outputs,
	})
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeCellStatus,
		RunID:  runID,
		CellID: id,
		Status: domain.CellStatusSuccess,
	})
	if s.metrics != nil {
		s.metrics.CellExecuted(string(cell.Type), "success", time.Since(start))
	}
}

// skipCell resets a cell whose ancestor failed: idle status, no outputs,
// no error. The failure surfaces only on the ancestor.
func (s *Scheduler) skipCell(runID int64, id, ancestor string) {
	if _, err := s.repo.UpdateCell(id, domain.CellPatch{
		Status:  statusPtr(domain.CellStatusIdle),
		Outputs: []string{}, SetOutputs: true,
		Error: nil, SetError: true,
	}); err != nil {
		s.logger.Error("failed to persist skip", "cell_id", id, "error", err)
	}
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeCellStatus,
		RunID:  runID,
		CellID: id,
		Status: domain.CellStatusIdle,
	})
	s.bus.Publish(domain.Event{
		Type:       domain.EventTypeCellSkipped,
		RunID:      runID,
		CellID:     id,
		AncestorID: ancestor,
	})
}

func (s *Scheduler) setStatus(runID int64, id string, status domain.CellStatus) {
	if _, err := s.repo.UpdateCell(id, domain.CellPatch{Status: &status}); err != nil {
		s.logger.Error("failed to persist status", "cell_id", id, "error", err)
	}
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeCellStatus,
		RunID:  runID,
		CellID: id,
		Status: status,
	})
}

func (s *Scheduler) setCellError(runID int64, id string, cellErr error) {
	msg := cellErr.Error()
	if _, err := s.repo.UpdateCell(id, domain.CellPatch{
		Status:  statusPtr(domain.CellStatusError),
		Outputs: []string{}, SetOutputs: true,
		Error: &msg, SetError: true,
	}); err != nil {
		s.logger.Error("failed to persist cell error", "cell_id", id, "error", err)
	}
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeCellError,
		RunID:  runID,
		CellID: id,
		Error:  msg,
	})
	s.bus.Publish(domain.Event{
		Type:   domain.EventTypeCellStatus,
		RunID:  runID,
		CellID: id,
		Status: domain.CellStatusError,
	})
}

func statusPtr(s domain.CellStatus) *domain.CellStatus {
	return &s
}

// Namespace returns a copy of the shared namespace. Intended for tests and
// diagnostics.
func (s *Scheduler) Namespace() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.ns))
	for k, v := range s.ns {
		out[k] = v
	}
	return out
}
