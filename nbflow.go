// Package nbflow embeds the reactive notebook engine: an in-memory
// notebook, the dependency-driven scheduler, and the event bus, wired and
// ready to serve or to drive directly from Go.
package nbflow

import (
	"time"

	"github.com/smilemakc/nbflow/internal/dbpool"
	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/engine"
	"github.com/smilemakc/nbflow/internal/eventbus"
	"github.com/smilemakc/nbflow/internal/executor"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/infrastructure/monitoring"
	"github.com/smilemakc/nbflow/internal/infrastructure/storage"
)

// Re-exported domain types for embedders.
type (
	Cell       = domain.Cell
	CellType   = domain.CellType
	CellStatus = domain.CellStatus
	Notebook   = domain.Notebook
	Settings   = domain.Settings
	Event      = domain.Event
	EventType  = domain.EventType
)

// Cell type and status constants.
const (
	CellTypeImperative = domain.CellTypeImperative
	CellTypeQuery      = domain.CellTypeQuery

	CellStatusIdle    = domain.CellStatusIdle
	CellStatusRunning = domain.CellStatusRunning
	CellStatusSuccess = domain.CellStatusSuccess
	CellStatusError   = domain.CellStatusError
)

// Engine bundles the wired notebook components.
type Engine struct {
	Repository *storage.MemoryRepository
	Bus        *eventbus.Bus
	Pools      *dbpool.Manager
	Scheduler  *engine.Scheduler
	Metrics    *monitoring.Metrics
}

type config struct {
	logger      *logger.Logger
	metrics     *monitoring.Metrics
	dsn         string
	debugSQL    bool
	cellTimeout time.Duration
	rowCap      int
	queueSize   int
}

// Option configures the engine.
type Option func(*config)

// WithLogger sets the logger shared by all components.
func WithLogger(l *logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithDSN seeds the notebook settings with a query backend DSN.
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithSQLDebug enables query logging on backend pools.
func WithSQLDebug(debug bool) Option {
	return func(c *config) { c.debugSQL = debug }
}

// WithCellTimeout overrides the per-cell execution deadline.
func WithCellTimeout(d time.Duration) Option {
	return func(c *config) { c.cellTimeout = d }
}

// WithRowCap overrides the query result row cap.
func WithRowCap(n int) Option {
	return func(c *config) { c.rowCap = n }
}

// WithEventQueueSize overrides the per-subscriber event queue capacity.
func WithEventQueueSize(n int) Option {
	return func(c *config) { c.queueSize = n }
}

// New wires a complete notebook engine.
func New(opts ...Option) *Engine {
	cfg := &config{logger: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	repo := storage.NewMemoryRepository()
	if cfg.dsn != "" {
		repo.PutSettings(domain.Settings{DSN: cfg.dsn})
	}

	busOpts := []eventbus.Option{eventbus.WithLogger(cfg.logger)}
	if cfg.queueSize > 0 {
		busOpts = append(busOpts, eventbus.WithQueueSize(cfg.queueSize))
	}
	bus := eventbus.New(busOpts...)

	pools := dbpool.NewManager(
		dbpool.WithLogger(cfg.logger),
		dbpool.WithDebug(cfg.debugSQL),
	)

	imperativeOpts := []executor.ImperativeOption{executor.WithImperativeLogger(cfg.logger)}
	queryOpts := []executor.QueryOption{executor.WithQueryLogger(cfg.logger)}
	if cfg.cellTimeout > 0 {
		imperativeOpts = append(imperativeOpts, executor.WithCellTimeout(cfg.cellTimeout))
		queryOpts = append(queryOpts, executor.WithQueryTimeout(cfg.cellTimeout))
	}
	if cfg.rowCap > 0 {
		queryOpts = append(queryOpts, executor.WithRowCap(cfg.rowCap))
	}

	schedOpts := []engine.SchedulerOption{
		engine.WithLogger(cfg.logger),
		engine.WithImperativeExecutor(executor.NewImperative(imperativeOpts...)),
		engine.WithQueryExecutor(executor.NewQuery(pools, queryOpts...)),
	}
	if cfg.metrics != nil {
		schedOpts = append(schedOpts, engine.WithMetrics(cfg.metrics))
	}

	return &Engine{
		Repository: repo,
		Bus:        bus,
		Pools:      pools,
		Scheduler:  engine.NewScheduler(repo, bus, pools, schedOpts...),
		Metrics:    cfg.metrics,
	}
}

// Close releases pooled resources.
func (e *Engine) Close() {
	e.Pools.Close()
}
