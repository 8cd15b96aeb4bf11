// Package dbpool manages pooled query-backend connections keyed by DSN.
package dbpool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
)

// DefaultPoolSize bounds open connections per DSN.
const DefaultPoolSize = 10

// Manager owns one lazily-created connection pool per DSN. Pools are
// dropped when the DSN changes and on shutdown.
type Manager struct {
	mu       sync.Mutex
	pools    map[string]*bun.DB
	poolSize int
	debug    bool
	logger   *logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPoolSize overrides the per-DSN connection limit.
func WithPoolSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.poolSize = size
		}
	}
}

// WithDebug attaches bundebug query logging to new pools.
func WithDebug(debug bool) Option {
	return func(m *Manager) {
		m.debug = debug
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a pool manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		pools:    make(map[string]*bun.DB),
		poolSize: DefaultPoolSize,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the pool for the DSN, creating it on first use.
func (m *Manager) Get(dsn string) (*bun.DB, error) {
	if dsn == "" {
		return nil, domain.ErrNoDSN
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pools[dsn]; ok {
		return db, nil
	}

	db := m.open(dsn)
	m.pools[dsn] = db
	m.logger.Info("database pool created", "pool_size", m.poolSize)
	return db, nil
}

func (m *Manager) open(dsn string) *bun.DB {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(10*time.Second),
		pgdriver.WithTimeout(30*time.Second),
	)

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(m.poolSize)
	sqldb.SetMaxIdleConns(m.poolSize)
	sqldb.SetConnMaxIdleTime(10 * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New(), bun.WithDiscardUnknownColumns())
	if m.debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Register installs an externally-constructed pool under a DSN, replacing
// any existing one. Used by tests and embedders that bring their own
// database handle.
func (m *Manager) Register(dsn string, db *bun.DB) {
	m.mu.Lock()
	old, ok := m.pools[dsn]
	m.pools[dsn] = db
	m.mu.Unlock()

	if ok && old != db {
		old.Close()
	}
}

// Test opens a connection for the DSN and issues SELECT 1.
func (m *Manager) Test(ctx context.Context, dsn string) error {
	db, err := m.Get(dsn)
	if err != nil {
		return err
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	return nil
}

// Invalidate closes and drops the pool for the DSN, if any.
func (m *Manager) Invalidate(dsn string) {
	m.mu.Lock()
	db, ok := m.pools[dsn]
	delete(m.pools, dsn)
	m.mu.Unlock()

	if ok {
		if err := db.Close(); err != nil {
			m.logger.Warn("failed to close database pool", "error", err)
		}
	}
}

// Close drops every pool. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*bun.DB)
	m.mu.Unlock()

	for _, db := range pools {
		if err := db.Close(); err != nil {
			m.logger.Warn("failed to close database pool", "error", err)
		}
	}
}
