package engine

import (
	"context"
	"time"

	"github.com/smilemakc/nbflow/internal/domain"
)

// Notebook mutations pass through the scheduler so they serialize with
// runs under the same lock, keep the namespace consistent, and publish a
// fresh notebook_state event.

// CreateCell inserts a cell and publishes the new notebook state.
func (s *Scheduler) CreateCell(cellType domain.CellType, code string) *domain.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := s.repo.InsertCell(cellType, code)
	s.logger.Info("cell created", "cell_id", cell.ID, "cell_type", string(cellType))
	s.publishState()
	return cell
}

// UpdateCell applies a user-facing patch (code, type, order) and publishes
// the new notebook state.
func (s *Scheduler) UpdateCell(id string, patch domain.CellPatch) (*domain.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, err := s.repo.UpdateCell(id, patch)
	if err != nil {
		return nil, err
	}
	s.publishState()
	return cell, nil
}

// DeleteCell removes a cell, clears its last-known defs from the shared
// namespace, and publishes the new notebook state. Cells that depended on
// the removed defs surface name errors on their next run.
func (s *Scheduler) DeleteCell(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell, err := s.repo.DeleteCell(id)
	if err != nil {
		return err
	}
	for _, name := range cell.Defs {
		delete(s.ns, name)
	}
	for _, name := range s.staleDefs[id] {
		delete(s.ns, name)
	}
	delete(s.staleDefs, id)

	s.logger.Info("cell deleted", "cell_id", id)
	s.publishState()
	return nil
}

// SaveSettings replaces notebook settings, invalidating the pool of a
// replaced DSN, and publishes the new notebook state.
func (s *Scheduler) SaveSettings(settings domain.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.repo.Settings()
	s.repo.PutSettings(settings)
	if old.DSN != "" && old.DSN != settings.DSN {
		s.pools.Invalidate(old.DSN)
	}

	s.logger.Info("settings saved", "dsn_configured", settings.DSN != "")
	s.publishState()
}

// TestConnection verifies the configured DSN with a trivial query.
func (s *Scheduler) TestConnection(ctx context.Context) (bool, string) {
	dsn := s.repo.Settings().DSN
	if dsn == "" {
		return false, domain.ErrNoDSN.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.pools.Test(ctx, dsn); err != nil {
		return false, err.Error()
	}
	return true, "connection successful"
}

// Snapshot returns the current notebook state.
func (s *Scheduler) Snapshot() *domain.Notebook {
	return s.repo.Snapshot()
}

func (s *Scheduler) publishState() {
	s.bus.Publish(domain.Event{
		Type:     domain.EventTypeNotebookState,
		Notebook: s.repo.Snapshot(),
	})
}
