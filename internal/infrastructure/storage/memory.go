// Package storage provides the in-memory notebook repository.
package storage

import (
	"sync"

	"github.com/smilemakc/nbflow/internal/domain"
)

// MemoryRepository is the in-memory implementation of domain.Repository.
// It is the single source of truth for cells and settings; every operation
// completes atomically under one mutex.
type MemoryRepository struct {
	mu       sync.RWMutex
	cells    map[string]*domain.Cell
	settings domain.Settings
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		cells: make(map[string]*domain.Cell),
	}
}

// ListCells returns clones of all cells in (order, id) order.
func (r *MemoryRepository) ListCells() []*domain.Cell {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *MemoryRepository) listLocked() []*domain.Cell {
	out := make([]*domain.Cell, 0, len(r.cells))
	for _, c := range r.cells {
		out = append(out, c.Clone())
	}
	domain.SortCells(out)
	return out
}

// GetCell returns a clone of the cell with the given id.
func (r *MemoryRepository) GetCell(id string) (*domain.Cell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[id]
	if !ok {
		return nil, domain.ErrCellNotFound
	}
	return c.Clone(), nil
}

// InsertCell creates a cell with a fresh id placed after every existing
// cell.
func (r *MemoryRepository) InsertCell(cellType domain.CellType, code string) *domain.Cell {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := 0
	for _, c := range r.cells {
		if c.Order >= order {
			order = c.Order + 1
		}
	}

	cell := domain.NewCell(cellType, code, order)
	r.cells[cell.ID] = cell
	return cell.Clone()
}

// UpdateCell applies the patch and returns the updated cell.
func (r *MemoryRepository) UpdateCell(id string, patch domain.CellPatch) (*domain.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[id]
	if !ok {
		return nil, domain.ErrCellNotFound
	}

	if patch.Code != nil {
		c.Code = *patch.Code
	}
	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.Order != nil {
		c.Order = *patch.Order
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.SetOutputs {
		c.Outputs = append([]string(nil), patch.Outputs...)
		if c.Outputs == nil {
			c.Outputs = []string{}
		}
	}
	if patch.SetError {
		if patch.Error == nil {
			c.Error = nil
		} else {
			msg := *patch.Error
			c.Error = &msg
		}
	}
	if patch.SetDefs {
		c.Defs = append([]string(nil), patch.Defs...)
	}
	if patch.SetRefs {
		c.Refs = append([]string(nil), patch.Refs...)
	}

	return c.Clone(), nil
}

// DeleteCell removes the cell and returns its last persisted state.
func (r *MemoryRepository) DeleteCell(id string) (*domain.Cell, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[id]
	if !ok {
		return nil, domain.ErrCellNotFound
	}
	delete(r.cells, id)
	return c, nil
}

// Settings returns the current notebook settings.
func (r *MemoryRepository) Settings() domain.Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// PutSettings replaces the notebook settings.
func (r *MemoryRepository) PutSettings(settings domain.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
}

// Snapshot returns the full notebook state.
func (r *MemoryRepository) Snapshot() *domain.Notebook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &domain.Notebook{
		Settings: r.settings,
		Cells:    r.listLocked(),
	}
}
