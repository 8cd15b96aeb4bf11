package domain

// CellPatch describes a partial cell update. Nil pointer fields are left
// untouched; slice fields are guarded by the matching Set flag so that an
// explicit empty value can be distinguished from "unchanged".
type CellPatch struct {
	Code   *string
	Type   *CellType
	Order  *int
	Status *CellStatus

	Outputs    []string
	SetOutputs bool

	Error    *string
	SetError bool

	Defs    []string
	SetDefs bool

	Refs    []string
	SetRefs bool
}

// Repository is the single source of truth for cells and settings. All
// operations are synchronous and atomic with respect to one another;
// callers serialize writes through the scheduler's run lock.
type Repository interface {
	// ListCells returns all cells in stable (order, id) order.
	ListCells() []*Cell

	// GetCell returns the cell with the given id, or ErrCellNotFound.
	GetCell(id string) (*Cell, error)

	// InsertCell creates a cell with a fresh id and order = max+1.
	InsertCell(cellType CellType, code string) *Cell

	// UpdateCell applies the patch and returns the updated cell.
	UpdateCell(id string, patch CellPatch) (*Cell, error)

	// DeleteCell removes the cell and returns its last persisted state.
	DeleteCell(id string) (*Cell, error)

	// Settings returns the current notebook settings.
	Settings() Settings

	// PutSettings replaces the notebook settings.
	PutSettings(settings Settings)

	// Snapshot returns the full notebook state.
	Snapshot() *Notebook
}
