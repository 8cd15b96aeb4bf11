package domain

import (
	"sort"

	"github.com/google/uuid"
)

// CellType identifies the language of a cell.
type CellType string

const (
	// CellTypeImperative is a cell evaluated against the shared namespace.
	CellTypeImperative CellType = "imperative"

	// CellTypeQuery is a cell executed against the configured database.
	CellTypeQuery CellType = "query"
)

// Valid reports whether the cell type is a known language tag.
func (t CellType) Valid() bool {
	return t == CellTypeImperative || t == CellTypeQuery
}

// CellStatus represents the lifecycle state of a cell.
type CellStatus string

const (
	CellStatusIdle    CellStatus = "idle"
	CellStatusRunning CellStatus = "running"
	CellStatusSuccess CellStatus = "success"
	CellStatusError   CellStatus = "error"
)

// Cell is a unit of notebook code with its last execution results and the
// names it defines and references, as determined by its analyzer.
type Cell struct {
	ID      string     `json:"id"`
	Type    CellType   `json:"type"`
	Code    string     `json:"code"`
	Order   int        `json:"order"`
	Status  CellStatus `json:"status"`
	Outputs []string   `json:"outputs"`
	Error   *string    `json:"error"`
	Defs    []string   `json:"defs"`
	Refs    []string   `json:"refs"`
}

// NewCell creates an idle cell with a fresh identifier.
func NewCell(cellType CellType, code string, order int) *Cell {
	return &Cell{
		ID:      uuid.New().String(),
		Type:    cellType,
		Code:    code,
		Order:   order,
		Status:  CellStatusIdle,
		Outputs: []string{},
	}
}

// Clone returns a deep copy of the cell.
func (c *Cell) Clone() *Cell {
	cp := *c
	if c.Outputs != nil {
		cp.Outputs = append([]string{}, c.Outputs...)
	}
	if c.Defs != nil {
		cp.Defs = append([]string(nil), c.Defs...)
	}
	if c.Refs != nil {
		cp.Refs = append([]string(nil), c.Refs...)
	}
	if c.Error != nil {
		msg := *c.Error
		cp.Error = &msg
	}
	return &cp
}

// SortCells orders cells by (order, id). The order field alone is not
// guaranteed unique, so the id breaks ties deterministically.
func SortCells(cells []*Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Order != cells[j].Order {
			return cells[i].Order < cells[j].Order
		}
		return cells[i].ID < cells[j].ID
	})
}
