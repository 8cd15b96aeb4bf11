package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smilemakc/nbflow/internal/analyzer"
	"github.com/smilemakc/nbflow/internal/dbpool"
	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
)

// DefaultRowCap bounds the number of result rows emitted per query cell.
const DefaultRowCap = 1000

// Query executes query cells: placeholders are interpolated from the
// shared namespace, the statement runs against the configured backend, and
// rows are shaped as JSON lines.
type Query struct {
	pools   *dbpool.Manager
	timeout time.Duration
	rowCap  int
	logger  *logger.Logger
}

// QueryOption configures a Query executor.
type QueryOption func(*Query)

// WithQueryTimeout overrides the per-cell deadline.
func WithQueryTimeout(d time.Duration) QueryOption {
	return func(q *Query) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRowCap overrides the row cap.
func WithRowCap(n int) QueryOption {
	return func(q *Query) {
		if n > 0 {
			q.rowCap = n
		}
	}
}

// WithQueryLogger sets the executor logger.
func WithQueryLogger(l *logger.Logger) QueryOption {
	return func(q *Query) {
		q.logger = l
	}
}

// NewQuery creates a query executor over the given pool manager.
func NewQuery(pools *dbpool.Manager, opts ...QueryOption) *Query {
	q := &Query{
		pools:   pools,
		timeout: DefaultCellTimeout,
		rowCap:  DefaultRowCap,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Execute runs one query cell. The returned error is always a cell-scoped
// error; outputs are nil on failure.
func (q *Query) Execute(ctx context.Context, cell *domain.Cell, ns map[string]any, dsn string) ([]string, error) {
	stmt, err := q.interpolate(cell.Code, ns)
	if err != nil {
		return nil, err
	}

	if dsn == "" {
		return nil, domain.NewQueryError(domain.ErrNoDSN)
	}

	db, err := q.pools.Get(dsn)
	if err != nil {
		return nil, domain.NewQueryError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewTimeout(q.timeout.Seconds())
		}
		return nil, domain.NewQueryError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, domain.NewQueryError(err)
	}

	outputs := make([]string, 0, 16)
	fetched := 0
	for rows.Next() {
		if fetched == q.rowCap {
			fetched++
			break
		}
		line, err := scanRow(rows, cols)
		if err != nil {
			return nil, domain.NewQueryError(err)
		}
		outputs = append(outputs, line)
		fetched++
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewTimeout(q.timeout.Seconds())
		}
		return nil, domain.NewQueryError(err)
	}

	if fetched > q.rowCap {
		outputs = append(outputs, fmt.Sprintf("[truncated to %d rows]", q.rowCap))
	}

	q.logger.Debug("query cell executed",
		"cell_id", cell.ID,
		"rows", len(outputs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return outputs, nil
}

// interpolate resolves every placeholder from the namespace and splices the
// literals into the statement. A missing placeholder aborts before any
// database work.
func (q *Query) interpolate(code string, ns map[string]any) (string, error) {
	for _, name := range analyzer.Placeholders(code) {
		if _, ok := ns[name]; !ok {
			return "", domain.NewMissingPlaceholder(name)
		}
	}

	return analyzer.PlaceholderPattern.ReplaceAllStringFunc(code, func(m string) string {
		sub := analyzer.PlaceholderPattern.FindStringSubmatch(m)
		return sqlLiteral(ns[sub[1]])
	}), nil
}

// rowScanner is the subset of sql.Rows used by scanRow.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRow shapes one row as a JSON object preserving column order.
func scanRow(rows rowScanner, cols []string) (string, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(normalizeValue(values[i]))
		if err != nil {
			return "", err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// normalizeValue converts driver-native values into JSON-friendly shapes.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
