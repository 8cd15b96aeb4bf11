package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/nbflow/internal/domain"
	"github.com/smilemakc/nbflow/internal/infrastructure/logger"
	"github.com/smilemakc/nbflow/internal/script"
)

// DefaultCellTimeout is the wall-clock deadline for one cell execution.
const DefaultCellTimeout = 30 * time.Second

// Imperative executes imperative cells statement by statement against the
// shared namespace. The namespace is mutated in place; on failure it is
// left exactly as it was when the failing statement aborted, and the
// scheduler's stale-def sweep cleans up on the next run.
type Imperative struct {
	timeout time.Duration
	logger  *logger.Logger
}

// ImperativeOption configures an Imperative executor.
type ImperativeOption func(*Imperative)

// WithCellTimeout overrides the per-cell deadline.
func WithCellTimeout(d time.Duration) ImperativeOption {
	return func(e *Imperative) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithImperativeLogger sets the executor logger.
func WithImperativeLogger(l *logger.Logger) ImperativeOption {
	return func(e *Imperative) {
		e.logger = l
	}
}

// NewImperative creates an imperative executor.
func NewImperative(opts ...ImperativeOption) *Imperative {
	e := &Imperative{
		timeout: DefaultCellTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one imperative cell. Captured print output is returned as
// lines with no trailing newlines; on failure outputs are nil and the
// error is cell-scoped.
func (e *Imperative) Execute(ctx context.Context, cell *domain.Cell, ns map[string]any) ([]string, error) {
	stmts, err := script.Parse(cell.Code)
	if err != nil {
		return nil, domain.NewAnalysisError(err)
	}

	deadline := time.Now().Add(e.timeout)
	var out printBuffer

	for _, stmt := range stmts {
		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil, domain.NewTimeout(e.timeout.Seconds())
		}

		value, err := e.eval(stmt.Expr, ns, &out)
		if err != nil {
			return nil, wrapEvalError(stmt, err)
		}

		if len(stmt.Targets) == 1 {
			ns[stmt.Targets[0]] = value
		} else if len(stmt.Targets) > 1 {
			if err := unpack(ns, stmt.Targets, value); err != nil {
				return nil, wrapEvalError(stmt, err)
			}
		}
	}

	e.logger.Debug("imperative cell executed", "cell_id", cell.ID, "statements", len(stmts))
	return out.lines(), nil
}

// eval compiles and runs one statement expression with the namespace as
// environment. Compilation is per-run because the environment's name set
// changes between statements.
func (e *Imperative) eval(src string, ns map[string]any, out *printBuffer) (any, error) {
	program, err := expr.Compile(src,
		expr.Env(ns),
		expr.AsAny(),
		expr.Function("print", func(params ...any) (any, error) {
			out.println(params...)
			return nil, nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, ns)
}

// unpack assigns a destructured value to its targets. The value must be a
// list of matching length.
func unpack(ns map[string]any, targets []string, value any) error {
	items, ok := value.([]any)
	if !ok {
		return fmt.Errorf("cannot unpack %T into %d names", value, len(targets))
	}
	if len(items) != len(targets) {
		return fmt.Errorf("cannot unpack %d values into %d names", len(items), len(targets))
	}
	for i, target := range targets {
		ns[target] = items[i]
	}
	return nil
}

// wrapEvalError classifies an expr error as a cell error, pinning it to
// the statement's source line.
func wrapEvalError(stmt script.Statement, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unknown name") || strings.Contains(msg, "cannot fetch") {
		if name := extractName(msg); name != "" {
			return domain.NewNameNotDefined(name, fmt.Errorf("line %d: %w", stmt.Line, err))
		}
	}
	return domain.NewRuntimeError(fmt.Errorf("line %d: %s", stmt.Line, firstLine(msg)))
}

// extractName pulls the offending identifier out of an expr "unknown name"
// message.
func extractName(msg string) string {
	for _, marker := range []string{"unknown name ", "cannot fetch "} {
		if idx := strings.Index(msg, marker); idx >= 0 {
			rest := msg[idx+len(marker):]
			rest = strings.Trim(strings.Fields(rest)[0], "()\"' ")
			return rest
		}
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// printBuffer accumulates print output, one line per call.
type printBuffer struct {
	buf []string
}

func (p *printBuffer) println(args ...any) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatValue(a)
	}
	p.buf = append(p.buf, strings.Join(parts, " "))
}

func (p *printBuffer) lines() []string {
	if p.buf == nil {
		return []string{}
	}
	return p.buf
}

// formatValue renders a value for print output.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case string:
		return val
	default:
		return fmt.Sprint(v)
	}
}
