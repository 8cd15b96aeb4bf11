package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/nbflow/internal/domain"
)

func imperativeCell(code string) *domain.Cell {
	return &domain.Cell{
		ID:   "cell-1",
		Type: domain.CellTypeImperative,
		Code: code,
	}
}

func TestImperative_Assignment(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	outputs, err := e.Execute(context.Background(), imperativeCell("x = 10"), ns)
	require.NoError(t, err)

	assert.Empty(t, outputs)
	assert.Equal(t, 10, ns["x"])
}

func TestImperative_UsesNamespaceValues(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{"x": 20}

	_, err := e.Execute(context.Background(), imperativeCell("y = x + 5"), ns)
	require.NoError(t, err)
	assert.Equal(t, 25, ns["y"])
}

func TestImperative_PrintCapturesLines(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	outputs, err := e.Execute(context.Background(), imperativeCell(
		"x = 2\nprint(\"x is\", x)\nprint(x * 2)",
	), ns)
	require.NoError(t, err)

	assert.Equal(t, []string{"x is 2", "4"}, outputs)
}

func TestImperative_PrintFormatsSpecialValues(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	outputs, err := e.Execute(context.Background(), imperativeCell(
		"print(true, false, nil)",
	), ns)
	require.NoError(t, err)

	assert.Equal(t, []string{"True False None"}, outputs)
}

func TestImperative_Destructuring(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	_, err := e.Execute(context.Background(), imperativeCell("lo, hi = [1, 9]"), ns)
	require.NoError(t, err)

	assert.Equal(t, 1, ns["lo"])
	assert.Equal(t, 9, ns["hi"])
}

func TestImperative_DestructuringLengthMismatch(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	_, err := e.Execute(context.Background(), imperativeCell("a, b = [1, 2, 3]"), ns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot unpack")
}

func TestImperative_AugmentedAssignment(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{"total": 10}

	_, err := e.Execute(context.Background(), imperativeCell("total += 5"), ns)
	require.NoError(t, err)
	assert.Equal(t, 15, ns["total"])
}

func TestImperative_NameNotDefined(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	outputs, err := e.Execute(context.Background(), imperativeCell("y = missing + 1"), ns)
	require.Error(t, err)

	assert.Empty(t, outputs)
	assert.Equal(t, domain.ErrKindNameNotDefined, domain.KindOf(err))
	assert.Contains(t, err.Error(), "missing")
	_, bound := ns["y"]
	assert.False(t, bound)
}

func TestImperative_SyntaxErrorSurfacesAtRun(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	_, err := e.Execute(context.Background(), imperativeCell("x = [1, 2"), ns)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindAnalysis, domain.KindOf(err))
}

func TestImperative_PartialMutationStaysOnFailure(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	_, err := e.Execute(context.Background(), imperativeCell("x = 1\ny = boom"), ns)
	require.Error(t, err)

	// The first statement's binding survives; the sweep cleans it on the
	// next run.
	assert.Equal(t, 1, ns["x"])
}

func TestImperative_CanceledContextTimesOut(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, imperativeCell("x = 1"), ns)
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindTimeout, domain.KindOf(err))
}

func TestImperative_BetweenRunsValuesCompose(t *testing.T) {
	e := NewImperative()
	ns := map[string]any{}

	_, err := e.Execute(context.Background(), imperativeCell("xs = [1, 2, 3]"), ns)
	require.NoError(t, err)

	outputs, err := e.Execute(context.Background(), imperativeCell("print(len(xs))"), ns)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, outputs)
}
