// Package analyzer extracts defined and referenced names from cell bodies.
// Both analyzers are pure: results depend only on the source text.
package analyzer

import (
	"sort"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/parser"

	"github.com/smilemakc/nbflow/internal/script"
)

// builtinNames are identifiers provided by the runtime rather than by
// cells: the expr builtin functions plus the print function.
var builtinNames = func() map[string]bool {
	names := make(map[string]bool, len(builtin.Builtins)+1)
	for _, fn := range builtin.Builtins {
		names[fn.Name] = true
	}
	names["print"] = true
	return names
}()

// Imperative analyzes an imperative cell body and returns the names it
// defines at top level and the free names it references. A body that fails
// to parse yields empty sets; the executor surfaces the syntax error at run
// time.
func Imperative(code string) (defs, refs []string) {
	stmts, err := script.Parse(code)
	if err != nil {
		return nil, nil
	}

	bound := make(map[string]bool)
	defSet := make(map[string]bool)
	refSet := make(map[string]bool)

	for _, stmt := range stmts {
		tree, err := parser.Parse(stmt.Expr)
		if err != nil {
			return nil, nil
		}

		for name := range collectIdents(tree.Node) {
			if bound[name] || builtinNames[name] {
				continue
			}
			refSet[name] = true
		}

		for _, target := range stmt.Targets {
			bound[target] = true
			defSet[target] = true
		}
	}

	return sortedNames(defSet), sortedNames(refSet)
}

// identCollector gathers identifier reads from an expression tree. Member
// property names are string nodes in the AST, so a plain walk yields only
// root names and bracketed index reads.
type identCollector struct {
	names map[string]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	if ident, ok := (*node).(*ast.IdentifierNode); ok {
		c.names[ident.Value] = true
	}
}

func collectIdents(node ast.Node) map[string]bool {
	c := &identCollector{names: make(map[string]bool)}
	ast.Walk(&node, c)
	return c.names
}

func sortedNames(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
