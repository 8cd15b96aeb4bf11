package analyzer

import "regexp"

// PlaceholderPattern matches {{name}} placeholders in query cells.
// Whitespace inside the braces is permitted.
var PlaceholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Query analyzes a query cell body. Query cells never define names; their
// references are the distinct placeholder identifiers, sorted.
func Query(code string) (defs, refs []string) {
	set := make(map[string]bool)
	for _, m := range PlaceholderPattern.FindAllStringSubmatch(code, -1) {
		set[m[1]] = true
	}
	return nil, sortedNames(set)
}

// Placeholders returns placeholder names in order of first appearance,
// preserving duplicates' first positions. Used by the query executor,
// which resolves values in source order.
func Placeholders(code string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range PlaceholderPattern.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
