package agent

import (
	"strings"
)

// Keywords that must never appear in a query accepted for execution.
var forbiddenTokens = []string{
	"update", "delete", "insert", "drop", "alter",
	"create", "truncate", "attach", "detach", "pragma",
}

// IsSelectOnly reports whether the query looks like a single read-only
// SELECT (or WITH ... SELECT) statement. This is a conservative token
// denylist, not a SQL parser: keywords hidden behind comments or unusual
// whitespace can slip past it, and some legitimate queries that merely
// mention a keyword inside a string literal are rejected.
func IsSelectOnly(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	if !strings.HasPrefix(q, "select") && !strings.HasPrefix(q, "with") {
		return false
	}
	// a single trailing semicolon is fine, anything before that is not
	if i := strings.IndexByte(q, ';'); i >= 0 && i != len(q)-1 {
		return false
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(q, " "+tok+" ") {
			return false
		}
	}
	return true
}
