package datastore

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
)

// forbiddenKeywords are statement forms the gate refuses outright. The
// external database is read-only territory for generated SQL.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"attach", "detach", "pragma", "vacuum", "reindex",
	"truncate", "grant", "revoke", "begin", "commit", "rollback",
}

var (
	forbiddenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(forbiddenKeywords, "|") + `)\b`)
	tableRefRe  = regexp.MustCompile(`(?i)\b(?:from|join)\s+"?([a-zA-Z_][a-zA-Z0-9_]*)"?`)
)

// validateStatement runs the three-layer safety gate: forbidden-statement
// scan, schema reference check, then an EXPLAIN pass through the engine.
// A nil result means the statement may be executed.
func validateStatement(db *sql.DB, sqlStr string, dbSchema *model.DatabaseSchema) *model.QueryError {
	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlStr), ";"))
	if stmt == "" {
		return &model.QueryError{Kind: model.QueryErrSyntax, Message: "empty SQL statement"}
	}

	stripped := stripStringLiterals(stmt)

	lower := strings.ToLower(stripped)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return &model.QueryError{
			Kind:    model.QueryErrForbidden,
			Message: "only SELECT statements are permitted against the external database",
		}
	}
	if m := forbiddenRe.FindString(stripped); m != "" {
		return &model.QueryError{
			Kind:    model.QueryErrForbidden,
			Message: fmt.Sprintf("statement contains forbidden operation %q", strings.ToUpper(m)),
		}
	}
	if strings.Contains(stripped, ";") {
		return &model.QueryError{
			Kind:    model.QueryErrForbidden,
			Message: "multiple statements are not permitted",
		}
	}

	if dbSchema != nil {
		cteNames := cteNameSet(stripped)
		for _, match := range tableRefRe.FindAllStringSubmatch(stripped, -1) {
			table := match[1]
			if _, ok := cteNames[strings.ToLower(table)]; ok {
				continue
			}
			if !dbSchema.HasTable(table) {
				return &model.QueryError{
					Kind:    model.QueryErrSchema,
					Message: fmt.Sprintf("table %q does not exist in the external database schema", table),
				}
			}
		}
	}

	// Prepare alone is not enough: the driver defers compilation, so unknown
	// identifiers only surface once the statement actually runs. EXPLAIN
	// compiles the full statement without executing it.
	rows, err := db.Query("EXPLAIN " + stmt)
	if err != nil {
		kind := model.QueryErrSyntax
		msg := err.Error()
		if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
			kind = model.QueryErrSchema
		}
		return &model.QueryError{Kind: kind, Message: msg}
	}
	rows.Close()

	return nil
}

// stripStringLiterals blanks out single-quoted literals so keyword and
// reference scans cannot be fooled by quoted content.
func stripStringLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\'' {
			// doubled quote inside a literal is an escaped quote
			if inString && i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
			b.WriteByte(' ')
			continue
		}
		if inString {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

var cteRe = regexp.MustCompile(`(?i)\b(?:with|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+as\s*\(`)

func cteNameSet(s string) map[string]struct{} {
	names := make(map[string]struct{})
	for _, match := range cteRe.FindAllStringSubmatch(s, -1) {
		names[strings.ToLower(match[1])] = struct{}{}
	}
	return names
}
