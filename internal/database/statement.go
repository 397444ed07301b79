package database

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Statement is one SQL statement plus its parameters.
type Statement struct {
	SQL  string
	Args []any

	// Named holds named parameters. Only backends that support them
	// (PostgreSQL, "@name") accept a non-empty map.
	Named map[string]any
}

// NewStatement is a shorthand for positional statements.
func NewStatement(sql string, args ...any) Statement {
	return Statement{SQL: sql, Args: args}
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result is the normalised outcome of Pool.Execute.
type Result struct {
	Columns      []string
	Rows         []Row
	RowsAffected int64
}

// Verb returns the leading keyword of sql, upper-cased. A leading "(" is
// ignored so that parenthesised SELECTs keep their verb.
func Verb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	verb := strings.TrimLeft(fields[0], "(")
	verb = strings.TrimRight(verb, ";")
	return strings.ToUpper(verb)
}

// rowVerbs are the verbs whose statements produce a result set on every backend.
var rowVerbs = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
}

// ReturnsRows is the default answer for Dialect.ReturnsRows.
func ReturnsRows(verb string) bool {
	return rowVerbs[strings.ToUpper(verb)]
}

// QuoteParts splits a dotted identifier and quotes each part with q,
// doubling any embedded quote character.
func QuoteParts(name string, q string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// NormalizeValue converts driver values into JSON-friendly Go values.
// Text columns read through database/sql arrive as []byte.
func NormalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// AsInt64 converts a scanned numeric value to int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case []byte:
		return AsInt64(string(n))
	case fmt.Stringer:
		return AsInt64(n.String())
	default:
		return 0, false
	}
}

// GeneratorFromRow reads the "generator" and "column_name" columns produced
// by Dialect.LocateGenerator. ok is false when no generator was found.
func GeneratorFromRow(row Row) (Generator, bool) {
	if row == nil {
		return Generator{}, false
	}
	name, _ := NormalizeValue(row["generator"]).(string)
	if name == "" {
		return Generator{}, false
	}
	column, _ := NormalizeValue(row["column_name"]).(string)
	return Generator{Name: name, Column: column}, true
}
