package mysql

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// Dialect is the MySQL implementation of database.Dialect.
// Catalog queries are scoped to the connection's current database.
type Dialect struct{}

var _ database.Dialect = Dialect{}

func (Dialect) Backend() database.Backend { return database.BackendMySQL }

func (Dialect) QuoteIdent(name string) string {
	return database.QuoteParts(name, "`")
}

func (Dialect) ReturnsRows(verb string) bool {
	return database.ReturnsRows(verb)
}

// Bind expands "??" identifier placeholders: each one consumes the next
// positional argument, which must be a string, and is replaced by the quoted
// identifier. Plain "?" placeholders and their arguments are kept. Quoted
// literals and identifiers are copied verbatim.
func (d Dialect) Bind(stmt database.Statement) (database.Statement, error) {
	if len(stmt.Named) > 0 {
		return stmt, errs.New(errs.ErrKindInvalidInput, "mysql does not support named parameters")
	}
	if !strings.Contains(stmt.SQL, "??") {
		return stmt, nil
	}

	src := stmt.SQL
	var sb strings.Builder
	sb.Grow(len(src))
	args := make([]any, 0, len(stmt.Args))
	argIdx := 0
	var quote byte

	for i := 0; i < len(src); i++ {
		c := src[i]

		if quote != 0 {
			sb.WriteByte(c)
			if c == '\\' && quote != '`' && i+1 < len(src) {
				i++
				sb.WriteByte(src[i])
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
			sb.WriteByte(c)
		case '?':
			if argIdx >= len(stmt.Args) {
				return stmt, errs.Newf(errs.ErrKindInvalidInput,
					"statement has more placeholders than the %d supplied parameters", len(stmt.Args))
			}
			if i+1 < len(src) && src[i+1] == '?' {
				name, ok := stmt.Args[argIdx].(string)
				if !ok || name == "" {
					return stmt, errs.Newf(errs.ErrKindInvalidInput,
						"parameter %d is bound to an identifier placeholder and must be a non-empty string", argIdx+1)
				}
				sb.WriteString(d.QuoteIdent(name))
				i++
			} else {
				sb.WriteByte('?')
				args = append(args, stmt.Args[argIdx])
			}
			argIdx++
		default:
			sb.WriteByte(c)
		}
	}

	// Surplus arguments are passed through so the driver reports the mismatch.
	args = append(args, stmt.Args[argIdx:]...)
	return database.Statement{SQL: sb.String(), Args: args}, nil
}

// --- catalog ---

func (Dialect) ListTables() database.Statement {
	return database.NewStatement(`
		SELECT TABLE_NAME AS table_name,
		       TABLE_TYPE AS table_type,
		       TABLE_ROWS AS estimated_rows
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME`)
}

func (d Dialect) DescribeTable(table string) database.Statement {
	return database.NewStatement("DESCRIBE " + d.QuoteIdent(table))
}

func (Dialect) TableExists(table string) database.Statement {
	return database.NewStatement(`
		SELECT TABLE_NAME AS table_name
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME   = ?`, table)
}

func (Dialect) Statistics() database.Statement {
	return database.NewStatement(`
		SELECT COUNT(*) AS table_count,
		       COALESCE(SUM(DATA_LENGTH + INDEX_LENGTH), 0) AS size_bytes
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()`)
}

// --- maintenance ---

func (d Dialect) CountRows(table string) database.Statement {
	return database.NewStatement("SELECT COUNT(*) AS row_count FROM " + d.QuoteIdent(table))
}

// Truncate also resets AUTO_INCREMENT; MySQL does that as part of TRUNCATE.
func (d Dialect) Truncate(table string) database.Statement {
	return database.NewStatement("TRUNCATE TABLE " + d.QuoteIdent(table))
}

// LocateGenerator finds the AUTO_INCREMENT column. The generator of a MySQL
// table is the table itself.
func (Dialect) LocateGenerator(table string) database.Statement {
	return database.NewStatement(`
		SELECT TABLE_NAME  AS generator,
		       COLUMN_NAME AS column_name
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME   = ?
		  AND EXTRA LIKE '%auto_increment%'
		LIMIT 1`, table)
}

// ResetGenerator inlines start: ALTER TABLE does not accept parameters.
func (d Dialect) ResetGenerator(table string, _ database.Generator, start int64) database.Statement {
	return database.NewStatement(fmt.Sprintf("ALTER TABLE %s AUTO_INCREMENT = %d", d.QuoteIdent(table), start))
}

func (Dialect) CurrentGenerator(table string, _ database.Generator) database.Statement {
	return database.NewStatement(`
		SELECT AUTO_INCREMENT AS current_value
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME   = ?`, table)
}

func (Dialect) GeneratorStatus(table string, _ database.Generator) database.Statement {
	return database.NewStatement(`
		SELECT TABLE_NAME     AS table_name,
		       AUTO_INCREMENT AS current_value,
		       ENGINE         AS engine
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME   = ?`, table)
}
