package postgres

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/koustreak/sqlgate/internal/errs"
)

// Dialect is the PostgreSQL implementation of database.Dialect.
// Catalog queries are scoped to current_schema().
type Dialect struct{}

var _ database.Dialect = Dialect{}

func (Dialect) Backend() database.Backend { return database.BackendPostgres }

func (Dialect) QuoteIdent(name string) string {
	return database.QuoteParts(name, `"`)
}

func (Dialect) ReturnsRows(verb string) bool {
	return database.ReturnsRows(verb)
}

// Bind passes "$n" statements through unchanged. Named parameters are
// referenced as "@name" and may not be combined with positional ones.
func (Dialect) Bind(stmt database.Statement) (database.Statement, error) {
	if len(stmt.Named) > 0 && len(stmt.Args) > 0 {
		return stmt, errs.New(errs.ErrKindInvalidInput, "named and positional parameters cannot be mixed")
	}
	return stmt, nil
}

// --- catalog ---

func (Dialect) ListTables() database.Statement {
	return database.NewStatement(`
		SELECT table_name,
		       table_type
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		ORDER BY table_name`)
}

// DescribeTable lists the columns of table with a primary-key flag.
func (Dialect) DescribeTable(table string) database.Statement {
	return database.NewStatement(`
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable,
		       c.column_default,
		       c.character_maximum_length,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema    = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema    = c.table_schema
		             AND tc.table_name      = c.table_name
		             AND kcu.column_name    = c.column_name
		       ) AS is_primary_key
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema()
		  AND c.table_name   = $1
		ORDER BY c.ordinal_position`, table)
}

func (Dialect) TableExists(table string) database.Statement {
	return database.NewStatement(`
		SELECT tablename AS table_name
		FROM pg_tables
		WHERE schemaname = current_schema()
		  AND tablename  = $1`, table)
}

func (Dialect) Statistics() database.Statement {
	return database.NewStatement(`
		SELECT (SELECT COUNT(*)
		        FROM information_schema.tables
		        WHERE table_schema = current_schema()) AS table_count,
		       pg_database_size(current_database())   AS size_bytes`)
}

// --- maintenance ---

func (d Dialect) CountRows(table string) database.Statement {
	return database.NewStatement("SELECT COUNT(*) AS row_count FROM " + d.QuoteIdent(table))
}

// Truncate restarts owned sequences along with the data.
func (d Dialect) Truncate(table string) database.Statement {
	return database.NewStatement("TRUNCATE TABLE " + d.QuoteIdent(table) + " RESTART IDENTITY")
}

// LocateGenerator finds the sequence behind a serial or identity column.
func (d Dialect) LocateGenerator(table string) database.Statement {
	return database.NewStatement(`
		SELECT pg_get_serial_sequence($1, column_name) AS generator,
		       column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name   = $2
		  AND (column_default LIKE 'nextval%' OR is_identity = 'YES')
		ORDER BY ordinal_position
		LIMIT 1`, d.QuoteIdent(table), table)
}

// ResetGenerator inlines start: ALTER SEQUENCE does not accept parameters.
// gen.Name comes from pg_get_serial_sequence and is already quoted.
func (Dialect) ResetGenerator(_ string, gen database.Generator, start int64) database.Statement {
	return database.NewStatement(fmt.Sprintf("ALTER SEQUENCE %s RESTART WITH %d", gen.Name, start))
}

func (Dialect) CurrentGenerator(_ string, gen database.Generator) database.Statement {
	return database.NewStatement("SELECT last_value AS current_value, is_called FROM " + gen.Name)
}

func (Dialect) GeneratorStatus(table string, gen database.Generator) database.Statement {
	return database.NewStatement(fmt.Sprintf(`
		SELECT %s AS table_name,
		       %s AS sequence_name,
		       %s AS column_name,
		       last_value AS current_value,
		       is_called
		FROM %s`, quoteLiteral(table), quoteLiteral(gen.Name), quoteLiteral(gen.Column), gen.Name))
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
