package schema

import (
	"fmt"
	"strings"

	"github.com/koustreak/sqlgate/internal/database"
)

// FromRows builds a TableInfo from the rows of Dialect.DescribeTable.
// Both shapes are understood: MySQL DESCRIBE output (Field, Type, Null,
// Key, Default, Extra) and the information_schema.columns projection used
// for PostgreSQL (column_name, data_type, is_nullable, ...).
func FromRows(table string, rows []database.Row) *TableInfo {
	info := &TableInfo{Name: table, Columns: make([]ColumnInfo, 0, len(rows))}
	for _, row := range rows {
		if _, ok := row["Field"]; ok {
			info.Columns = append(info.Columns, fromDescribe(row))
			continue
		}
		info.Columns = append(info.Columns, fromInformationSchema(row))
	}
	return info
}

func fromDescribe(row database.Row) ColumnInfo {
	key := text(row["Key"])
	return ColumnInfo{
		Name:         text(row["Field"]),
		DataType:     text(row["Type"]),
		IsNullable:   strings.EqualFold(text(row["Null"]), "YES"),
		IsPrimaryKey: key == "PRI",
		IsUnique:     key == "UNI",
		DefaultValue: optionalText(row["Default"]),
		Extra:        text(row["Extra"]),
	}
}

func fromInformationSchema(row database.Row) ColumnInfo {
	col := ColumnInfo{
		Name:         text(row["column_name"]),
		DataType:     text(row["data_type"]),
		IsNullable:   strings.EqualFold(text(row["is_nullable"]), "YES"),
		DefaultValue: optionalText(row["column_default"]),
	}
	if pk, ok := row["is_primary_key"].(bool); ok {
		col.IsPrimaryKey = pk
	}
	if n, ok := database.AsInt64(row["character_maximum_length"]); ok {
		col.MaxLength = &n
	}
	return col
}

func text(v any) string {
	switch s := database.NormalizeValue(v).(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func optionalText(v any) *string {
	if v == nil {
		return nil
	}
	s := text(v)
	return &s
}
