// Package schema turns backend catalog rows into one column model shared by
// every backend.
package schema

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"` // backend spelling: varchar(255), int4, timestamptz, ...
	IsNullable   bool    `json:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	IsUnique     bool    `json:"is_unique"`
	DefaultValue *string `json:"default_value"` // nil if no default
	MaxLength    *int64  `json:"max_length,omitempty"`
	Extra        string  `json:"extra,omitempty"` // MySQL only, e.g. auto_increment
}

// TableInfo describes a table and its columns.
type TableInfo struct {
	Name    string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
}

// PrimaryKey returns the names of the primary key columns in table order.
func (t *TableInfo) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}
