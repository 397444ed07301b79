package schema

import (
	"testing"

	"github.com/koustreak/sqlgate/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows_MySQLDescribe(t *testing.T) {
	rows := []database.Row{
		{"Field": "id", "Type": "int unsigned", "Null": "NO", "Key": "PRI", "Default": nil, "Extra": "auto_increment"},
		{"Field": "email", "Type": []byte("varchar(255)"), "Null": "NO", "Key": "UNI", "Default": nil, "Extra": ""},
		{"Field": "status", "Type": "varchar(16)", "Null": "YES", "Key": "", "Default": "new", "Extra": ""},
	}

	info := FromRows("users", rows)
	require.Len(t, info.Columns, 3)
	assert.Equal(t, "users", info.Name)

	id := info.Columns[0]
	assert.Equal(t, "id", id.Name)
	assert.True(t, id.IsPrimaryKey)
	assert.False(t, id.IsNullable)
	assert.Nil(t, id.DefaultValue)
	assert.Equal(t, "auto_increment", id.Extra)

	email := info.Columns[1]
	assert.Equal(t, "varchar(255)", email.DataType)
	assert.True(t, email.IsUnique)

	status := info.Columns[2]
	assert.True(t, status.IsNullable)
	require.NotNil(t, status.DefaultValue)
	assert.Equal(t, "new", *status.DefaultValue)

	assert.Equal(t, []string{"id"}, info.PrimaryKey())
}

func TestFromRows_InformationSchema(t *testing.T) {
	rows := []database.Row{
		{
			"column_name": "id", "data_type": "integer", "is_nullable": "NO",
			"column_default": "nextval('orders_id_seq'::regclass)", "character_maximum_length": nil,
			"is_primary_key": true,
		},
		{
			"column_name": "note", "data_type": "character varying", "is_nullable": "YES",
			"column_default": nil, "character_maximum_length": int32(120),
			"is_primary_key": false,
		},
	}

	info := FromRows("orders", rows)
	require.Len(t, info.Columns, 2)

	id := info.Columns[0]
	assert.True(t, id.IsPrimaryKey)
	assert.Nil(t, id.MaxLength)
	require.NotNil(t, id.DefaultValue)
	assert.Contains(t, *id.DefaultValue, "nextval")

	note := info.Columns[1]
	assert.True(t, note.IsNullable)
	require.NotNil(t, note.MaxLength)
	assert.Equal(t, int64(120), *note.MaxLength)
	assert.Nil(t, note.DefaultValue)
}

func TestFromRows_Empty(t *testing.T) {
	info := FromRows("ghost", nil)
	assert.Empty(t, info.Columns)
	assert.Nil(t, info.PrimaryKey())
}
