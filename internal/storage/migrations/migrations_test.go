package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/010_later.sql":  {Data: []byte("SELECT 10;")},
		"pg/002_second.sql": {Data: []byte("SELECT 2;")},
		"pg/001_first.sql":  {Data: []byte("SELECT 1;")},
		"pg/README.md":      {Data: []byte("ignored")},
	}

	got, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{got[0].Version, got[1].Version, got[2].Version})
	assert.Equal(t, "010_later.sql", got[2].Name)
	assert.Equal(t, "SELECT 10;", got[2].SQL)
}

func TestLoad_RejectsBadNames(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"no version", fstest.MapFS{"pg/guard.sql": {Data: []byte("x")}}},
		{"non numeric", fstest.MapFS{"pg/abc_guard.sql": {Data: []byte("x")}}},
		{"zero", fstest.MapFS{"pg/000_guard.sql": {Data: []byte("x")}}},
		{"duplicate", fstest.MapFS{
			"pg/001_a.sql": {Data: []byte("x")},
			"pg/1_b.sql":   {Data: []byte("y")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.fsys, "pg")
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	for _, dir := range []string{"postgres", "clickhouse"} {
		got, err := load(schemaFS, dir)
		require.NoError(t, err, dir)
		require.NotEmpty(t, got, dir)
		assert.Equal(t, 1, got[0].Version, dir)
	}
}

func TestSplitStatements(t *testing.T) {
	input := `-- header; with a semicolon
CREATE TABLE a (x String DEFAULT 'a;b');
-- trailing comment
CREATE TABLE b (y String DEFAULT 'it''s; fine') ENGINE = Memory;

`
	got := splitStatements(input)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (x String DEFAULT 'a;b')", got[0])
	assert.Equal(t, "CREATE TABLE b (y String DEFAULT 'it''s; fine') ENGINE = Memory", got[1])
}

func TestSplitStatements_Empty(t *testing.T) {
	assert.Empty(t, splitStatements("-- only a comment\n\n"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://user:pw@localhost:9000/guard")
	require.NoError(t, err)
	assert.Equal(t, "guard", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
