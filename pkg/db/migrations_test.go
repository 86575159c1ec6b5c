package db

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"001_test.sql": "001_test",
		"002_test.SQL": "002_test",
		"003_test":     "003_test",
		"":             "",
		".sql":         ".sql",
		"004_test.Sql": "004_test",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeVersion(in), "normalizeVersion(%q)", in)
	}
}

func TestFindMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql":      {Data: []byte("-- 2")},
		"001_create_history.sql": {Data: []byte("-- 1")},
		"README.md":              {Data: []byte("ignored")},
		"sub/003_nested.sql":     {Data: []byte("-- nested")},
	}

	migrations, err := findMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_create_history", migrations[0].Version)
	assert.Equal(t, "001_create_history.sql", migrations[0].Name)
	assert.Equal(t, "002_add_index", migrations[1].Version)
}

func TestMigrate_NilPool(t *testing.T) {
	_, err := Migrate(context.Background(), nil, fstest.MapFS{})
	assert.EqualError(t, err, "pool is nil")
}

func TestMigrate_Integration(t *testing.T) {
	dsn := os.Getenv("MINUTES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MINUTES_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, DefaultConfig(dsn))
	require.NoError(t, err)
	defer pool.Close()

	fsys := fstest.MapFS{
		"900_migrate_test.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS migrate_test_900 (id INT);")},
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DROP TABLE IF EXISTS migrate_test_900")
		_, _ = pool.Exec(ctx, "DELETE FROM schema_migrations WHERE version = '900_migrate_test.sql'")
	})

	first, err := Migrate(ctx, pool, fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"900_migrate_test"}, first.Applied)

	second, err := Migrate(ctx, pool, fsys)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Equal(t, []string{"900_migrate_test"}, second.Skipped)

	assert.True(t, Check(ctx, pool).Healthy)
}
