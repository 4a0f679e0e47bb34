package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN(Config{})
	require.NoError(t, err)
	require.Equal(t, "file::memory:?cache=shared&_foreign_keys=1", dsn)

	path := filepath.Join(t.TempDir(), "nested", "engageflow.sqlite")
	dsn, err = buildSQLiteDSN(Config{Path: path, Options: map[string]string{"_busy_timeout": "100"}})
	require.NoError(t, err)
	require.Equal(t, "file:"+filepath.ToSlash(path)+"?_busy_timeout=100&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate", dsn)
	require.DirExists(t, filepath.Dir(path))

	dsn, err = buildSQLiteDSN(Config{DSN: "file:custom.db", Path: path})
	require.NoError(t, err)
	require.Equal(t, "file:custom.db", dsn)
}

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "engageflow", Name: "engageflow"})
	require.NoError(t, err)
	require.Equal(t, "host=localhost port=5432 user=engageflow dbname=engageflow TimeZone=UTC application_name=engageflow sslmode=disable", dsn)
}

func TestBuildPostgresDSNWithOptions(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "user",
		Name:     "db",
		Host:     "db.example.com",
		Port:     6543,
		Password: "pass",
		Options: map[string]string{
			"sslmode":     "require",
			"search_path": "public",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "host=db.example.com port=6543 user=user dbname=db password=pass "+
		"TimeZone=UTC application_name=engageflow search_path=public sslmode=require", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "engageflow", Name: "engageflow"})
	require.NoError(t, err)
	require.Equal(t, "engageflow@tcp(127.0.0.1:3306)/engageflow?charset=utf8mb4&loc=UTC&parseTime=True", dsn)

	dsn, err = buildMySQLDSN(Config{
		User:     "user",
		Password: "secret",
		Name:     "db",
		Host:     "db.example.com",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify", "loc": "Local"},
	})
	require.NoError(t, err)
	require.Equal(t, "user:secret@tcp(db.example.com:3307)/db?charset=utf8mb4&loc=Local&parseTime=True&tls=skip-verify", dsn)
}

func TestDSNBuildersRequireUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.ErrorContains(t, err, "postgres configuration requires user and database name")

	_, err = buildMySQLDSN(Config{Host: "localhost"})
	require.ErrorContains(t, err, "mysql configuration requires user and database name")
}

func TestGormConfigStoresUTC(t *testing.T) {
	cfg := gormConfig()
	require.True(t, cfg.TranslateError)
	require.Equal(t, time.UTC, cfg.NowFunc().Location())
}
