package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "motorlist", Name: "motorlist"})
	require.NoError(t, err)
	require.Equal(t, "host=localhost port=5432 user=motorlist dbname=motorlist TimeZone=UTC sslmode=disable", dsn)
}

func TestBuildPostgresDSNWithOptions(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "user",
		Name:     "db",
		Host:     "db.example.com",
		Port:     6543,
		Password: "pass",
		Options:  map[string]string{"sslmode": "require", "search_path": "public"},
	})
	require.NoError(t, err)
	for _, part := range []string{"host=db.example.com", "port=6543", "password=pass", "sslmode=require", "search_path=public"} {
		require.Contains(t, dsn, part)
	}
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)

	dsn, err := buildPostgresDSN(Config{DSN: "postgres://override"})
	require.NoError(t, err)
	require.Equal(t, "postgres://override", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "app", Password: "secret", Name: "listings"})
	require.NoError(t, err)
	require.Equal(t, "app:secret@tcp(127.0.0.1:3306)/listings?charset=utf8mb4&loc=UTC&parseTime=True", dsn)

	_, err = buildMySQLDSN(Config{User: "app"})
	require.Error(t, err)
}
