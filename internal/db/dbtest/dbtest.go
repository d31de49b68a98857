// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"pdf-chat/internal/config"
	"pdf-chat/internal/db"
)

// Open returns a migrated in-memory SQLite database private to t.
func Open(t testing.TB) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := db.ConnectDB(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	bdb := db.NewDB(sqldb, "sqlite", false)
	t.Cleanup(func() { _ = bdb.Close() })
	require.NoError(t, db.InitDB(context.Background(), bdb))
	return bdb
}
