package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
		assert.True(t, names[down], "missing %s", down)
	}

	_, err = newSource()
	require.NoError(t, err)
}

func TestMigrateAutoMigratesNonPostgres(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migration_test?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, Migrate(conn, "sqlite"))
	for _, table := range []string{
		"wallets",
		"wallet_transactions",
		"payments",
		"settlements",
		"settlement_items",
		"notifications",
		"jobs",
		"work_sessions",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasIndex("settlement_items", "ux_settlement_items_payment_id"))
}

func TestMigrateRequiresHandle(t *testing.T) {
	assert.Error(t, Migrate(nil, "postgres"))
	assert.Error(t, RunMigrations(nil))
}
