package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/parachute/internal/config"
	"github.com/OCAP2/parachute/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     "5432",
		Username: "u",
		Password: "p",
		Database: "parachute",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=parachute sslmode=disable", dsn)
}

func TestOpenSQLite_MigrateAndPing(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, Ping(db))
	require.NoError(t, Migrate(db))
	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestDumpToDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "src.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Create(&model.GameMap{Name: "de_dust2"}).Error)

	dumpPath := filepath.Join(dir, "nested", "dump.db")
	require.NoError(t, DumpToDisk(db, dumpPath))
	// a second dump replaces the first
	require.NoError(t, DumpToDisk(db, dumpPath))

	_, err = os.Stat(dumpPath)
	require.NoError(t, err)

	dumped, err := OpenSQLite(dumpPath)
	require.NoError(t, err)
	var n int64
	require.NoError(t, dumped.Model(&model.GameMap{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestDumpToDisk_Errors(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)

	assert.ErrorContains(t, DumpToDisk(db, ""), "not set")
	assert.ErrorContains(t, DumpToDisk(db, "it's.db"), "quote")
}
