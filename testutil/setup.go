package testutil

import (
	"testing"

	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/config"
	dbadapter "github.com/kasuganosora/civmanager/db"
	"github.com/kasuganosora/civmanager/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates an isolated in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// TestGameConfig returns the starting values used throughout the tests.
func TestGameConfig() config.GameConfig {
	return config.GameConfig{
		StartFood:          100,
		StartGold:          50,
		StartMaterials:     30,
		StartMilitaryPower: 0,
		MaxCharacters:      50,
		LedgerRetries:      3,
	}
}
