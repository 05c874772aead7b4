package db

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/civmanager/config"
	dbmysql "github.com/kasuganosora/civmanager/db/mysql"
	dbsqlite "github.com/kasuganosora/civmanager/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeMemory = "memory"
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns a *gorm.DB for the configured database mode.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeMemory:
		// Each memory database gets a unique name so parallel tests stay isolated.
		return dbsqlite.OpenMemory("civ_" + uuid.NewString())
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
