package app

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ofertalabs/waboard/config"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	var err error
	switch cfg.Type {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		dbfile := filepath.Join(workdir, "data", cfg.Name+".db")
		db, err = gorm.Open(sqlite.Open(dbfile+"?_pragma=busy_timeout(5000)"), gormConfig)
	}
	if err != nil {
		zap.S().Panicf("database connect failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		zap.S().Panicf("database handle failed: %v", err)
	}
	if cfg.MaxConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
	}
	if cfg.IdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db
}
