package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"locallibrary/pkg/config"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
)

func InitCatalogDB(cfg config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		logger.Logger.Infof("Opening catalog database: sqlite %s", cfg.DBPath)
		dialector = sqlite.Open(cfg.DBPath)
	default:
		logger.Logger.Infof("Connecting to catalog database: %s@%s:%s/%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)
		dialector = postgres.Open(cfg.PostgresDSN())
	}

	db, err := connect(dialector, cfg.DBMaxRetries, cfg.DBRetryInterval)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Logger.Info("Database connection established successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

func connect(dialector gorm.Dialector, maxRetries int, interval time.Duration) (*gorm.DB, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger.Logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var db *gorm.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			return db, nil
		}
		logger.Logger.Warnf("Database connection attempt %d/%d failed: %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(interval)
		}
	}
	return nil, fmt.Errorf("failed to connect to database: %w", err)
}
