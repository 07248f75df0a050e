package database

import (
	"fmt"
	"log"

	"qa-escrow/internal/config"
	"qa-escrow/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect establishes a connection to the configured database
func Connect(cfg *config.Config) error {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.Database.SQLitePath)
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	var err error
	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == config.DriverSQLite {
		// SQLite allows a single writer; one connection keeps ledger
		// transactions from failing with SQLITE_BUSY.
		sqlDB, err := DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Printf("Database connection established successfully (%s)", cfg.Database.Driver)
	return nil
}

// AutoMigrate runs automatic migrations for the ledger models
func AutoMigrate() error {
	ledgerModels := []interface{}{
		&models.LedgerState{},
		&models.Question{},
		&models.Answer{},
		&models.DepositClaim{},
	}

	for _, model := range ledgerModels {
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
