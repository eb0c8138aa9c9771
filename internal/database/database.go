package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parimutuel-market/internal/config"
	"parimutuel-market/internal/models"
)

// Connect opens the configured database
func Connect(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.SQLitePath)
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == "sqlite" {
		// sqlite serialises writers; one connection avoids "database is locked"
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.WithField("driver", cfg.Database.Driver).Info("Database connection established")
	return db, nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	ledgerModels := []interface{}{
		&models.Market{},
		&models.Outcome{},
		&models.Bet{},
	}
	settlementModels := []interface{}{
		&models.BettorStreak{},
		&models.MarketSettlement{},
	}
	historyModels := []interface{}{
		&models.OddsSnapshot{},
	}

	for _, group := range [][]interface{}{ledgerModels, settlementModels, historyModels} {
		if err := db.AutoMigrate(group...); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
