package postgresql

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize initializes the db session and auto migrates given models
func Initialize(connStr string, models []any) (db *gorm.DB, err error) {
	retryTicker := time.NewTicker(time.Second * 2)
	defer retryTicker.Stop()

	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	// retry connect
	for range 5 {
		db, err = gorm.Open(postgres.Open(connStr), cfg)
		if err == nil {
			break
		}
		<-retryTicker.C
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err = db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}

	return db, nil
}

func Close(db *gorm.DB) error {
	sqlDb, err := db.DB()
	if err != nil {
		return err
	}

	return sqlDb.Close()
}
