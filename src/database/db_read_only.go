package database

import (
	"fmt"
	"tokenexecutor/src/externalmodel"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReadOnlyDB is the read-only connection used to poll suggested tokens.
// The database user for this connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations. An empty DATABASE_URL_READONLY leaves ReadOnlyDB nil.
func InitReadOnlyDB() error {
	config := GetConfig()
	if config.DatabaseURLReadOnly == "" {
		logrus.Info("[ReadOnlyDB] DATABASE_URL_READONLY not set, suggestion polling disabled")
		return nil
	}

	db, err := open(config.DatabaseURLReadOnly, config, true)
	if err != nil {
		return fmt.Errorf("ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.
		Model(&externalmodel.SuggestedToken{}).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access suggested_tokens: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] suggested_tokens reachable")

	ReadOnlyDB = db

	return nil
}
