package database

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OpenMemory opens a private in-memory sqlite database with the full schema applied.
func OpenMemory() (*gorm.DB, error) {
	config := GetConfig()
	config.GormLogLevel = 1
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := open(dsn, config, false)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
