package repository

import (
	"context"

	"tokenexecutor/src/database"
	"tokenexecutor/src/externalmodel"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SuggestionRepository reads suggested tokens from the read-only database.
type SuggestionRepository struct {
	db *gorm.DB
}

// NewSuggestionRepository uses the ReadOnlyDB connection by default.
func NewSuggestionRepository() *SuggestionRepository {
	return &SuggestionRepository{
		db: database.ReadOnlyDB,
	}
}

func (r *SuggestionRepository) WithDB(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// FindAfterID fetches suggestions with ID greater than lastID and a score of at least minScore,
// oldest first. This is meant for incremental polling.
func (r *SuggestionRepository) FindAfterID(
	ctx context.Context,
	lastID uint,
	minScore float64,
	limit int,
) ([]externalmodel.SuggestedToken, error) {

	if limit <= 0 {
		limit = 100
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "SuggestionRepository",
		"op":     "FindAfterID",
		"lastID": lastID,
		"limit":  limit,
	}).Debug("Fetching suggestions after ID")

	var rows []externalmodel.SuggestedToken
	err := r.db.WithContext(ctx).
		Where("id > ? AND analysis_score >= ?", lastID, minScore).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "SuggestionRepository",
			"op":     "FindAfterID",
			"lastID": lastID,
		}).WithError(err).Error("Failed to fetch suggestions after ID")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SuggestionRepository",
		"op":          "FindAfterID",
		"lastID":      lastID,
		"rows_return": len(rows),
	}).Info("Suggestions after ID fetched")

	return rows, nil
}

// MaxID returns the highest suggestion id, used to start polling from "now".
func (r *SuggestionRepository) MaxID(ctx context.Context) (uint, error) {
	var maxID *uint
	err := r.db.WithContext(ctx).
		Model(&externalmodel.SuggestedToken{}).
		Select("MAX(id)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}
