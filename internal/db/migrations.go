package db

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// runMigrations performs database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Folder{}, &Account{}); err != nil {
		return err
	}

	return normalizeLegacyStatuses(db)
}

// normalizeLegacyStatuses rewrites rows that still carry "error:<message>" in the
// status column into the split kind/detail representation.
func normalizeLegacyStatuses(db *gorm.DB) error {
	var legacy []Account
	if err := db.Where("status LIKE ?", "error:%").Find(&legacy).Error; err != nil {
		return err
	}

	if len(legacy) == 0 {
		return nil
	}

	for _, acc := range legacy {
		detail := string(acc.Status)[len("error:"):]
		err := db.Model(&Account{}).Where("id = ?", acc.ID).Updates(map[string]interface{}{
			"status":        StatusError,
			"status_detail": detail,
		}).Error
		if err != nil {
			return err
		}
	}

	log.Info().Int("count", len(legacy)).Msg("Normalized legacy account statuses")
	return nil
}
