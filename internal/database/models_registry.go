package database

import "doubtdesk/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Doubt{},
		&models.Answer{},
	}
}
