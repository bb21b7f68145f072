package db

import (
	"gorm.io/gorm"
)

// UpdateByVersion updates the row id of model only while its version column
// still equals expected. It reports whether a row was changed.
func UpdateByVersion(tx *gorm.DB, model any, id uint, expected string, updates map[string]any) (bool, error) {
	res := tx.Model(model).Where("id = ? AND version = ?", id, expected).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateByStatus is UpdateByVersion keyed on the statut column.
func UpdateByStatus(tx *gorm.DB, model any, id uint, expected string, updates map[string]any) (bool, error) {
	res := tx.Model(model).Where("id = ? AND statut = ?", id, expected).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
