package db

import (
	"errors"

	"github.com/diewo77/go-conventions/internal/models"
	"gorm.io/gorm"
)

type seedDimension struct {
	code        string
	libelle     string
	obligatoire bool
	valeurs     [][2]string
}

var baseDimensions = []seedDimension{
	{code: "REG", libelle: "Région", obligatoire: true, valeurs: [][2]string{
		{"CAS", "Casablanca-Settat"}, {"RAB", "Rabat-Salé-Kénitra"}, {"MAR", "Marrakech-Safi"}, {"FES", "Fès-Meknès"},
	}},
	{code: "SECT", libelle: "Secteur", obligatoire: false, valeurs: [][2]string{
		{"EAU", "Eau et assainissement"}, {"ROUTE", "Routes"}, {"EDU", "Éducation"}, {"SANTE", "Santé"},
	}},
	{code: "PHASE", libelle: "Phase", obligatoire: false, valeurs: [][2]string{
		{"ETUDE", "Études"}, {"REAL", "Réalisation"}, {"SUIVI", "Suivi"},
	}},
}

// Seed inserts the default analytical dimensions. Running it twice is harmless.
func Seed(db *gorm.DB) error {
	for i, sd := range baseDimensions {
		var dim models.DimensionAnalytique
		err := db.Where("code = ?", sd.code).First(&dim).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dim = models.DimensionAnalytique{Code: sd.code, Libelle: sd.libelle, Obligatoire: sd.obligatoire, Actif: true, Ordre: i + 1}
			if err := db.Create(&dim).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		for j, v := range sd.valeurs {
			var existing models.ValeurDimension
			err := db.Where("dimension_id = ? AND code = ?", dim.ID, v[0]).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				val := models.ValeurDimension{DimensionID: dim.ID, Code: v[0], Libelle: v[1], Actif: true, Ordre: j + 1}
				if err := db.Create(&val).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		}
	}
	return nil
}
