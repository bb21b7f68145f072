package services

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/validation"
	"gorm.io/gorm"
)

// Invalidator is notified when dimension data changes.
type Invalidator interface {
	Invalidate(dimensionCode string)
}

// DimensionService is the gorm-backed dimension registry and its admin surface.
type DimensionService struct {
	db          *gorm.DB
	log         *logger.Logger
	invalidator Invalidator
}

var _ imputation.Registry = (*DimensionService)(nil)

func NewDimensionService(db *gorm.DB, log *logger.Logger) *DimensionService {
	return &DimensionService{db: db, log: logger.OrNop(log).Component("dimensions")}
}

// SetInvalidator registers the cache to flush on writes.
func (s *DimensionService) SetInvalidator(inv Invalidator) { s.invalidator = inv }

func (s *DimensionService) invalidate(code string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(code)
	}
}

// ActiveDimensions implements imputation.Registry.
func (s *DimensionService) ActiveDimensions(ctx context.Context) ([]imputation.Dimension, error) {
	var rows []models.DimensionAnalytique
	if err := s.db.WithContext(ctx).Where("actif = ?", true).Order("ordre ASC, code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]imputation.Dimension, 0, len(rows))
	for _, d := range rows {
		out = append(out, imputation.Dimension{Code: d.Code, Libelle: d.Libelle, Obligatoire: d.Obligatoire})
	}
	return out, nil
}

// ActiveValues implements imputation.Registry.
func (s *DimensionService) ActiveValues(ctx context.Context, code string) ([]imputation.Value, error) {
	var rows []models.ValeurDimension
	err := s.db.WithContext(ctx).
		Joins("JOIN dimension_analytiques ON dimension_analytiques.id = valeur_dimensions.dimension_id").
		Where("dimension_analytiques.code = ? AND dimension_analytiques.actif = ? AND valeur_dimensions.actif = ?", code, true, true).
		Order("valeur_dimensions.ordre ASC, valeur_dimensions.code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]imputation.Value, 0, len(rows))
	for _, v := range rows {
		out = append(out, imputation.Value{Code: v.Code, Libelle: v.Libelle})
	}
	return out, nil
}

// List returns every dimension with its values, active or not.
func (s *DimensionService) List(ctx context.Context) ([]models.DimensionAnalytique, error) {
	var out []models.DimensionAnalytique
	err := s.db.WithContext(ctx).
		Preload("Valeurs", func(db *gorm.DB) *gorm.DB { return db.Order("ordre ASC, code ASC") }).
		Order("ordre ASC, code ASC").Find(&out).Error
	if err != nil {
		return nil, internalErr("dimension.list", err)
	}
	return out, nil
}

// CreateDimension adds a new classification axis. Codes are upper-cased.
func (s *DimensionService) CreateDimension(ctx context.Context, code, libelle string, obligatoire bool, ordre int) (*models.DimensionAnalytique, error) {
	const op = "dimension.create"
	code = strings.ToUpper(strings.TrimSpace(code))
	v := validation.Violations{}
	validation.Required("code", code, v)
	validation.Required("libelle", libelle, v)
	if err := v.Err(op); err != nil {
		return nil, err
	}
	d := &models.DimensionAnalytique{Code: code, Libelle: strings.TrimSpace(libelle), Obligatoire: obligatoire, Actif: true, Ordre: ordre}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.DimensionAnalytique{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return internalErr(op, err)
		}
		if n > 0 {
			return apperr.Newf(apperr.CodeConflict, op, "dimension %s already exists", code)
		}
		if err := tx.Create(d).Error; err != nil {
			return createErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(code)
	s.log.Info("dimension created", "code", code, "obligatoire", obligatoire)
	return d, nil
}

// AddValue adds an allowed value to dimension code.
func (s *DimensionService) AddValue(ctx context.Context, dimensionCode, code, libelle string, ordre int) (*models.ValeurDimension, error) {
	const op = "dimension.add_value"
	code = strings.ToUpper(strings.TrimSpace(code))
	v := validation.Violations{}
	validation.Required("code", code, v)
	validation.Required("libelle", libelle, v)
	if err := v.Err(op); err != nil {
		return nil, err
	}
	var val *models.ValeurDimension
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := findDimension(tx, op, dimensionCode)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.ValeurDimension{}).Where("dimension_id = ? AND code = ?", d.ID, code).Count(&n).Error; err != nil {
			return internalErr(op, err)
		}
		if n > 0 {
			return apperr.Newf(apperr.CodeConflict, op, "value %s already exists in %s", code, d.Code)
		}
		val = &models.ValeurDimension{DimensionID: d.ID, Code: code, Libelle: strings.TrimSpace(libelle), Actif: true, Ordre: ordre}
		if err := tx.Create(val).Error; err != nil {
			return createErr(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(strings.ToUpper(dimensionCode))
	return val, nil
}

// SetActive toggles a dimension, or one of its values when valueCode is set.
func (s *DimensionService) SetActive(ctx context.Context, dimensionCode, valueCode string, actif bool) error {
	const op = "dimension.set_active"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := findDimension(tx, op, dimensionCode)
		if err != nil {
			return err
		}
		if valueCode == "" {
			if err := tx.Model(&models.DimensionAnalytique{}).Where("id = ?", d.ID).Update("actif", actif).Error; err != nil {
				return internalErr(op, err)
			}
			return nil
		}
		res := tx.Model(&models.ValeurDimension{}).
			Where("dimension_id = ? AND code = ?", d.ID, strings.ToUpper(valueCode)).
			Update("actif", actif)
		if res.Error != nil {
			return internalErr(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Newf(apperr.CodeNotFound, op, "value %s not found in %s", valueCode, d.Code)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(strings.ToUpper(dimensionCode))
	return nil
}

func findDimension(tx *gorm.DB, op, code string) (*models.DimensionAnalytique, error) {
	var d models.DimensionAnalytique
	err := tx.Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, op, "dimension %s not found", code)
	}
	if err != nil {
		return nil, internalErr(op, err)
	}
	return &d, nil
}
