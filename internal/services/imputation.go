package services

import (
	"context"
	"strings"

	"github.com/diewo77/go-conventions/internal/apperr"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/diewo77/go-conventions/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImputationInput is a new analytical line.
type ImputationInput struct {
	Type        models.ImputationType `json:"type"`
	ReferenceID uint                  `json:"reference_id"`
	Montant     decimal.Decimal       `json:"montant"`
	Dimensions  map[string]string     `json:"dimensions_valeurs"`
	Commentaire string                `json:"commentaire"`
}

type ImputationService struct {
	db        *gorm.DB
	validator *imputation.Validator
	log       *logger.Logger
}

func NewImputationService(db *gorm.DB, registry imputation.Registry, log *logger.Logger) *ImputationService {
	return &ImputationService{db: db, validator: imputation.NewValidator(registry), log: logger.OrNop(log).Component("imputations")}
}

func normalizeDimensions(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.ToUpper(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *ImputationService) check(ctx context.Context, op string, in ImputationInput) (map[string]string, error) {
	v := validation.Violations{}
	if !in.Type.Valid() {
		v["type"] = "invalid"
	}
	if in.ReferenceID == 0 {
		v["reference_id"] = "required"
	}
	validation.PositiveDecimal("montant", in.Montant, v)
	if err := v.Err(op); err != nil {
		return nil, err
	}
	dims := normalizeDimensions(in.Dimensions)
	if err := s.validator.Check(ctx, dims); err != nil {
		return nil, err
	}
	return dims, nil
}

// Create stores an imputation once every mandatory dimension is present.
func (s *ImputationService) Create(ctx context.Context, actor uint, in ImputationInput) (*models.ImputationAnalytique, error) {
	const op = "imputation.create"
	dims, err := s.check(ctx, op, in)
	if err != nil {
		return nil, err
	}
	imp := &models.ImputationAnalytique{
		Type:              in.Type,
		ReferenceID:       in.ReferenceID,
		Montant:           in.Montant.Round(2),
		DimensionsValeurs: datatypes.NewJSONType(dims),
		Commentaire:       strings.TrimSpace(in.Commentaire),
		CreeParID:         actor,
	}
	if err := s.db.WithContext(ctx).Create(imp).Error; err != nil {
		return nil, internalErr(op, err)
	}
	s.log.Debug("imputation created", "id", imp.ID, "type", imp.Type, "reference_id", imp.ReferenceID)
	return imp, nil
}

// Update replaces the amount and dimensions of an imputation.
func (s *ImputationService) Update(ctx context.Context, id uint, in ImputationInput) (*models.ImputationAnalytique, error) {
	const op = "imputation.update"
	db := s.db.WithContext(ctx)
	var imp models.ImputationAnalytique
	if err := db.First(&imp, id).Error; err != nil {
		return nil, loadErr(err, op, "imputation", id)
	}
	in.Type, in.ReferenceID = imp.Type, imp.ReferenceID
	dims, err := s.check(ctx, op, in)
	if err != nil {
		return nil, err
	}
	imp.Montant = in.Montant.Round(2)
	imp.DimensionsValeurs = datatypes.NewJSONType(dims)
	imp.Commentaire = strings.TrimSpace(in.Commentaire)
	if err := db.Save(&imp).Error; err != nil {
		return nil, internalErr(op, err)
	}
	return &imp, nil
}

// List returns the imputations of one reference, oldest first.
func (s *ImputationService) List(ctx context.Context, typ models.ImputationType, referenceID uint) ([]models.ImputationAnalytique, error) {
	var out []models.ImputationAnalytique
	err := s.db.WithContext(ctx).
		Where("type = ? AND reference_id = ?", typ, referenceID).
		Order("id ASC").Find(&out).Error
	if err != nil {
		return nil, internalErr("imputation.list", err)
	}
	return out, nil
}

// Delete soft-deletes an imputation.
func (s *ImputationService) Delete(ctx context.Context, id uint) error {
	const op = "imputation.delete"
	res := s.db.WithContext(ctx).Delete(&models.ImputationAnalytique{}, id)
	if res.Error != nil {
		return internalErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound(op, "imputation", id)
	}
	return nil
}

// DeleteByReference removes every imputation of a reference.
func (s *ImputationService) DeleteByReference(ctx context.Context, typ models.ImputationType, referenceID uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("type = ? AND reference_id = ?", typ, referenceID).Delete(&models.ImputationAnalytique{})
	if res.Error != nil {
		return 0, internalErr("imputation.delete_by_reference", res.Error)
	}
	return res.RowsAffected, nil
}

func toLines(rows []models.ImputationAnalytique) []imputation.Line {
	lines := make([]imputation.Line, 0, len(rows))
	for i := range rows {
		lines = append(lines, imputation.Line{Montant: rows[i].Montant, Dimensions: rows[i].Dimensions()})
	}
	return lines
}

func (s *ImputationService) lines(ctx context.Context, op string, query string, args ...any) ([]imputation.Line, error) {
	var rows []models.ImputationAnalytique
	if err := s.db.WithContext(ctx).Where(query, args...).Find(&rows).Error; err != nil {
		return nil, internalErr(op, err)
	}
	return toLines(rows), nil
}

// ValidateTotal compares the imputations of a reference with expected.
func (s *ImputationService) ValidateTotal(ctx context.Context, typ models.ImputationType, referenceID uint, expected decimal.Decimal) (imputation.TotalResult, error) {
	lines, err := s.lines(ctx, "imputation.validate_total", "type = ? AND reference_id = ?", typ, referenceID)
	if err != nil {
		return imputation.TotalResult{}, err
	}
	return imputation.ValidateTotal(lines, expected), nil
}

// RequireBalanced fails with ImputationMismatch when the reference is not fully imputed.
func (s *ImputationService) RequireBalanced(ctx context.Context, typ models.ImputationType, referenceID uint, expected decimal.Decimal) (imputation.TotalResult, error) {
	lines, err := s.lines(ctx, "imputation.require_balanced", "type = ? AND reference_id = ?", typ, referenceID)
	if err != nil {
		return imputation.TotalResult{}, err
	}
	return imputation.RequireBalanced(lines, expected)
}

// AggregateByDimension sums every imputation of typ per value of code.
func (s *ImputationService) AggregateByDimension(ctx context.Context, typ models.ImputationType, code string) (map[string]decimal.Decimal, error) {
	lines, err := s.lines(ctx, "imputation.aggregate", "type = ?", typ)
	if err != nil {
		return nil, err
	}
	return imputation.AggregateByDimension(lines, strings.ToUpper(code)), nil
}

// AggregateByTwoDimensions cross-tabulates every imputation of typ.
func (s *ImputationService) AggregateByTwoDimensions(ctx context.Context, typ models.ImputationType, dim1, dim2 string) ([]imputation.Pair, error) {
	lines, err := s.lines(ctx, "imputation.aggregate", "type = ?", typ)
	if err != nil {
		return nil, err
	}
	return imputation.AggregateByTwoDimensions(lines, strings.ToUpper(dim1), strings.ToUpper(dim2)), nil
}
