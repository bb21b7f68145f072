package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImputationType names the kind of entity an imputation is attached to.
type ImputationType string

const (
	ImputationBudget        ImputationType = "BUDGET"
	ImputationDecompte      ImputationType = "DECOMPTE"
	ImputationOrdrePaiement ImputationType = "ORDRE_PAIEMENT"
	ImputationPaiement      ImputationType = "PAIEMENT"
)

// Valid reports whether t is a known imputation type.
func (t ImputationType) Valid() bool {
	switch t {
	case ImputationBudget, ImputationDecompte, ImputationOrdrePaiement, ImputationPaiement:
		return true
	}
	return false
}

// ImputationAnalytique is a monetary line tagged with dimension values.
type ImputationAnalytique struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Type        ImputationType  `gorm:"size:30;not null;index:idx_imputation_reference" json:"type"`
	ReferenceID uint            `gorm:"not null;index:idx_imputation_reference" json:"reference_id"`
	Montant     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant"`

	// DimensionsValeurs maps a dimension code to a value code, e.g. {"REG":"CAS"}.
	DimensionsValeurs datatypes.JSONType[map[string]string] `json:"dimensions_valeurs"`
	Commentaire       string                                `gorm:"size:500" json:"commentaire,omitempty"`
	CreeParID         uint                                  `json:"cree_par_id"`
}

// Dimensions returns the dimension map, never nil.
func (i *ImputationAnalytique) Dimensions() map[string]string {
	m := i.DimensionsValeurs.Data()
	if m == nil {
		return map[string]string{}
	}
	return m
}

// DimensionAnalytique is an admin-configured classification axis.
type DimensionAnalytique struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Code        string    `gorm:"size:30;uniqueIndex;not null" json:"code"`
	Libelle     string    `gorm:"size:255;not null" json:"libelle"`
	Obligatoire bool      `gorm:"not null;default:false" json:"obligatoire"`
	Actif       bool      `gorm:"not null" json:"actif"`
	Ordre       int       `gorm:"not null;default:0" json:"ordre"`

	Valeurs []ValeurDimension `gorm:"foreignKey:DimensionID" json:"valeurs,omitempty"`
}

// ValeurDimension is one allowed value of a dimension.
type ValeurDimension struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	DimensionID uint      `gorm:"index;not null;uniqueIndex:idx_valeur_dimension_code" json:"dimension_id"`
	Code        string    `gorm:"size:30;not null;uniqueIndex:idx_valeur_dimension_code" json:"code"`
	Libelle     string    `gorm:"size:255;not null" json:"libelle"`
	Actif       bool      `gorm:"not null" json:"actif"`
	Ordre       int       `gorm:"not null;default:0" json:"ordre"`
}
