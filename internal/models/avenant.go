package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AvenantStatus represents the workflow status of an amendment.
type AvenantStatus string

const (
	AvenantBrouillon AvenantStatus = "BROUILLON"
	AvenantSoumis    AvenantStatus = "SOUMIS"
	AvenantValide    AvenantStatus = "VALIDE"
)

// Avenant is an amendment to a convention.
type Avenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ConventionID uint        `gorm:"index;not null" json:"convention_id"`
	Convention   *Convention `gorm:"foreignKey:ConventionID" json:"-"`

	Numero      int           `gorm:"not null" json:"numero"`
	Reference   string        `gorm:"size:80;uniqueIndex;not null" json:"reference"`
	DateAvenant time.Time     `gorm:"not null" json:"date_avenant"`
	Objet       string        `gorm:"type:text;not null" json:"objet"`
	Motif       string        `gorm:"type:text" json:"motif,omitempty"`
	Statut      AvenantStatus `gorm:"size:20;index;not null;default:'BROUILLON'" json:"statut"`

	// DonneesAvant is written once at creation and never re-derived.
	DonneesAvant  datatypes.JSONMap `gorm:"not null" json:"donnees_avant"`
	Modifications datatypes.JSONMap `gorm:"not null" json:"modifications"`

	// Deltas are nil when the field is not modified.
	DeltaBudget         *decimal.Decimal `gorm:"type:decimal(15,2)" json:"delta_budget,omitempty"`
	DeltaTauxCommission *decimal.Decimal `gorm:"type:decimal(7,4)" json:"delta_taux_commission,omitempty"`
	ImpactDelaiJours    *int             `json:"impact_delai_jours,omitempty"`

	// Set on validation.
	VersionResultante string     `gorm:"size:10" json:"version_resultante,omitempty"`
	OrdreApplication  int        `gorm:"index" json:"ordre_application,omitempty"`
	DateEffet         *time.Time `json:"date_effet,omitempty"`

	DateSoumission *time.Time `json:"date_soumission,omitempty"`
	SoumisParID    *uint      `json:"soumis_par_id,omitempty"`
	DateValidation *time.Time `json:"date_validation,omitempty"`
	ValideParID    *uint      `json:"valide_par_id,omitempty"`
	MotifRejet     string     `gorm:"type:text" json:"motif_rejet,omitempty"`
	RedigeParID    uint       `json:"redige_par_id"`
}

// IsDraft returns true while the avenant may still be edited or deleted.
func (a *Avenant) IsDraft() bool {
	return a.Statut == AvenantBrouillon
}

// IsApplied returns true once the avenant has been applied to its convention.
func (a *Avenant) IsApplied() bool {
	return a.Statut == AvenantValide
}

// ModifiedFields returns the modification map as strings.
func (a *Avenant) ModifiedFields() map[string]string {
	return stringMap(a.Modifications)
}

// SnapshotBefore returns the "before" snapshot as strings.
func (a *Avenant) SnapshotBefore() map[string]string {
	return stringMap(a.DonneesAvant)
}

func stringMap(m datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// JSONMapOf converts a string map into a JSON column value.
func JSONMapOf(m map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
