package models

import (
	"time"

	"github.com/diewo77/go-conventions/internal/commission"
	"github.com/shopspring/decimal"
)

// Commission is a billed commission. A reference is billed at most once per convention.
type Commission struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ConventionID uint      `gorm:"not null;uniqueIndex:idx_commission_convention_reference" json:"convention_id"`
	Reference    string    `gorm:"size:100;not null;uniqueIndex:idx_commission_convention_reference" json:"reference"`

	MontantBase       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant_base"`
	BaseCalcul        BaseCalcul      `gorm:"size:3;not null" json:"base_calcul"`
	Mode              commission.Mode `gorm:"size:20;not null" json:"mode"`
	TauxApplique      decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"taux_applique"`
	TauxTva           decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"taux_tva"`
	MontantHT         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant_ht"`
	MontantTVA        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant_tva"`
	MontantTTC        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant_ttc"`
	DateCalcul        time.Time       `gorm:"not null" json:"date_calcul"`
	CalculeParID      uint            `json:"calcule_par_id"`
	VersionConvention string          `gorm:"size:10;not null" json:"version_convention"`
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Convention{}, &ConventionPartenaire{}, &StatusChange{}, &Avenant{},
		&Budget{}, &LigneBudget{}, &DimensionAnalytique{}, &ValeurDimension{},
		&ImputationAnalytique{}, &Commission{},
	}
}
