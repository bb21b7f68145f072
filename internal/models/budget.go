package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BudgetStatus represents the status of a budget version.
type BudgetStatus string

const (
	BudgetBrouillon BudgetStatus = "BROUILLON"
	BudgetSoumis    BudgetStatus = "SOUMIS"
	BudgetValide    BudgetStatus = "VALIDE"
	BudgetRejete    BudgetStatus = "REJETE"
	BudgetArchive   BudgetStatus = "ARCHIVE"
)

// IsPending reports whether the version still awaits a decision.
func (s BudgetStatus) IsPending() bool {
	return s == BudgetBrouillon || s == BudgetSoumis
}

// Budget is one versioned snapshot of a convention's budget breakdown.
type Budget struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	ConventionID uint        `gorm:"index;not null;uniqueIndex:idx_budget_convention_version" json:"convention_id"`
	Convention   *Convention `gorm:"foreignKey:ConventionID" json:"-"`

	Version string       `gorm:"size:10;not null;uniqueIndex:idx_budget_convention_version" json:"version"`
	Statut  BudgetStatus `gorm:"size:20;index;not null;default:'BROUILLON'" json:"statut"`

	PlafondConvention decimal.Decimal  `gorm:"type:decimal(15,2);not null" json:"plafond_convention"`
	Total             decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"total"`
	BudgetPrecedentID *uint            `json:"budget_precedent_id,omitempty"`
	DeltaMontant      *decimal.Decimal `gorm:"type:decimal(15,2)" json:"delta_montant,omitempty"`
	Justification     string           `gorm:"type:text" json:"justification,omitempty"`

	DateSoumission *time.Time `json:"date_soumission,omitempty"`
	DateValidation *time.Time `json:"date_validation,omitempty"`
	ValideParID    *uint      `json:"valide_par_id,omitempty"`
	MotifRejet     string     `gorm:"type:text" json:"motif_rejet,omitempty"`
	CreeParID      uint       `json:"cree_par_id"`

	Lignes []LigneBudget `gorm:"foreignKey:BudgetID;constraint:OnDelete:CASCADE" json:"lignes,omitempty"`
}

// LigneBudget is one line of a budget version.
type LigneBudget struct {
	ID       uint            `gorm:"primaryKey" json:"id"`
	BudgetID uint            `gorm:"index;not null" json:"budget_id"`
	Ordre    int             `gorm:"not null" json:"ordre"`
	Code     string          `gorm:"size:50;not null" json:"code"`
	Libelle  string          `gorm:"size:255;not null" json:"libelle"`
	Montant  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"montant"`
	TauxTva  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"taux_tva"`
}

// MontantTTC returns the line amount including VAT.
func (l *LigneBudget) MontantTTC() decimal.Decimal {
	return l.Montant.Add(l.Montant.Mul(l.TauxTva).Div(decimal.NewFromInt(100))).Round(2)
}

// SumLignes adds line amounts in decimal arithmetic at scale 2.
func SumLignes(lignes []LigneBudget) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lignes {
		total = total.Add(l.Montant.Round(2))
	}
	return total
}

// TotalTTC sums the tax-inclusive line amounts.
func (b *Budget) TotalTTC() decimal.Decimal {
	total := decimal.Zero
	for i := range b.Lignes {
		total = total.Add(b.Lignes[i].MontantTTC())
	}
	return total
}

// ExceedsPlafond reports whether the total is above the ceiling.
func (b *Budget) ExceedsPlafond() bool {
	return b.Total.GreaterThan(b.PlafondConvention)
}

// VersionTag formats the n-th version tag ("V0", "V1", ...).
func VersionTag(n int) string {
	return fmt.Sprintf("V%d", n)
}
