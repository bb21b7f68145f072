package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConventionPartenaire is one partner's share of a convention budget.
type ConventionPartenaire struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ConventionID   uint            `gorm:"index;not null;uniqueIndex:idx_partenaire_convention_code" json:"convention_id"`
	PartenaireCode string          `gorm:"size:50;not null;uniqueIndex:idx_partenaire_convention_code" json:"partenaire_code"`
	Nom            string          `gorm:"size:255;not null" json:"nom"`
	BudgetAlloue   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"budget_alloue"`
	Pourcentage    decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"pourcentage"`
}
