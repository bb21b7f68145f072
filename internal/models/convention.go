package models

import (
	"time"

	"github.com/diewo77/go-conventions/internal/commission"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConventionStatus represents the lifecycle status of a convention.
type ConventionStatus string

const (
	ConventionBrouillon ConventionStatus = "BROUILLON"
	ConventionSoumis    ConventionStatus = "SOUMIS"
	ConventionValidee   ConventionStatus = "VALIDEE"
	ConventionEnCours   ConventionStatus = "EN_COURS"
	ConventionEnRetard  ConventionStatus = "EN_RETARD"
	ConventionAcheve    ConventionStatus = "ACHEVE"
	ConventionAnnule    ConventionStatus = "ANNULE"
)

// ConventionStatuses lists every status in lifecycle order.
var ConventionStatuses = []ConventionStatus{
	ConventionBrouillon, ConventionSoumis, ConventionValidee, ConventionEnCours,
	ConventionEnRetard, ConventionAcheve, ConventionAnnule,
}

// IsTerminal reports whether no further transition may leave the status.
func (s ConventionStatus) IsTerminal() bool {
	return s == ConventionAcheve || s == ConventionAnnule
}

// ConventionType distinguishes framework agreements from the others.
type ConventionType string

const (
	ConventionCadre      ConventionType = "CADRE"
	ConventionNonCadre   ConventionType = "NON_CADRE"
	ConventionSpecifique ConventionType = "SPECIFIQUE"
	ConventionAvenant    ConventionType = "AVENANT"
)

// BaseCalcul says whether the commission base is pre-tax or tax-inclusive.
type BaseCalcul string

const (
	BaseHT  BaseCalcul = "HT"
	BaseTTC BaseCalcul = "TTC"
)

// InitialVersion is the version tag of a convention that was never amended.
const InitialVersion = "V0"

// Convention is a multi-partner funding agreement.
type Convention struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Identification
	Code        string           `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Numero      string           `gorm:"size:50;uniqueIndex;not null" json:"numero"`
	Libelle     string           `gorm:"size:255;not null" json:"libelle"`
	Objet       string           `gorm:"type:text" json:"objet,omitempty"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Type        ConventionType   `gorm:"size:20;not null;default:'CADRE'" json:"type"`
	Statut      ConventionStatus `gorm:"size:20;index;not null;default:'BROUILLON'" json:"statut"`

	// Financial parameters. TauxCommission and BaseCalcul are nil on a
	// sub-convention that inherits them from its parent.
	Budget         decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"budget"`
	TauxCommission *decimal.Decimal `gorm:"type:decimal(7,4)" json:"taux_commission,omitempty"`
	BaseCalcul     *BaseCalcul      `gorm:"size:3" json:"base_calcul,omitempty"`
	TauxTva        decimal.Decimal  `gorm:"type:decimal(5,2);not null" json:"taux_tva"`

	// Commission policy
	ModeCommission    commission.Mode                          `gorm:"size:20;not null;default:'FIXED_RATE'" json:"mode_commission"`
	Tranches          datatypes.JSONType[[]commission.Tranche] `json:"tranches"`
	MinimumCommission *decimal.Decimal                         `gorm:"type:decimal(15,2)" json:"minimum_commission,omitempty"`
	PlafondCommission *decimal.Decimal                         `gorm:"type:decimal(15,2)" json:"plafond_commission,omitempty"`

	DateDebut time.Time `gorm:"not null" json:"date_debut"`
	DateFin   time.Time `gorm:"not null" json:"date_fin"`

	// Version advances only when an avenant is validated.
	Version           string `gorm:"size:10;not null;default:'V0'" json:"version"`
	IsLocked          bool   `gorm:"not null;default:false" json:"is_locked"`
	MotifVerrouillage string `gorm:"size:500" json:"motif_verrouillage,omitempty"`

	// Sub-convention tree
	ParentID         *uint        `gorm:"index" json:"parent_id,omitempty"`
	SousConventions  []Convention `gorm:"foreignKey:ParentID" json:"-"`
	HeriteParametres bool         `gorm:"not null;default:false" json:"herite_parametres"`

	// Workflow
	DateSoumission  *time.Time `json:"date_soumission,omitempty"`
	SoumisParID     *uint      `json:"soumis_par_id,omitempty"`
	DateValidation  *time.Time `json:"date_validation,omitempty"`
	ValideParID     *uint      `json:"valide_par_id,omitempty"`
	MotifRejet      string     `gorm:"type:text" json:"motif_rejet,omitempty"`
	MotifAnnulation string     `gorm:"type:text" json:"motif_annulation,omitempty"`

	// Amendable fields captured when the convention was validated.
	DonneesV0 datatypes.JSONMap `json:"donnees_v0,omitempty"`

	Partenaires []ConventionPartenaire `gorm:"foreignKey:ConventionID" json:"partenaires,omitempty"`
}

// IsDraft returns true if the convention is still being drafted.
func (c *Convention) IsDraft() bool {
	return c.Statut == ConventionBrouillon
}

// CanEdit returns true if direct field edits are allowed.
func (c *Convention) CanEdit() bool {
	return c.Statut == ConventionBrouillon && !c.IsLocked
}

// IsSousConvention reports whether the convention has a parent.
func (c *Convention) IsSousConvention() bool {
	return c.ParentID != nil
}

// IsLate reports whether a running convention has passed its end date on day now.
func (c *Convention) IsLate(now time.Time) bool {
	return c.Statut == ConventionEnCours && Day(c.DateFin).Before(Day(now))
}

// Policy assembles the convention's commission policy around rate.
func (c *Convention) Policy(rate decimal.Decimal) commission.Policy {
	return commission.Policy{
		Mode:     c.ModeCommission,
		Rate:     rate,
		Tranches: c.Tranches.Data(),
		Minimum:  c.MinimumCommission,
		Plafond:  c.PlafondCommission,
	}
}

// Day truncates t to midnight UTC. Every convention date is stored this way.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
