package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrImmutableHistory is returned when code tries to rewrite a status change.
var ErrImmutableHistory = errors.New("status history is append-only")

// EntityType names the aggregate a status change belongs to.
type EntityType string

const (
	EntityConvention EntityType = "convention"
	EntityAvenant    EntityType = "avenant"
	EntityBudget     EntityType = "budget"
)

// StatusChange is one append-only fact of the lifecycle history.
// ActorID 0 denotes the system itself (late detection).
type StatusChange struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	ConventionID uint       `gorm:"index;not null" json:"convention_id"`
	EntityType   EntityType `gorm:"size:20;index:idx_status_change_entity;not null" json:"entity_type"`
	EntityID     uint       `gorm:"index:idx_status_change_entity;not null" json:"entity_id"`
	FromStatut   string     `gorm:"size:20" json:"from_statut"`
	ToStatut     string     `gorm:"size:20;not null" json:"to_statut"`
	ActorID      uint       `gorm:"not null" json:"actor_id"`
	Motif        string     `gorm:"type:text" json:"motif,omitempty"`
	At           time.Time  `gorm:"not null" json:"at"`
}

// BeforeUpdate refuses any in-place rewrite of a history fact.
func (h *StatusChange) BeforeUpdate(*gorm.DB) error { return ErrImmutableHistory }

// BeforeDelete refuses removal of a history fact.
func (h *StatusChange) BeforeDelete(*gorm.DB) error { return ErrImmutableHistory }
