// Package services implements the convention engine: lifecycle transitions,
// amendments, budget versions, analytical imputations, partner shares and
// commission billing. Every mutating operation on a convention runs under
// the per-convention lock and inside one database transaction.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/diewo77/go-conventions/internal/apperr"
	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/models"
	"gorm.io/gorm"
)

// SystemActor is the actor id recorded for automatic transitions.
const SystemActor uint = 0

// core bundles the collaborators shared by every service.
type core struct {
	db     *gorm.DB
	tx     *dbx.TxRunner
	locker lock.Locker
	log    *logger.Logger
	now    func() time.Time
}

func newCore(db *gorm.DB, locker lock.Locker, log *logger.Logger, component string) core {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return core{db: db, tx: dbx.NewTxRunner(db), locker: locker, log: logger.OrNop(log).Component(component), now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (c *core) SetClock(now func() time.Time) { c.now = now }

func (c *core) today() time.Time { return models.Day(c.now()) }

// withConventionLock runs fn holding the lock of convention id.
func (c *core) withConventionLock(ctx context.Context, op string, id uint, fn func() error) error {
	err := c.locker.WithLock(ctx, lock.ConventionKey(id), fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return apperr.Concurrent(op, "convention is being modified by another operation")
	}
	return err
}

// lockedTx is withConventionLock around a transaction.
func (c *core) lockedTx(ctx context.Context, op string, id uint, fn func(tx *gorm.DB) error) error {
	return c.withConventionLock(ctx, op, id, func() error {
		return c.tx.InTx(ctx, fn)
	})
}

func loadErr(err error, op, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(op, entity, id)
	}
	return apperr.Wrap(apperr.CodeInternal, op, err)
}

func internalErr(op string, err error) error {
	return apperr.Wrap(apperr.CodeInternal, op, err)
}

func loadConvention(tx *gorm.DB, op string, id uint) (*models.Convention, error) {
	var c models.Convention
	if err := tx.First(&c, id).Error; err != nil {
		return nil, loadErr(err, op, "convention", id)
	}
	return &c, nil
}

func loadAvenant(tx *gorm.DB, op string, id uint) (*models.Avenant, error) {
	var a models.Avenant
	if err := tx.First(&a, id).Error; err != nil {
		return nil, loadErr(err, op, "avenant", id)
	}
	return &a, nil
}

func loadBudget(tx *gorm.DB, op string, id uint) (*models.Budget, error) {
	var b models.Budget
	err := tx.Preload("Lignes", func(db *gorm.DB) *gorm.DB { return db.Order("ordre ASC, id ASC") }).
		First(&b, id).Error
	if err != nil {
		return nil, loadErr(err, op, "budget", id)
	}
	return &b, nil
}

// activeBudget returns the most recent VALIDE version, or nil.
func activeBudget(tx *gorm.DB, conventionID uint) (*models.Budget, error) {
	var b models.Budget
	err := tx.Where("convention_id = ? AND statut = ?", conventionID, models.BudgetValide).
		Order("id DESC").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// transition describes one status change to append to the history.
type transition struct {
	conventionID uint
	entity       models.EntityType
	entityID     uint
	from, to     string
	actor        uint
	motif        string
}

func (c *core) record(tx *gorm.DB, t transition) error {
	fact := models.StatusChange{
		ConventionID: t.conventionID,
		EntityType:   t.entity,
		EntityID:     t.entityID,
		FromStatut:   t.from,
		ToStatut:     t.to,
		ActorID:      t.actor,
		Motif:        t.motif,
		At:           c.now().UTC(),
	}
	return tx.Create(&fact).Error
}

func (c *core) logTransition(t transition) {
	c.log.Info("status transition",
		"entity", t.entity,
		"entity_id", t.entityID,
		"convention_id", t.conventionID,
		"from", t.from,
		"to", t.to,
		"actor", t.actor,
	)
}
