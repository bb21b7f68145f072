package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	dbx "github.com/diewo77/go-conventions/internal/db"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

const tester uint = 42

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := dbx.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// engine wires every service on one database with a fixed clock.
type engine struct {
	db          *gorm.DB
	conventions *ConventionService
	avenants    *AvenantService
	budgets     *BudgetService
	partenaires *PartenaireService
	commissions *CommissionService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineWithLocker(t, lock.NewLocalLocker())
}

func newEngineWithLocker(t *testing.T, locker lock.Locker) *engine {
	t.Helper()
	db := setupTestDB(t)
	e := &engine{
		db:          db,
		conventions: NewConventionService(db, locker, nil),
		avenants:    NewAvenantService(db, locker, nil),
		budgets:     NewBudgetService(db, locker, nil),
		partenaires: NewPartenaireService(db, locker, nil),
		commissions: NewCommissionService(db, locker, nil),
	}
	clock := func() time.Time { return fixedNow }
	e.conventions.SetClock(clock)
	e.avenants.SetClock(clock)
	e.budgets.SetClock(clock)
	e.partenaires.SetClock(clock)
	e.commissions.SetClock(clock)
	return e
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var seq int

func draft() ConventionDraft {
	seq++
	base := models.BaseHT
	return ConventionDraft{
		Numero:         fmt.Sprintf("CV-2026-%03d", seq),
		Libelle:        "Programme routes rurales",
		Objet:          "Financement des pistes",
		Budget:         dec("1000000"),
		TauxCommission: decPtr("2.5"),
		BaseCalcul:     &base,
		TauxTva:        dec("20"),
		DateDebut:      day(2026, 1, 1),
		DateFin:        day(2027, 12, 31),
	}
}

func (e *engine) create(t *testing.T, d ConventionDraft) *models.Convention {
	t.Helper()
	c, err := e.conventions.Create(context.Background(), tester, d)
	if err != nil {
		t.Fatalf("create convention: %v", err)
	}
	return c
}

// validated returns a convention moved to VALIDEE.
func (e *engine) validated(t *testing.T, d ConventionDraft) *models.Convention {
	t.Helper()
	ctx := context.Background()
	c := e.create(t, d)
	if _, err := e.conventions.Soumettre(ctx, c.ID, tester); err != nil {
		t.Fatalf("soumettre: %v", err)
	}
	out, err := e.conventions.Valider(ctx, c.ID, tester)
	if err != nil {
		t.Fatalf("valider: %v", err)
	}
	return out
}

// running returns a convention moved to EN_COURS.
func (e *engine) running(t *testing.T, d ConventionDraft) *models.Convention {
	t.Helper()
	c := e.validated(t, d)
	out, err := e.conventions.Demarrer(context.Background(), c.ID, tester)
	if err != nil {
		t.Fatalf("demarrer: %v", err)
	}
	return out
}

// amend creates, submits and validates an avenant.
func (e *engine) amend(t *testing.T, conventionID uint, mods map[string]any) *models.Avenant {
	t.Helper()
	ctx := context.Background()
	a, err := e.avenants.Create(ctx, conventionID, tester, AvenantDraft{Objet: "Révision", Modifications: mods})
	if err != nil {
		t.Fatalf("create avenant: %v", err)
	}
	if _, err := e.avenants.Soumettre(ctx, a.ID, tester); err != nil {
		t.Fatalf("soumettre avenant: %v", err)
	}
	out, err := e.avenants.Valider(ctx, a.ID, tester)
	if err != nil {
		t.Fatalf("valider avenant: %v", err)
	}
	return out
}

// busyLocker never grants a lock.
type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, func() error) error {
	return lock.ErrNotAcquired
}
