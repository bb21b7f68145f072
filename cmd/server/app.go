package main

import (
	"net/http"
	"time"

	"github.com/diewo77/go-conventions/internal/auth"
	"github.com/diewo77/go-conventions/internal/handlers"
	"github.com/diewo77/go-conventions/internal/imputation"
	"github.com/diewo77/go-conventions/internal/lock"
	"github.com/diewo77/go-conventions/internal/logger"
	"github.com/diewo77/go-conventions/internal/services"
	"gorm.io/gorm"
)

// Services groups the engine services shared by the handlers and the CLI flags.
type Services struct {
	Conventions *services.ConventionService
	Avenants    *services.AvenantService
	Budgets     *services.BudgetService
	Partenaires *services.PartenaireService
	Commissions *services.CommissionService
	Dimensions  *services.DimensionService
	Imputations *services.ImputationService
}

// NewServices wires every service on one connection and locker. The
// dimension registry is cached for cacheTTL and flushed on writes.
func NewServices(db *gorm.DB, locker lock.Locker, log *logger.Logger, cacheTTL time.Duration) *Services {
	dims := services.NewDimensionService(db, log)
	registry := imputation.NewCachedRegistry(dims, cacheTTL)
	dims.SetInvalidator(registry)
	return &Services{
		Conventions: services.NewConventionService(db, locker, log),
		Avenants:    services.NewAvenantService(db, locker, log),
		Budgets:     services.NewBudgetService(db, locker, log),
		Partenaires: services.NewPartenaireService(db, locker, log),
		Commissions: services.NewCommissionService(db, locker, log),
		Dimensions:  dims,
		Imputations: services.NewImputationService(db, registry, log),
	}
}

// App is the main application handler that sets up all routes.
type App struct {
	mux *http.ServeMux
	svc *Services
}

// NewApp creates a new application with all routes configured.
func NewApp(svc *Services) *App {
	app := &App{
		mux: http.NewServeMux(),
		svc: svc,
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth.Middleware(a.mux).ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	ch := handlers.NewConventionHandler(a.svc.Conventions)
	ah := handlers.NewAvenantHandler(a.svc.Avenants)
	bh := handlers.NewBudgetHandler(a.svc.Budgets)
	ph := handlers.NewPartenaireHandler(a.svc.Partenaires, a.svc.Commissions)
	ih := handlers.NewImputationHandler(a.svc.Imputations)
	dh := handlers.NewDimensionHandler(a.svc.Dimensions)

	a.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Conventions
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("POST /conventions", a.write(ch.Create))
	a.mux.HandleFunc("GET /conventions", ch.List)
	a.mux.HandleFunc("GET /conventions/stats", ch.Statistiques)
	a.mux.Handle("POST /conventions/retards", a.write(ch.DetecterRetards))
	a.mux.HandleFunc("GET /conventions/{id}", ch.Get)
	a.mux.Handle("PATCH /conventions/{id}", a.write(ch.Update))
	a.mux.Handle("DELETE /conventions/{id}", a.write(ch.Delete))
	a.mux.Handle("POST /conventions/{id}/{action}", a.write(ch.Transition))
	a.mux.Handle("POST /conventions/{id}/sous-conventions", a.write(ch.CreerSousConvention))
	a.mux.HandleFunc("GET /conventions/{id}/sous-conventions", ch.SousConventions)
	a.mux.HandleFunc("GET /conventions/{id}/historique", ch.Historique)
	a.mux.HandleFunc("GET /conventions/{id}/parametres", ch.Parametres)

	// ─────────────────────────────────────────────────────────────────────────
	// Avenants and consolidated versions
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("POST /conventions/{id}/avenants", a.write(ah.Create))
	a.mux.HandleFunc("GET /conventions/{id}/avenants", ah.List)
	a.mux.HandleFunc("GET /conventions/{id}/avenants/stats", ah.Statistiques)
	a.mux.HandleFunc("GET /conventions/{id}/version-consolidee", ah.VersionConsolidee)
	a.mux.HandleFunc("GET /conventions/{id}/versions", ah.Versions)
	a.mux.HandleFunc("GET /avenants/{id}", ah.Get)
	a.mux.Handle("PUT /avenants/{id}", a.write(ah.Update))
	a.mux.Handle("DELETE /avenants/{id}", a.write(ah.Delete))
	a.mux.Handle("POST /avenants/{id}/{action}", a.write(ah.Transition))

	// ─────────────────────────────────────────────────────────────────────────
	// Budgets
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("POST /conventions/{id}/budgets", a.write(bh.Create))
	a.mux.HandleFunc("GET /conventions/{id}/budgets", bh.Historique)
	a.mux.HandleFunc("GET /conventions/{id}/budget-actif", bh.Active)
	a.mux.HandleFunc("GET /budgets/{id}", bh.Get)
	a.mux.Handle("PUT /budgets/{id}/lignes", a.write(bh.UpdateLignes))
	a.mux.HandleFunc("GET /budgets/{id}/commission", bh.EstimateCommission)
	a.mux.Handle("POST /budgets/{id}/{action}", a.write(bh.Transition))

	// ─────────────────────────────────────────────────────────────────────────
	// Partners and commissions
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("PUT /conventions/{id}/partenaires", a.write(ph.Definir))
	a.mux.HandleFunc("GET /conventions/{id}/partenaires", ph.List)
	a.mux.HandleFunc("GET /conventions/{id}/partenaires/commissions", ph.Commissions)
	a.mux.Handle("POST /conventions/{id}/commissions", a.write(ph.Facturer))
	a.mux.HandleFunc("GET /conventions/{id}/commissions", ph.Factures)

	// ─────────────────────────────────────────────────────────────────────────
	// Analytical imputations
	// ─────────────────────────────────────────────────────────────────────────
	a.mux.Handle("POST /imputations", a.write(ih.Create))
	a.mux.HandleFunc("GET /imputations", ih.List)
	a.mux.HandleFunc("GET /imputations/total", ih.Total)
	a.mux.HandleFunc("GET /imputations/aggregate", ih.Aggregate)
	a.mux.Handle("PUT /imputations/{id}", a.write(ih.Update))
	a.mux.Handle("DELETE /imputations/{id}", a.write(ih.Delete))

	a.mux.HandleFunc("GET /dimensions", dh.List)
	a.mux.Handle("POST /dimensions", a.write(dh.Create))
	a.mux.Handle("POST /dimensions/{code}/valeurs", a.write(dh.AddValue))
	a.mux.Handle("POST /dimensions/{code}/activation", a.write(dh.SetActive))
}

// write guards a mutating route: the gateway must have named an actor.
func (a *App) write(h http.HandlerFunc) http.Handler {
	return auth.RequireActor(h)
}
