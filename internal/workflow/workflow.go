// Package workflow holds the status gates of conventions, avenants and
// budgets: which action each status permits and where it leads.
package workflow

import "github.com/diewo77/go-conventions/internal/models"

// Action describes an operation a caller wants to perform on an aggregate.
type Action string

const (
	ActionEdit                Action = "edit"
	ActionDelete              Action = "delete"
	ActionSoumettre           Action = "soumettre"
	ActionValider             Action = "valider"
	ActionRejeter             Action = "rejeter"
	ActionDemarrer            Action = "demarrer"
	ActionAchever             Action = "achever"
	ActionAnnuler             Action = "annuler"
	ActionMarquerRetard       Action = "marquer_retard"
	ActionReprendre           Action = "reprendre"
	ActionAmender             Action = "amender"
	ActionReviserBudget       Action = "reviser_budget"
	ActionCreerSousConvention Action = "creer_sous_convention"
)

type conventionEdge struct {
	from   models.ConventionStatus
	action Action
}

var conventionTransitions = map[conventionEdge]models.ConventionStatus{
	{models.ConventionBrouillon, ActionSoumettre}:   models.ConventionSoumis,
	{models.ConventionSoumis, ActionValider}:        models.ConventionValidee,
	{models.ConventionSoumis, ActionRejeter}:        models.ConventionBrouillon,
	{models.ConventionValidee, ActionDemarrer}:      models.ConventionEnCours,
	{models.ConventionEnCours, ActionAchever}:       models.ConventionAcheve,
	{models.ConventionEnRetard, ActionAchever}:      models.ConventionAcheve,
	{models.ConventionEnCours, ActionMarquerRetard}: models.ConventionEnRetard,
	{models.ConventionEnRetard, ActionReprendre}:    models.ConventionEnCours,
	{models.ConventionBrouillon, ActionAnnuler}:     models.ConventionAnnule,
	{models.ConventionSoumis, ActionAnnuler}:        models.ConventionAnnule,
	{models.ConventionValidee, ActionAnnuler}:       models.ConventionAnnule,
	{models.ConventionEnCours, ActionAnnuler}:       models.ConventionAnnule,
	{models.ConventionEnRetard, ActionAnnuler}:      models.ConventionAnnule,
}

// conventionOperations lists the non-transition operations each status permits.
var conventionOperations = map[models.ConventionStatus][]Action{
	models.ConventionBrouillon: {ActionEdit, ActionDelete},
	models.ConventionSoumis:    {ActionCreerSousConvention},
	models.ConventionValidee:   {ActionAmender, ActionReviserBudget, ActionCreerSousConvention},
	models.ConventionEnCours:   {ActionAmender, ActionReviserBudget, ActionCreerSousConvention},
	models.ConventionEnRetard:  {ActionAmender, ActionReviserBudget, ActionCreerSousConvention},
}

// ConventionTarget returns the status reached by applying action from status.
func ConventionTarget(from models.ConventionStatus, action Action) (models.ConventionStatus, bool) {
	to, ok := conventionTransitions[conventionEdge{from, action}]
	return to, ok
}

// ConventionPermits reports whether status allows action, either as a
// transition or as an operation that leaves the status unchanged.
func ConventionPermits(status models.ConventionStatus, action Action) bool {
	if _, ok := ConventionTarget(status, action); ok {
		return true
	}
	for _, a := range conventionOperations[status] {
		if a == action {
			return true
		}
	}
	return false
}

// ConventionActions lists every action status permits.
func ConventionActions(status models.ConventionStatus) []Action {
	var out []Action
	for _, a := range allActions {
		if ConventionPermits(status, a) {
			out = append(out, a)
		}
	}
	return out
}

var allActions = []Action{
	ActionEdit, ActionDelete, ActionSoumettre, ActionValider, ActionRejeter,
	ActionDemarrer, ActionAchever, ActionAnnuler, ActionMarquerRetard, ActionReprendre,
	ActionAmender, ActionReviserBudget, ActionCreerSousConvention,
}

// AvenantTarget returns the status reached by an avenant action.
func AvenantTarget(from models.AvenantStatus, action Action) (models.AvenantStatus, bool) {
	switch {
	case from == models.AvenantBrouillon && action == ActionSoumettre:
		return models.AvenantSoumis, true
	case from == models.AvenantSoumis && action == ActionValider:
		return models.AvenantValide, true
	case from == models.AvenantSoumis && action == ActionRejeter:
		return models.AvenantBrouillon, true
	}
	return "", false
}

// AvenantPermits reports whether an avenant in status allows action.
func AvenantPermits(status models.AvenantStatus, action Action) bool {
	if _, ok := AvenantTarget(status, action); ok {
		return true
	}
	return status == models.AvenantBrouillon && (action == ActionEdit || action == ActionDelete)
}

// BudgetTarget returns the status reached by a budget action.
func BudgetTarget(from models.BudgetStatus, action Action) (models.BudgetStatus, bool) {
	switch action {
	case ActionSoumettre:
		if from == models.BudgetBrouillon {
			return models.BudgetSoumis, true
		}
	case ActionValider:
		if from == models.BudgetBrouillon || from == models.BudgetSoumis {
			return models.BudgetValide, true
		}
	case ActionRejeter:
		if from == models.BudgetSoumis {
			return models.BudgetRejete, true
		}
	}
	return "", false
}
