// Package onboarding composes the step handlers into the ordered checklist a
// provider works through before reaching the dashboard.
package onboarding

import (
	"math"

	"onboarding-gateway/internal/steps"
)

// Definition is the caller-owned description of one checklist step.
type Definition struct {
	ID            steps.ID
	Title         string
	Description   string
	Required      bool
	ActionPath    string
	Prerequisites []steps.ID
}

// DefaultDefinitions is the provider checklist in display order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          steps.IDProfile,
			Title:       "Completa tu perfil",
			Description: "Nombre, teléfono, ciudad y especialidad.",
			Required:    true,
			ActionPath:  "/onboarding/profile",
		},
		{
			ID:          steps.IDIdentity,
			Title:       "Verifica tu identidad",
			Description: "Valida tu identificación oficial con nuestro proveedor.",
			Required:    true,
			ActionPath:  "/onboarding/identity",
		},
		{
			ID:          steps.IDLicense,
			Title:       "Sube tu cédula profesional",
			Description: "Revisamos tu documento para confirmar que puedes ejercer.",
			Required:    true,
			ActionPath:  "/onboarding/license",
		},
		{
			ID:            steps.IDMarketplace,
			Title:         "Publica tu perfil",
			Description:   "Aparece en el marketplace para recibir clientes.",
			Required:      true,
			ActionPath:    "/onboarding/marketplace",
			Prerequisites: []steps.ID{steps.IDProfile, steps.IDIdentity, steps.IDLicense},
		},
	}
}

// Step is one rendered checklist row.
type Step struct {
	ID             steps.ID     `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	IsRequired     bool         `json:"is_required"`
	IsComplete     bool         `json:"is_complete"`
	ActionPath     *string      `json:"action_path"`
	ActionDisabled bool         `json:"action_disabled"`
	Status         string       `json:"status"`
	StatusText     string       `json:"status_text"`
	Error          *steps.Error `json:"error,omitempty"`
}

// State is the derived checklist. It is never stored.
type State struct {
	Steps             []Step       `json:"steps"`
	CompletedRequired int          `json:"completed_required"`
	TotalRequired     int          `json:"total_required"`
	Percentage        int          `json:"percentage"`
	NextStep          *Step        `json:"next_step"`
	Complete          bool         `json:"complete"`
	Error             *steps.Error `json:"error,omitempty"`
	CanRefetch        bool         `json:"can_refetch"`
}

// NewState derives the counters from a list of steps.
func NewState(list []Step) State {
	s := State{Steps: list}
	for _, step := range list {
		if !step.IsRequired {
			continue
		}
		s.TotalRequired++
		if step.IsComplete {
			s.CompletedRequired++
		}
	}
	s.Percentage = Percentage(s.CompletedRequired, s.TotalRequired)
	s.Complete = s.TotalRequired > 0 && s.CompletedRequired == s.TotalRequired
	s.NextStep = NextActionable(list)
	return s
}

// Percentage is round(100*completed/total), or 0 for an empty checklist.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}

// NextActionable returns a copy of the first step that is neither complete
// nor disabled, or nil.
func NextActionable(list []Step) *Step {
	for _, step := range list {
		if !step.IsComplete && !step.ActionDisabled {
			s := step
			return &s
		}
	}
	return nil
}
