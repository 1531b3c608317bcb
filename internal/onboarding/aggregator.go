package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"onboarding-gateway/internal/onboarding/metrics"
	"onboarding-gateway/internal/steps"
)

// loadFailedMessage is shown with the single retry control of a failed load.
const loadFailedMessage = "No pudimos cargar tu progreso. Intenta de nuevo."

// Aggregator owns the ordered checklist. It reads handler projections only;
// handlers keep their own sessions and submissions.
type Aggregator struct {
	defs     []Definition
	handlers map[steps.ID]steps.Handler
	logger   *slog.Logger
	metrics  *metrics.Metrics

	onComplete   func(ctx context.Context, st State)
	onRearm      func(ctx context.Context)
	onChange     func(st State)
	onTransition func(ctx context.Context, step steps.ID, from, to string)

	// evalMu orders evaluations: each one snapshots, decides and runs its
	// callbacks before the next snapshot is taken.
	evalMu sync.Mutex

	mu      sync.Mutex
	loadErr *steps.Error
	// armed is true while the completion signal may still fire
	armed bool
	// statuses is the last status seen per step
	statuses map[steps.ID]string
}

type AggregatorOption func(*Aggregator)

func WithAggregatorLogger(logger *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithAggregatorMetrics(m *metrics.Metrics) AggregatorOption {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// OnComplete is called once each time the checklist reaches 100%.
func OnComplete(fn func(ctx context.Context, st State)) AggregatorOption {
	return func(a *Aggregator) {
		a.onComplete = fn
	}
}

// OnRearm is called when a completed checklist drops below 100%.
func OnRearm(fn func(ctx context.Context)) AggregatorOption {
	return func(a *Aggregator) {
		a.onRearm = fn
	}
}

// OnChange is called with the recomputed state after every evaluation.
func OnChange(fn func(st State)) AggregatorOption {
	return func(a *Aggregator) {
		a.onChange = fn
	}
}

// OnTransition is called when a step's status differs from the one seen at
// the previous evaluation. The first evaluation only records a baseline.
func OnTransition(fn func(ctx context.Context, step steps.ID, from, to string)) AggregatorOption {
	return func(a *Aggregator) {
		a.onTransition = fn
	}
}

// NewAggregator builds a checklist over defs. A definition without a handler
// or without an action path is rendered as a disabled step with a
// configuration error instead of failing construction.
func NewAggregator(defs []Definition, handlers []steps.Handler, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		defs:     defs,
		handlers: make(map[steps.ID]steps.Handler, len(handlers)),
		logger:   slog.Default(),
		armed:    true,
		statuses: make(map[steps.ID]string, len(defs)),
	}
	for _, opt := range opts {
		opt(a)
	}
	for _, h := range handlers {
		a.handlers[h.ID()] = h
	}
	for _, def := range defs {
		if _, ok := a.handlers[def.ID]; !ok {
			a.logger.Error("checklist step has no handler", "step", string(def.ID))
		}
		if def.ActionPath == "" {
			a.logger.Error("checklist step has no action path", "step", string(def.ID))
		}
	}
	return a
}

// State projects the current handler state into the checklist. It performs
// no I/O.
func (a *Aggregator) State() State {
	projections := make(map[steps.ID]steps.Projection, len(a.defs))
	for _, def := range a.defs {
		if h, ok := a.handlers[def.ID]; ok {
			projections[def.ID] = h.Projection()
		}
	}

	list := make([]Step, 0, len(a.defs))
	for _, def := range a.defs {
		list = append(list, a.step(def, projections))
	}

	st := NewState(list)
	a.mu.Lock()
	if a.loadErr != nil {
		e := *a.loadErr
		st.Error = &e
		st.CanRefetch = true
	}
	a.mu.Unlock()
	return st
}

func (a *Aggregator) step(def Definition, projections map[steps.ID]steps.Projection) Step {
	step := Step{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		IsRequired:  def.Required,
	}
	p, ok := projections[def.ID]
	if !ok {
		step.Status = "error"
		step.StatusText = "No disponible"
		step.ActionDisabled = true
		step.Error = steps.NewError(steps.KindConfiguration, "paso sin manejador configurado")
		return step
	}
	step.IsComplete = p.Complete
	step.Status = p.Status
	step.StatusText = p.StatusText
	step.ActionDisabled = p.ActionDisabled
	step.Error = p.Err

	if def.ActionPath == "" {
		step.ActionDisabled = true
		step.Error = steps.NewError(steps.KindConfiguration, "paso sin ruta de acción")
	} else {
		path := def.ActionPath
		step.ActionPath = &path
	}
	for _, prereq := range def.Prerequisites {
		if !projections[prereq].Complete {
			step.ActionDisabled = true
			break
		}
	}
	return step
}

// NextActionableStep is the first step that is neither complete nor
// disabled, or nil.
func (a *Aggregator) NextActionableStep() *Step {
	return NextActionable(a.State().Steps)
}

// PrerequisitesMet reports whether every prerequisite of stepID is complete.
func (a *Aggregator) PrerequisitesMet(stepID steps.ID) bool {
	for _, def := range a.defs {
		if def.ID != stepID {
			continue
		}
		for _, prereq := range def.Prerequisites {
			h, ok := a.handlers[prereq]
			if !ok || !h.Projection().Complete {
				return false
			}
		}
		return true
	}
	return false
}

// Evaluate recomputes the state and runs the completion gate: the signal
// fires on the transition into 100% and re-arms when a step regresses.
func (a *Aggregator) Evaluate(ctx context.Context) State {
	a.evalMu.Lock()
	defer a.evalMu.Unlock()

	st := a.State()

	type transition struct {
		step     steps.ID
		from, to string
	}
	var moved []transition

	a.mu.Lock()
	for _, step := range st.Steps {
		prev, seen := a.statuses[step.ID]
		if seen && prev != step.Status {
			moved = append(moved, transition{step.ID, prev, step.Status})
		}
		a.statuses[step.ID] = step.Status
	}
	fire, rearmed := false, false
	switch {
	case st.Complete && a.armed:
		a.armed = false
		fire = true
	case !st.Complete && !a.armed:
		a.armed = true
		rearmed = true
		a.metrics.IncGateRearm()
		a.logger.InfoContext(ctx, "onboarding regressed below completion",
			"completed_required", st.CompletedRequired,
			"total_required", st.TotalRequired,
		)
	}
	a.mu.Unlock()

	if a.onTransition != nil {
		for _, t := range moved {
			a.onTransition(ctx, t.step, t.from, t.to)
		}
	}
	if rearmed && a.onRearm != nil {
		a.onRearm(ctx)
	}
	if fire {
		a.metrics.IncCompletion()
		if a.onComplete != nil {
			a.onComplete(ctx, st)
		}
	}
	if a.onChange != nil {
		a.onChange(st)
	}
	return st
}

// Refetch runs every handler's status check in parallel and recomputes. Any
// failure puts the checklist in its error state until a later refetch
// succeeds; the returned error names the failing steps.
func (a *Aggregator) Refetch(ctx context.Context) (State, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []steps.ID
	)
	for _, def := range a.defs {
		h, ok := a.handlers[def.ID]
		if !ok {
			continue
		}
		g.Go(func() error {
			if _, err := h.CheckStatus(ctx); err != nil {
				mu.Lock()
				failed = append(failed, h.ID())
				mu.Unlock()
				return fmt.Errorf("refresh %s: %w", h.ID(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	if err != nil {
		a.metrics.IncRefetch("error")
		a.logger.WarnContext(ctx, "checklist refetch failed",
			"failed_steps", failed,
			"error", err,
		)
		a.setLoadErr(steps.NewError(steps.KindTransient, loadFailedMessage))
	} else {
		a.metrics.IncRefetch("ok")
		a.setLoadErr(nil)
	}
	return a.Evaluate(ctx), err
}

// disarm records that completion was already announced, so a checklist that
// is still at 100% does not announce it again.
func (a *Aggregator) disarm() {
	a.mu.Lock()
	a.armed = false
	a.mu.Unlock()
}

func (a *Aggregator) setLoadErr(err *steps.Error) {
	a.mu.Lock()
	a.loadErr = err
	a.mu.Unlock()
}

// Close tears down every handler.
func (a *Aggregator) Close() {
	for _, h := range a.handlers {
		h.Close()
	}
}
