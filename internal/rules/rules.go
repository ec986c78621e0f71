// Package rules implements the pre-action rule decision engine (spec 4.E):
// ordered native hooks merged with an optional external evaluator, with
// the Allow/Deny/Modify merge semantics from spec 4.D.
package rules

import (
	"context"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/kernelerr"
)

// Verdict is the rule decision's outcome.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	Modify
)

// Decision is what a hook or evaluator returns for one action.
type Decision struct {
	Verdict        Verdict
	OverrideAction *action.Action
	Notes          string
	Cost           int64
}

// ReadView is the narrow read-only world surface a hook may consult,
// exposed as a capability set rather than the full worldmodel.Store
// (spec 9: "no dynamic dispatch leaks beyond this boundary").
type ReadView interface {
	AgentExists(id string) bool
	LocationExists(id string) bool
	ResourceBalance(ownerID string, kind int) int64
}

// Hook is a native, in-process pre-action rule.
type Hook func(actionID string, a *action.Action, view ReadView) Decision

// Evaluator is the external (sandboxed) rule evaluator contract. A real
// implementation crosses a process boundary (e.g. NATS request-reply,
// see rules.NATSEvaluator); InProcessEvaluator exists for tests and for
// worlds that run without one.
type Evaluator interface {
	Evaluate(ctx context.Context, actionID string, a action.Action, view ReadView) (Decision, error)
}

// Engine holds registered native hooks (in registration order) plus at
// most one external evaluator, merged per spec 4.E: native hooks first,
// evaluator last.
type Engine struct {
	hooks          []Hook
	evaluator      Evaluator
	evaluatorDelay time.Duration
}

func NewEngine() *Engine {
	return &Engine{evaluatorDelay: 250 * time.Millisecond}
}

// RegisterHook appends a native hook; order is preserved and significant.
func (e *Engine) RegisterHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// SetEvaluator installs the external evaluator. Passing nil disables it.
func (e *Engine) SetEvaluator(ev Evaluator) {
	e.evaluator = ev
}

// SetEvaluatorTimeout overrides the bounded wall-clock budget given to
// the external evaluator (spec 5: timeout -> Deny(note=timeout)).
func (e *Engine) SetEvaluatorTimeout(d time.Duration) {
	e.evaluatorDelay = d
}

// Evaluate runs every native hook then the external evaluator (if any),
// merging decisions per spec 4.D:
//   - any Deny dominates,
//   - multiple Modify with inconsistent override_action -> Deny,
//   - Modify without override_action -> Deny,
//   - otherwise Allow, with the override_action (if any) replacing the action.
func (e *Engine) Evaluate(ctx context.Context, actionID string, a action.Action, view ReadView) (action.Action, kernelerr.Reject, bool) {
	decisions := make([]Decision, 0, len(e.hooks)+1)
	for _, h := range e.hooks {
		decisions = append(decisions, h(actionID, &a, view))
	}

	if e.evaluator != nil {
		decisions = append(decisions, e.invokeEvaluator(ctx, actionID, a, view))
	}

	return mergeDecisions(a, decisions)
}

func (e *Engine) invokeEvaluator(ctx context.Context, actionID string, a action.Action, view ReadView) Decision {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.evaluatorDelay)
	defer cancel()

	type result struct {
		d   Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := e.evaluator.Evaluate(timeoutCtx, actionID, a, view)
		done <- result{d, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Decision{Verdict: Deny, Notes: "error"}
		}
		return r.d
	case <-timeoutCtx.Done():
		return Decision{Verdict: Deny, Notes: "timeout"}
	}
}

func mergeDecisions(original action.Action, decisions []Decision) (action.Action, kernelerr.Reject, bool) {
	var overrideAction *action.Action
	sawModify := false
	conflictingModify := false

	for _, d := range decisions {
		if d.Verdict == Deny {
			return original, kernelerr.NewRuleDenied(d.Notes), false
		}
		if d.Verdict == Modify {
			if d.OverrideAction == nil {
				return original, kernelerr.NewRuleDenied("modify without override_action"), false
			}
			if sawModify && overrideAction != nil && !sameAction(*overrideAction, *d.OverrideAction) {
				conflictingModify = true
			}
			sawModify = true
			overrideAction = d.OverrideAction
		}
	}

	if conflictingModify {
		return original, kernelerr.NewRuleDenied("inconsistent override_action"), false
	}

	if overrideAction != nil {
		return *overrideAction, kernelerr.Reject{}, true
	}
	return original, kernelerr.Reject{}, true
}

// sameAction is a shallow equality check sufficient to detect two hooks
// proposing identical overrides; actions carry no pointers except the
// override chain itself, so a value comparison over the flat struct
// would require comparable fields only — EvidenceEvents is a slice, so
// compare by Kind+the few scalar fields that matter for this check.
func sameAction(a, b action.Action) bool {
	return a.Kind == b.Kind &&
		a.AgentID == b.AgentID &&
		a.ToLocationID == b.ToLocationID &&
		a.LocationID == b.LocationID &&
		a.MassG == b.MassG &&
		a.Amount == b.Amount
}
