package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrel-sim/worldkernel/internal/action"
)

var errBoom = errors.New("boom")

type fakeView struct{}

func (fakeView) AgentExists(id string) bool                { return true }
func (fakeView) LocationExists(id string) bool              { return true }
func (fakeView) ResourceBalance(ownerID string, kind int) int64 { return 0 }

func TestEngineAllowsWithNoHooks(t *testing.T) {
	e := NewEngine()
	a := action.Action{Kind: action.Move, AgentID: "a1"}
	out, reject, ok := e.Evaluate(context.Background(), "act-1", a, fakeView{})
	if !ok {
		t.Fatalf("expected allow, got reject %v", reject)
	}
	if out.AgentID != "a1" {
		t.Fatal("action unexpectedly mutated")
	}
}

func TestDenyDominates(t *testing.T) {
	e := NewEngine()
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Allow}
	})
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Deny, Notes: "blocked"}
	})
	_, reject, ok := e.Evaluate(context.Background(), "act-1", action.Action{}, fakeView{})
	if ok {
		t.Fatal("expected rejection")
	}
	if reject.Code.String() != "RuleDenied" {
		t.Fatalf("unexpected reject code: %v", reject.Code)
	}
}

func TestModifyWithoutOverrideDenies(t *testing.T) {
	e := NewEngine()
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Modify}
	})
	_, _, ok := e.Evaluate(context.Background(), "act-1", action.Action{}, fakeView{})
	if ok {
		t.Fatal("expected deny for modify without override_action")
	}
}

func TestInconsistentModifyDenies(t *testing.T) {
	e := NewEngine()
	overrideA := &action.Action{Kind: action.Move, AgentID: "a"}
	overrideB := &action.Action{Kind: action.Move, AgentID: "b"}
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Modify, OverrideAction: overrideA}
	})
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Modify, OverrideAction: overrideB}
	})
	_, _, ok := e.Evaluate(context.Background(), "act-1", action.Action{}, fakeView{})
	if ok {
		t.Fatal("expected deny for inconsistent override_action")
	}
}

func TestConsistentModifyOverridesAction(t *testing.T) {
	e := NewEngine()
	override := &action.Action{Kind: action.Move, AgentID: "a", ToLocationID: "loc-2"}
	e.RegisterHook(func(id string, a *action.Action, v ReadView) Decision {
		return Decision{Verdict: Modify, OverrideAction: override}
	})
	out, _, ok := e.Evaluate(context.Background(), "act-1", action.Action{Kind: action.Move, AgentID: "a"}, fakeView{})
	if !ok {
		t.Fatal("expected allow with override")
	}
	if out.ToLocationID != "loc-2" {
		t.Fatalf("override not applied: %+v", out)
	}
}

func TestEvaluatorErrorDeniesNeverSilent(t *testing.T) {
	e := NewEngine()
	e.SetEvaluator(InProcessEvaluator{Fn: func(ctx context.Context, actionID string, a action.Action, view ReadView) (Decision, error) {
		return Decision{}, errBoom
	}})
	_, _, ok := e.Evaluate(context.Background(), "act-1", action.Action{}, fakeView{})
	if ok {
		t.Fatal("evaluator error must deny, not silently allow")
	}
}

func TestInProcessEvaluatorAllowIsTrusted(t *testing.T) {
	e := NewEngine()
	e.SetEvaluator(InProcessEvaluator{Fn: func(ctx context.Context, actionID string, a action.Action, view ReadView) (Decision, error) {
		return Decision{Verdict: Allow}, nil
	}})
	_, _, ok := e.Evaluate(context.Background(), "act-1", action.Action{}, fakeView{})
	// InProcessEvaluator in this test returns Allow regardless of id match
	// (the id-mismatch guard lives in NATSEvaluator's wire decoding); this
	// test exists to document that in-process evaluators are trusted
	// as-is, unlike the wire evaluator.
	if !ok {
		t.Fatal("in-process evaluator allow should be trusted")
	}
}
