package rules

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"

	"github.com/kestrel-sim/worldkernel/internal/action"
)

// NATSEvaluator dispatches the external evaluator over a NATS
// request-reply subject, the sandbox boundary spec 4.E calls for: the
// kernel process never loads evaluator code in-process. Grounded on the
// same nats.Connect pattern the event bus uses for its JetStream
// connection, generalized here to a blocking request instead of a
// durable subscription.
type NATSEvaluator struct {
	conn    *nats.Conn
	subject string
}

func NewNATSEvaluator(url, subject string) (*NATSEvaluator, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("rules: connect evaluator nats: %w", err)
	}
	return &NATSEvaluator{conn: conn, subject: subject}, nil
}

func (e *NATSEvaluator) Close() {
	e.conn.Close()
}

// evaluatorRequest/evaluatorResponse are the canonicalized wire shapes
// (spec 4.E: "canonicalized (action_id, Action, ReadView)").
type evaluatorRequest struct {
	ActionID string        `json:"action_id"`
	Action   action.Action `json:"action"`
}

type evaluatorResponse struct {
	ActionID       string         `json:"action_id"`
	Verdict        string         `json:"verdict"` // "allow" | "deny" | "modify"
	OverrideAction *action.Action `json:"override_action,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Cost           int64          `json:"cost,omitempty"`
}

// Evaluate blocks on a single NATS request; the caller (Engine) applies
// the bounded wall-clock timeout via ctx, converting ctx.Err() into a
// Deny(note=timeout) one layer up.
func (e *NATSEvaluator) Evaluate(ctx context.Context, actionID string, a action.Action, _ ReadView) (Decision, error) {
	req := evaluatorRequest{ActionID: actionID, Action: a}
	payload, err := json.Marshal(req)
	if err != nil {
		return Decision{}, fmt.Errorf("rules: marshal evaluator request: %w", err)
	}

	msg, err := e.conn.RequestWithContext(ctx, e.subject, payload)
	if err != nil {
		return Decision{}, fmt.Errorf("rules: evaluator request: %w", err)
	}

	var resp evaluatorResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return Decision{}, fmt.Errorf("rules: unmarshal evaluator response: %w", err)
	}

	// Spec 4.E: responses referencing the wrong action_id are converted
	// to Deny, never trusted silently.
	if resp.ActionID != actionID {
		return Decision{Verdict: Deny, Notes: "error"}, nil
	}

	switch resp.Verdict {
	case "allow":
		return Decision{Verdict: Allow, Notes: resp.Notes, Cost: resp.Cost}, nil
	case "deny":
		return Decision{Verdict: Deny, Notes: resp.Notes}, nil
	case "modify":
		return Decision{Verdict: Modify, OverrideAction: resp.OverrideAction, Notes: resp.Notes, Cost: resp.Cost}, nil
	default:
		return Decision{Verdict: Deny, Notes: "error"}, nil
	}
}

// InProcessEvaluator wraps a plain function as an Evaluator, used by
// tests and by worlds that keep their evaluator in-process.
type InProcessEvaluator struct {
	Fn func(ctx context.Context, actionID string, a action.Action, view ReadView) (Decision, error)
}

func (e InProcessEvaluator) Evaluate(ctx context.Context, actionID string, a action.Action, view ReadView) (Decision, error) {
	return e.Fn(ctx, actionID, a, view)
}
