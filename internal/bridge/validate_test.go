package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/flowweave/flowweave/internal/planner"
	"github.com/flowweave/flowweave/internal/registry"
)

func testSnapshot() *registry.Snapshot {
	return registry.NewSnapshot([]registry.Node{
		{
			ID:          "node_gmail",
			Name:        "Gmail",
			DefaultAuth: "oauth2",
			Actions: []registry.Action{
				{
					ID:   "act_send_email",
					Name: "Send E-Mail",
					Parameters: []registry.Parameter{
						{Name: "to", Type: registry.ParamString, Required: true},
						{Name: "subject", Type: registry.ParamString, Required: true},
						{Name: "body", Type: registry.ParamString},
					},
				},
			},
		},
		{
			ID:   "node_slack",
			Name: "Slack",
			Actions: []registry.Action{
				{
					ID:   "act_post_message",
					Name: "Post Message",
					Parameters: []registry.Parameter{
						{Name: "channel", Type: registry.ParamString, Required: true},
						{Name: "text", Type: registry.ParamString, Required: true},
						{Name: "retries", Type: registry.ParamNumber},
						{Name: "unfurl", Type: registry.ParamBoolean},
						{Name: "meta", Type: registry.ParamType("vector")}, // type this validator postdates
					},
				},
			},
		},
	})
}

func validStep() planner.PlanStep {
	return planner.PlanStep{
		ID:       "step-1",
		Order:    1,
		Kind:     planner.KindAction,
		NodeID:   "node_gmail",
		ActionID: "act_send_email",
		Parameters: map[string]interface{}{
			"to":      "ops@example.com",
			"subject": "Daily digest",
		},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	if err := v.Validate(context.Background(), []planner.PlanStep{validStep()}); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestValidateAggregatesAllViolations(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	steps := []planner.PlanStep{
		{
			ID: "step-1", Order: 1, Kind: planner.KindAction,
			NodeID: "node_gmail", ActionID: "act_send_email",
			Parameters: map[string]interface{}{"subject": "hi"}, // "to" missing
		},
		{
			ID: "step-2", Order: 2, Kind: planner.KindAction,
			NodeID: "node_slack", ActionID: "act_nonexistent",
			Parameters: map[string]interface{}{},
		},
	}

	err := v.Validate(context.Background(), steps)
	if err == nil {
		t.Fatalf("expected rejection")
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected exactly 2 aggregated violations, got %d: %v", len(verrs), verrs)
	}
	if verrs[0].StepID == verrs[1].StepID {
		t.Fatalf("violations must come from distinct steps: %v", verrs)
	}
}

func TestValidateRejectsActionFromWrongNode(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	step := validStep()
	step.ActionID = "act_post_message" // exists, but belongs to node_slack

	err := v.Validate(context.Background(), []planner.PlanStep{step})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected rejection, got %v", err)
	}
	found := false
	for _, e := range verrs {
		if e.Field == "action_id" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an action_id ownership violation, got %v", verrs)
	}
}

func TestValidateRejectsEmptyRequiredValue(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	step := validStep()
	step.Parameters["to"] = "   "

	if err := v.Validate(context.Background(), []planner.PlanStep{step}); err == nil {
		t.Fatalf("whitespace-only required value must be rejected")
	}
}

func TestValidateCoarseTypeChecks(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	step := planner.PlanStep{
		ID: "step-1", Order: 1, Kind: planner.KindAction,
		NodeID: "node_slack", ActionID: "act_post_message",
		Parameters: map[string]interface{}{
			"channel": "#ops",
			"text":    "hello",
			"retries": "three", // number declared, string supplied
			"unfurl":  "yes",   // boolean declared, string supplied
		},
	}

	err := v.Validate(context.Background(), []planner.PlanStep{step})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("expected 2 type violations, got %v", err)
	}
}

func TestValidateUnknownDeclaredTypeIsPermissive(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	step := planner.PlanStep{
		ID: "step-1", Order: 1, Kind: planner.KindAction,
		NodeID: "node_slack", ActionID: "act_post_message",
		Parameters: map[string]interface{}{
			"channel": "#ops",
			"text":    "hello",
			"meta":    []interface{}{1.0, 2.0, 3.0}, // declared type "vector"
		},
	}

	if err := v.Validate(context.Background(), []planner.PlanStep{step}); err != nil {
		t.Fatalf("unknown declared types must not cause rejection: %v", err)
	}
}

func TestValidateBranchSteps(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	steps := []planner.PlanStep{
		validStep(),
		{
			ID: "step-2", Order: 2, Kind: planner.KindBranch,
			Condition: "", // missing
			OnTrue:    "step-1",
			OnFalse:   "step-99", // dangling
		},
	}

	err := v.Validate(context.Background(), steps)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) != 2 {
		t.Fatalf("expected condition and successor violations, got %v", err)
	}
}

func TestValidateAcceptsSameReferenceGrammarAsConvert(t *testing.T) {
	// Successors and dependencies may use any form Convert resolves:
	// synthetic id, oracle ref, bare order, or "step N".
	first := validStep()
	first.Ref = "s1"
	second := validStep()
	second.ID = "step-2"
	second.Ref = "s2"
	second.Order = 2
	second.DependsOn = []string{"step 1"}
	steps := []planner.PlanStep{
		first,
		second,
		{
			ID: "step-3", Order: 3, Kind: planner.KindBranch,
			Condition: "delivered == true",
			OnTrue:    "step 1",
			OnFalse:   "2",
		},
	}

	v := NewValidator(testSnapshot(), nil)
	if err := v.Validate(context.Background(), steps); err != nil {
		t.Fatalf("references Convert can resolve must pass validation: %v", err)
	}
	if _, err := Convert(steps); err != nil {
		t.Fatalf("convert: %v", err)
	}
}

func TestValidateRejectsDanglingDependencies(t *testing.T) {
	step := validStep()
	step.DependsOn = []string{"step 9"}
	other := planner.PlanStep{
		ID: "step-2", Order: 2, Kind: planner.KindAction,
		NodeID: "node_slack", ActionID: "act_post_message",
		Parameters: map[string]interface{}{"text": "hi"}, // "channel" missing
	}

	v := NewValidator(testSnapshot(), nil)
	err := v.Validate(context.Background(), []planner.PlanStep{step, other})
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("dangling dependency must be aggregated with other violations, got %v", verrs)
	}
	found := false
	for _, e := range verrs {
		if e.Field == "depends_on" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a depends_on violation, got %v", verrs)
	}
}

func TestValidateRejectsStepsWithoutIdentifiers(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	steps := []planner.PlanStep{
		{ID: "step-1", Order: 1, Kind: planner.KindAction, Unresolved: true},
	}
	if err := v.Validate(context.Background(), steps); err == nil {
		t.Fatalf("placeholder steps must never reach execution")
	}
}
