package bridge

import (
	"context"
	"testing"

	"github.com/flowweave/flowweave/internal/planner"
)

func TestConvertResolvesDependencyReferences(t *testing.T) {
	steps := []planner.PlanStep{
		{ID: "uuid-1", Ref: "s1", Order: 1, Kind: planner.KindAction, NodeID: "node_gmail", ActionID: "act_send_email"},
		{ID: "uuid-2", Ref: "s2", Order: 2, Kind: planner.KindAction, NodeID: "node_slack", ActionID: "act_post_message",
			DependsOn: []string{"s1"}},
		{ID: "uuid-3", Ref: "s3", Order: 3, Kind: planner.KindAction, NodeID: "node_slack", ActionID: "act_post_message",
			DependsOn: []string{"step 1", "2"}},
	}

	plan, err := Convert(steps)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("expected 3 executable steps, got %d", len(plan.Steps))
	}
	if got := plan.Steps[1].Dependencies; len(got) != 1 || got[0] != "uuid-1" {
		t.Fatalf("oracle ref not resolved to synthetic id: %v", got)
	}
	got := plan.Steps[2].Dependencies
	if len(got) != 2 || got[0] != "uuid-1" || got[1] != "uuid-2" {
		t.Fatalf(`"step N" and bare-order references not resolved: %v`, got)
	}
}

func TestConvertResolvesBranchSuccessors(t *testing.T) {
	steps := []planner.PlanStep{
		{ID: "uuid-1", Ref: "s1", Order: 1, Kind: planner.KindAction, NodeID: "n", ActionID: "a"},
		{ID: "uuid-2", Ref: "s2", Order: 2, Kind: planner.KindBranch,
			Condition: "count > 0", OnTrue: "s1", OnFalse: ""},
	}

	plan, err := Convert(steps)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	b := plan.Steps[1]
	if b.OnTrue != "uuid-1" {
		t.Fatalf("on_true not resolved: %q", b.OnTrue)
	}
	if b.OnFalse != "" {
		t.Fatalf("empty successor must stay empty, got %q", b.OnFalse)
	}
	if b.Condition != "count > 0" {
		t.Fatalf("condition lost: %q", b.Condition)
	}
}

func TestConvertRejectsDanglingReferences(t *testing.T) {
	steps := []planner.PlanStep{
		{ID: "uuid-1", Order: 1, Kind: planner.KindAction, NodeID: "n", ActionID: "a",
			DependsOn: []string{"step 9"}},
	}
	if _, err := Convert(steps); err == nil {
		t.Fatalf("dangling dependency reference must fail conversion")
	}
}

func TestBuildReportsDesignedVersusExecutable(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)

	plan, summary, err := v.Build(context.Background(), []planner.PlanStep{validStep()})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if plan == nil || len(plan.Steps) != 1 {
		t.Fatalf("expected a one-step executable plan, got %+v", plan)
	}
	if plan.ID == "" {
		t.Fatalf("executable plan must carry an identifier")
	}
	if summary.StepsDesigned != 1 || summary.StepsExecutable != 1 || summary.Errors != 0 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
}

func TestBuildRejectionProducesNoPartialPlan(t *testing.T) {
	v := NewValidator(testSnapshot(), nil)
	steps := []planner.PlanStep{
		validStep(),
		{ID: "step-2", Order: 2, Kind: planner.KindAction, NodeID: "node_missing", ActionID: "act_missing"},
	}

	plan, summary, err := v.Build(context.Background(), steps)
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if plan != nil {
		t.Fatalf("rejected plans must not be partially converted")
	}
	if summary.StepsDesigned != 2 || summary.StepsExecutable != 0 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
	if summary.Errors == 0 {
		t.Fatalf("summary must carry the violation count")
	}
}
