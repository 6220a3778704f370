package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/flowweave/flowweave/internal/planner"
)

// ExecStep is one step in the executable form handed to the runner.
type ExecStep struct {
	ID           string                 `json:"id"`
	Kind         planner.StepKind       `json:"kind"`
	NodeID       string                 `json:"node_id,omitempty"`
	ActionID     string                 `json:"action_id,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Dependencies []string               `json:"dependencies,omitempty"`
	DefaultAuth  string                 `json:"default_auth,omitempty"`
	Condition    string                 `json:"condition,omitempty"`
	OnTrue       string                 `json:"on_true,omitempty"`
	OnFalse      string                 `json:"on_false,omitempty"`
}

// ExecutablePlan is the ordered step list the external runner consumes.
type ExecutablePlan struct {
	ID    string     `json:"id"`
	Steps []ExecStep `json:"steps"`
}

// Summary reports designed-versus-executable counts for observability.
type Summary struct {
	StepsDesigned   int `json:"steps_designed"`
	StepsExecutable int `json:"steps_executable"`
	Errors          int `json:"errors"`
}

// Build validates a resolved plan and, on success, converts it into the
// executable form. Rejection returns the aggregated ValidationErrors and a
// summary with the error count; nothing is partially converted.
func (v *Validator) Build(ctx context.Context, steps []planner.PlanStep) (*ExecutablePlan, Summary, error) {
	summary := Summary{StepsDesigned: len(steps)}

	if err := v.Validate(ctx, steps); err != nil {
		if verrs, ok := err.(ValidationErrors); ok {
			summary.Errors = len(verrs)
		} else {
			summary.Errors = 1
		}
		return nil, summary, err
	}

	plan, err := Convert(steps)
	if err != nil {
		summary.Errors = 1
		return nil, summary, err
	}
	summary.StepsExecutable = len(plan.Steps)
	v.metrics.RecordSteps(summary.StepsDesigned, summary.StepsExecutable)
	v.logger.Printf("plan %s: %d step(s) validated and converted", plan.ID, len(plan.Steps))
	return plan, summary, nil
}

// Convert maps validated steps into executable records, resolving
// human-authored dependency references ("step 2", oracle ids, orders) into
// the synthetic step identifiers the runner expects.
func Convert(steps []planner.PlanStep) (*ExecutablePlan, error) {
	index := newRefIndex(steps)

	plan := &ExecutablePlan{ID: uuid.NewString(), Steps: make([]ExecStep, 0, len(steps))}
	for _, s := range steps {
		es := ExecStep{
			ID:   s.ID,
			Kind: s.Kind,
		}
		switch s.Kind {
		case planner.KindBranch:
			es.Condition = s.Condition
			var err error
			if es.OnTrue, err = index.resolveOptional(s.OnTrue); err != nil {
				return nil, fmt.Errorf("step %s on_true: %w", s.ID, err)
			}
			if es.OnFalse, err = index.resolveOptional(s.OnFalse); err != nil {
				return nil, fmt.Errorf("step %s on_false: %w", s.ID, err)
			}
		default:
			es.NodeID = s.NodeID
			es.ActionID = s.ActionID
			es.Parameters = s.Parameters
			es.DefaultAuth = s.DefaultAuth
			for _, dep := range s.DependsOn {
				id, err := index.resolve(dep)
				if err != nil {
					return nil, fmt.Errorf("step %s dependency: %w", s.ID, err)
				}
				es.Dependencies = append(es.Dependencies, id)
			}
		}
		plan.Steps = append(plan.Steps, es)
	}
	return plan, nil
}

// refIndex resolves the various ways a step may be referenced: by synthetic
// id, by the oracle-assigned ref, by execution order, or as "step N".
type refIndex struct {
	byID    map[string]string
	byRef   map[string]string
	byOrder map[int]string
}

func newRefIndex(steps []planner.PlanStep) *refIndex {
	idx := &refIndex{
		byID:    make(map[string]string, len(steps)),
		byRef:   make(map[string]string, len(steps)),
		byOrder: make(map[int]string, len(steps)),
	}
	for _, s := range steps {
		idx.byID[s.ID] = s.ID
		if s.Ref != "" {
			idx.byRef[s.Ref] = s.ID
		}
		idx.byOrder[s.Order] = s.ID
	}
	return idx
}

func (idx *refIndex) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := idx.byID[ref]; ok {
		return id, nil
	}
	if id, ok := idx.byRef[ref]; ok {
		return id, nil
	}
	numeric := ref
	lower := strings.ToLower(ref)
	if rest, found := strings.CutPrefix(lower, "step"); found {
		numeric = strings.TrimLeft(rest, " _-")
	}
	if n, err := strconv.Atoi(numeric); err == nil {
		if id, ok := idx.byOrder[n]; ok {
			return id, nil
		}
	}
	return "", fmt.Errorf("reference %q does not match any step", ref)
}

func (idx *refIndex) resolveOptional(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	return idx.resolve(ref)
}
