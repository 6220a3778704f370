// Package bridge is the last line of defense before a plan executes: it
// re-validates every step against the capability registry independently of
// whatever the planner already checked, then converts the plan into the
// executable form consumed by the runner.
package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/flowweave/flowweave/internal/planner"
	"github.com/flowweave/flowweave/internal/registry"
	"github.com/flowweave/flowweave/internal/telemetry"
)

// ValidationError describes one violation found in one step.
type ValidationError struct {
	StepID  string `json:"step_id"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("step %s: %s: %s", e.StepID, e.Field, e.Message)
	}
	return fmt.Sprintf("step %s: %s", e.StepID, e.Message)
}

// ValidationErrors aggregates every violation across the plan. A plan with
// any entry is rejected as a whole; partial execution is never permitted.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("plan validation failed with %d error(s): %s", len(v), strings.Join(msgs, "; "))
}

// Validator re-checks a resolved plan against the live registry.
type Validator struct {
	reg     registry.Registry
	metrics *telemetry.Telemetry
	logger  *log.Logger
}

// NewValidator creates a validator bound to a registry.
func NewValidator(reg registry.Registry, metrics *telemetry.Telemetry) *Validator {
	return &Validator{
		reg:     reg,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[BRIDGE] ", log.LstdFlags),
	}
}

// Validate checks every step and returns the aggregated violations, or nil
// when the plan is acceptable. All steps are processed before deciding;
// there is no short-circuit.
func (v *Validator) Validate(ctx context.Context, steps []planner.PlanStep) error {
	// The same reference index Convert uses, so validation and conversion
	// accept the same reference grammar.
	index := newRefIndex(steps)

	var errs ValidationErrors
	for _, s := range steps {
		switch s.Kind {
		case planner.KindBranch:
			errs = append(errs, v.validateBranch(s, index)...)
		case planner.KindAction:
			errs = append(errs, v.validateAction(ctx, s)...)
			errs = append(errs, v.validateDependencies(s, index)...)
		default:
			errs = append(errs, ValidationError{
				StepID:  s.ID,
				Message: fmt.Sprintf("step kind %q is not executable", s.Kind),
			})
		}
	}
	if len(errs) > 0 {
		v.metrics.RecordValidationRejection()
		v.logger.Printf("plan rejected: %d violation(s) across %d step(s)", len(errs), len(steps))
		return errs
	}
	return nil
}

// validateAction re-fetches node and action by identifier, never by name.
func (v *Validator) validateAction(ctx context.Context, s planner.PlanStep) ValidationErrors {
	var errs ValidationErrors
	if s.NodeID == "" || s.ActionID == "" {
		errs = append(errs, ValidationError{
			StepID:  s.ID,
			Message: "step has no registry identifiers",
		})
		return errs
	}

	if _, err := v.reg.GetNode(ctx, s.NodeID); err != nil {
		errs = append(errs, ValidationError{
			StepID:  s.ID,
			Field:   "node_id",
			Message: fmt.Sprintf("node %s not found in registry", s.NodeID),
		})
	}

	action, err := v.reg.GetAction(ctx, s.ActionID)
	if err != nil {
		errs = append(errs, ValidationError{
			StepID:  s.ID,
			Field:   "action_id",
			Message: fmt.Sprintf("action %s not found in registry", s.ActionID),
		})
		return errs
	}
	if action.NodeID != s.NodeID {
		errs = append(errs, ValidationError{
			StepID:  s.ID,
			Field:   "action_id",
			Message: fmt.Sprintf("action %s belongs to node %s, not %s", s.ActionID, action.NodeID, s.NodeID),
		})
	}

	errs = append(errs, v.validateParameters(s, action)...)
	return errs
}

// validateParameters checks required presence and coarse numeric/boolean
// types. Unknown declared types are permissive: the registry owns the type
// vocabulary and the validator must not reject plans for types it postdates.
func (v *Validator) validateParameters(s planner.PlanStep, action registry.Action) ValidationErrors {
	var errs ValidationErrors
	for _, p := range action.Parameters {
		val, present := s.Parameters[p.Name]
		if p.Required && (!present || isEmpty(val)) {
			errs = append(errs, ValidationError{
				StepID:  s.ID,
				Field:   p.Name,
				Message: "required parameter is missing or empty",
			})
			continue
		}
		if !present || val == nil {
			continue
		}
		switch p.Type {
		case registry.ParamNumber:
			switch val.(type) {
			case float64, float32, int, int32, int64:
			default:
				errs = append(errs, ValidationError{
					StepID:  s.ID,
					Field:   p.Name,
					Message: fmt.Sprintf("expected a number, got %T", val),
				})
			}
		case registry.ParamBoolean:
			if _, ok := val.(bool); !ok {
				errs = append(errs, ValidationError{
					StepID:  s.ID,
					Field:   p.Name,
					Message: fmt.Sprintf("expected a boolean, got %T", val),
				})
			}
		}
	}
	return errs
}

func (v *Validator) validateBranch(s planner.PlanStep, index *refIndex) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(s.Condition) == "" {
		errs = append(errs, ValidationError{
			StepID:  s.ID,
			Field:   "condition",
			Message: "branch step has no condition",
		})
	}
	for field, ref := range map[string]string{"on_true": s.OnTrue, "on_false": s.OnFalse} {
		if ref == "" {
			continue
		}
		if _, err := index.resolve(ref); err != nil {
			errs = append(errs, ValidationError{
				StepID:  s.ID,
				Field:   field,
				Message: fmt.Sprintf("successor %q does not reference a plan step", ref),
			})
		}
	}
	return errs
}

// validateDependencies checks every depends_on entry against the shared
// reference index so a dangling dependency is reported here, aggregated with
// any other violations, instead of surfacing later during conversion.
func (v *Validator) validateDependencies(s planner.PlanStep, index *refIndex) ValidationErrors {
	var errs ValidationErrors
	for _, dep := range s.DependsOn {
		if _, err := index.resolve(dep); err != nil {
			errs = append(errs, ValidationError{
				StepID:  s.ID,
				Field:   "depends_on",
				Message: fmt.Sprintf("dependency %q does not reference a plan step", dep),
			})
		}
	}
	return errs
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []interface{}:
		return len(x) == 0
	case map[string]interface{}:
		return len(x) == 0
	}
	return false
}
