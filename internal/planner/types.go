package planner

import (
	"github.com/flowweave/flowweave/internal/registry"
)

// State is one of six mutually-exclusive outcomes of a planning turn.
type State string

const (
	// StateClarificationNeeded means multiple registry entries equally
	// satisfy the same functional need and the user must disambiguate.
	StateClarificationNeeded State = "clarification_needed"
	// StateOAuthRequired means one or more resolved steps reference a node
	// whose default authorization is unmet.
	StateOAuthRequired State = "oauth_required"
	// StateNeedsUserInput means required parameters remain unresolved after
	// merging defaults, memory and discovery results.
	StateNeedsUserInput State = "needs_user_input"
	// StateReadyForReview means the plan is fully resolved and awaits user
	// approval. Nothing executes in this state.
	StateReadyForReview State = "ready_for_review"
	// StateReady means the user approved a previously presented plan and it
	// is flagged for execution handoff.
	StateReady State = "ready"
	// StateError means the oracle was unreachable or produced irreconcilable
	// output; a degraded low-confidence plan is substituted.
	StateError State = "error"
)

// StepKind discriminates plan step variants.
type StepKind string

const (
	KindAction  StepKind = "action"
	KindBranch  StepKind = "branch"
	KindClarify StepKind = "clarify"
)

// PlanStep is one resolved, canonical unit of a proposed workflow.
// Node and action identifiers always originate from the registry snapshot
// of the turn (or unchanged from remembered prior-turn metadata); they are
// never fabricated here.
type PlanStep struct {
	ID    string   `json:"id"`
	Ref   string   `json:"ref,omitempty"` // oracle-assigned id, kept for dependency mapping
	Order int      `json:"order"`
	Kind  StepKind `json:"kind"`

	NodeID     string `json:"node_id,omitempty"`
	ActionID   string `json:"action_id,omitempty"`
	NodeName   string `json:"node_name,omitempty"`   // trace only, never authoritative
	ActionName string `json:"action_name,omitempty"` // trace only, never authoritative

	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	ParameterMeta []registry.Parameter   `json:"parameter_meta,omitempty"`
	DependsOn     []string               `json:"depends_on,omitempty"`
	DefaultAuth   string                 `json:"default_auth,omitempty"`

	Description string  `json:"description,omitempty"` // trace only
	Reasoning   string  `json:"reasoning,omitempty"`   // trace only
	Confidence  float64 `json:"confidence,omitempty"`

	// Unresolved marks a placeholder produced when identifier resolution
	// failed; the step survives so one bad reference cannot sink the plan.
	Unresolved bool `json:"unresolved,omitempty"`

	// Branch-only fields. Branch steps carry no node/action identifiers.
	Condition string `json:"condition,omitempty"`
	OnTrue    string `json:"on_true,omitempty"`
	OnFalse   string `json:"on_false,omitempty"`
}

// ServiceOption is one candidate service inside a clarification group.
type ServiceOption struct {
	NodeID  string `json:"node_id"`
	Name    string `json:"name"`
	UseCase string `json:"use_case,omitempty"`
}

// ServiceGroup lists services that equally satisfy one functional need.
type ServiceGroup struct {
	Purpose string          `json:"purpose"`
	Options []ServiceOption `json:"options"`
}

// Clarification is the payload of StateClarificationNeeded.
type Clarification struct {
	Question      string         `json:"question"`
	ServiceGroups []ServiceGroup `json:"service_groups"`
}

// FormField describes one missing parameter presented back to the user.
// Field names are the selected node's real parameter names, never generic
// placeholders.
type FormField struct {
	Name        string             `json:"name"`
	Label       string             `json:"label,omitempty"`
	Description string             `json:"description,omitempty"`
	Type        registry.ParamType `json:"type"`
	Required    bool               `json:"required"`
	Choices     []string           `json:"choices,omitempty"`
	Default     interface{}        `json:"default,omitempty"`
	StepID      string             `json:"step_id,omitempty"`
}

// FormSection groups the missing fields of one step.
type FormSection struct {
	Title  string      `json:"title"`
	NodeID string      `json:"node_id,omitempty"`
	Fields []FormField `json:"fields"`
}

// SmartForm is the payload of StateNeedsUserInput.
type SmartForm struct {
	ID       string        `json:"id"`
	Title    string        `json:"title,omitempty"`
	Sections []FormSection `json:"sections"`
}

// FieldNames lists every field name across all sections.
func (f *SmartForm) FieldNames() []string {
	if f == nil {
		return nil
	}
	var names []string
	for _, sec := range f.Sections {
		for _, fld := range sec.Fields {
			names = append(names, fld.Name)
		}
	}
	return names
}

// OAuthRequirement names a service whose authorization gate is unmet.
type OAuthRequirement struct {
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name,omitempty"`
	Method   string `json:"method,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ReviewSummary is the human-readable recap attached to ReadyForReview.
type ReviewSummary struct {
	Title        string   `json:"title"`
	Trigger      string   `json:"trigger,omitempty"`
	StepLines    []string `json:"step_lines"`
	Outcome      string   `json:"outcome,omitempty"`
	TimeEstimate string   `json:"time_estimate,omitempty"`
}

// ProtocolResult is the per-turn output of the planner: a tagged union keyed
// by State with state-specific payloads.
type ProtocolResult struct {
	State             State              `json:"state"`
	Steps             []PlanStep         `json:"steps,omitempty"`
	Clarification     *Clarification     `json:"clarification,omitempty"`
	SmartForm         *SmartForm         `json:"smart_form,omitempty"`
	OAuthRequirements []OAuthRequirement `json:"oauth_requirements,omitempty"`
	Confidence        float64            `json:"confidence"`
	Summary           string             `json:"summary,omitempty"`
	Review            *ReviewSummary     `json:"review,omitempty"`
	Memory            *Memory            `json:"memory,omitempty"`
}
