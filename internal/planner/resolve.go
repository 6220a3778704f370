package planner

import (
	"log"

	"github.com/google/uuid"

	"github.com/flowweave/flowweave/internal/registry"
)

// unresolvedPenalty is the confidence assigned to placeholder steps whose
// node/action references could not be matched against the snapshot.
const unresolvedPenalty = 0.2

// Resolver converts raw oracle step descriptions into canonical PlanStep
// records. Resolution never aborts the plan: an unresolvable reference
// degrades that single step to a flagged placeholder.
type Resolver struct {
	logger *log.Logger
}

// NewResolver creates a step resolver.
func NewResolver() *Resolver {
	return &Resolver{logger: log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags)}
}

// Resolve maps every raw step onto the registry snapshot, attaching
// identifiers, parameter metadata and the default authorization requirement.
// Metadata from a remembered prior-plan step takes precedence over the
// registry lookup when both exist.
func (r *Resolver) Resolve(raw []rawStep, snap *registry.Snapshot, mem *Memory, discovery []DiscoveryResult) []PlanStep {
	steps := make([]PlanStep, 0, len(raw))
	for i, rs := range raw {
		step := r.resolveOne(rs, i+1, snap, mem)
		PrefillFromDiscovery(&step, discovery)
		steps = append(steps, step)
	}
	return steps
}

func (r *Resolver) resolveOne(rs rawStep, order int, snap *registry.Snapshot, mem *Memory) PlanStep {
	step := PlanStep{
		ID:          uuid.NewString(),
		Ref:         rs.ID,
		Order:       order,
		Kind:        stepKind(rs),
		Parameters:  rs.Parameters,
		DependsOn:   rs.DependsOn,
		Description: rs.Description,
		Reasoning:   rs.Reasoning,
		Confidence:  rs.Confidence,
	}
	if step.Confidence == 0 {
		step.Confidence = 0.8
	}

	// Branch steps bypass identifier resolution entirely.
	if step.Kind == KindBranch {
		step.Condition = rs.Condition
		step.OnTrue = rs.OnTrue
		step.OnFalse = rs.OnFalse
		return step
	}
	if step.Kind == KindClarify {
		return step
	}

	nodeRef := rs.NodeID
	if nodeRef == "" {
		nodeRef = rs.Node
	}
	actionRef := rs.ActionID
	if actionRef == "" {
		actionRef = rs.Action
	}

	node, nodeOK := snap.FindNode(nodeRef)
	if !nodeOK {
		r.logger.Printf("step %d: node %q not found in snapshot, degrading to placeholder", order, nodeRef)
		return r.placeholder(step, nodeRef, actionRef, rs)
	}

	action, actionOK := snap.FindAction(node, actionRef)
	if !actionOK {
		r.logger.Printf("step %d: action %q not found on node %s, degrading to placeholder", order, actionRef, node.ID)
		return r.placeholder(step, nodeRef, actionRef, rs)
	}

	step.NodeID = node.ID
	step.ActionID = action.ID
	step.NodeName = node.Name
	step.ActionName = action.Name
	step.ParameterMeta = action.Parameters
	step.DefaultAuth = node.DefaultAuth

	// Continuity: a step the oracle already fully specified in a prior turn
	// keeps that turn's metadata.
	if prev, ok := mem.RememberedStep(node.ID, action.ID); ok {
		if len(prev.ParameterMeta) > 0 {
			step.ParameterMeta = prev.ParameterMeta
		}
		if prev.DefaultAuth != "" && prev.DefaultAuth != step.DefaultAuth {
			step.DefaultAuth = prev.DefaultAuth
		}
		if step.Parameters == nil && prev.Parameters != nil {
			step.Parameters = prev.Parameters
		}
	}
	return step
}

// placeholder keeps the step in the plan with whatever the oracle supplied,
// flagged and penalized, so one bad reference cannot discard an otherwise
// valid plan.
func (r *Resolver) placeholder(step PlanStep, nodeRef, actionRef string, rs rawStep) PlanStep {
	step.Unresolved = true
	step.Confidence = unresolvedPenalty
	step.NodeName = "unknown"
	step.ActionName = "unknown"
	if step.Reasoning == "" {
		step.Reasoning = "unresolved reference: node=" + nodeRef + " action=" + actionRef
	}
	// Fall back to oracle-supplied parameter metadata when the action could
	// not be resolved.
	for _, p := range rs.Params {
		step.ParameterMeta = append(step.ParameterMeta, registry.Parameter{
			Name:     p.Name,
			Type:     registry.ParamType(p.Type),
			Required: p.Required,
		})
	}
	return step
}

func stepKind(rs rawStep) StepKind {
	switch rs.Kind {
	case string(KindBranch), "conditional", "conditional-branch":
		return KindBranch
	case string(KindClarify), "clarification-request":
		return KindClarify
	default:
		return KindAction
	}
}
