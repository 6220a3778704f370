package planner

import (
	"fmt"
	"log"
	"strings"

	"github.com/flowweave/flowweave/internal/registry"
)

// DiscoveryResult is a concrete resource obtained from the user's connected
// accounts, used to pre-fill parameters instead of asking for them.
type DiscoveryResult struct {
	ResourceID string      `json:"resource_id"`
	Type       string      `json:"type"`
	Confidence float64     `json:"confidence"`
	Value      interface{} `json:"value"`
}

// PromptContext is the assembled set of prompt fragments for one turn.
type PromptContext struct {
	CapabilityListing string
	MemoryRecap       string
	DiscoveryRecap    string
	Instructions      string
	// SelfServe is set when no snapshot was supplied and the oracle must
	// look capabilities up on demand instead of reading a full dump.
	SelfServe bool
}

// ContextBuilder assembles the capability view and cross-turn memory the
// oracle reasons over, so it never re-derives facts it already established.
type ContextBuilder struct {
	logger *log.Logger
}

// NewContextBuilder creates a context builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{logger: log.New(log.Writer(), "[CONTEXT] ", log.LstdFlags)}
}

// Build produces the prompt fragments for one planning turn. A nil snapshot
// switches to self-serve lookup mode; a non-empty preselection narrows the
// listing to the chosen services.
func (b *ContextBuilder) Build(snapshot *registry.Snapshot, preselected []string, mem *Memory, discovery []DiscoveryResult) PromptContext {
	pc := PromptContext{}

	if snapshot == nil {
		pc.SelfServe = true
		pc.CapabilityListing = selfServeInstructions
	} else {
		view := snapshot.Narrow(preselected)
		if len(preselected) > 0 {
			b.logger.Printf("narrowed capability listing to %d preselected service(s)", view.Len())
		}
		pc.CapabilityListing = renderCapabilities(view)
	}

	pc.MemoryRecap = renderMemoryRecap(mem)
	pc.DiscoveryRecap = renderDiscovery(discovery)
	pc.Instructions = noReaskInstructions(mem)
	return pc
}

const selfServeInstructions = `No capability listing is preloaded. Call the lookup tool ` +
	`"registry_lookup" with a service or action name to retrieve node identifiers, ` +
	`actions and parameter definitions before referencing them in steps.`

func renderCapabilities(snap *registry.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE SERVICES:\n")
	for _, n := range snap.Nodes() {
		fmt.Fprintf(&sb, "- %s (id: %s)", n.Name, n.ID)
		if n.UseCase != "" {
			fmt.Fprintf(&sb, " — %s", n.UseCase)
		}
		if n.DefaultAuth != "" {
			fmt.Fprintf(&sb, " [auth: %s]", n.DefaultAuth)
		}
		sb.WriteString("\n")
		for _, a := range n.Actions {
			fmt.Fprintf(&sb, "  * %s (id: %s)", a.Name, a.ID)
			if a.Description != "" {
				fmt.Fprintf(&sb, ": %s", a.Description)
			}
			sb.WriteString("\n")
			for _, p := range a.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&sb, "      - %s (%s, %s)", p.Name, p.Type, req)
				if len(p.Choices) > 0 {
					fmt.Fprintf(&sb, " choices: %s", strings.Join(p.Choices, ", "))
				}
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}

func renderMemoryRecap(mem *Memory) string {
	if mem == nil || mem.Turns == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("CONVERSATION MEMORY:\n")
	if len(mem.LastPlan) > 0 {
		sb.WriteString("Previously generated plan:\n")
		for _, s := range mem.LastPlan {
			switch s.Kind {
			case KindBranch:
				fmt.Fprintf(&sb, "  %d. [branch] if %s\n", s.Order, s.Condition)
			default:
				fmt.Fprintf(&sb, "  %d. %s / %s (node_id: %s, action_id: %s)\n",
					s.Order, s.NodeName, s.ActionName, s.NodeID, s.ActionID)
			}
		}
	}
	if mem.LastForm != nil {
		fmt.Fprintf(&sb, "Previously issued form requested: %s\n",
			strings.Join(mem.LastForm.FieldNames(), ", "))
	}
	if len(mem.AuthorizedServices) > 0 {
		var ids []string
		for id, ok := range mem.AuthorizedServices {
			if ok {
				ids = append(ids, id)
			}
		}
		fmt.Fprintf(&sb, "Already authorized services: %s\n", strings.Join(ids, ", "))
	}
	if len(mem.CollectedInputs) > 0 {
		sb.WriteString("User-supplied values already collected:\n")
		for name, val := range mem.CollectedInputs {
			fmt.Fprintf(&sb, "  %s = %v\n", name, val)
		}
	}
	if len(mem.ChosenServices) > 0 {
		sb.WriteString("Service choices the user already made:\n")
		for purpose, nodeID := range mem.ChosenServices {
			fmt.Fprintf(&sb, "  %s -> %s\n", purpose, nodeID)
		}
	}
	return sb.String()
}

func renderDiscovery(discovery []DiscoveryResult) string {
	if len(discovery) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("DISCOVERED RESOURCES (use these real values instead of placeholders):\n")
	for _, d := range discovery {
		fmt.Fprintf(&sb, "  - %s (%s, confidence %.2f): %v\n", d.ResourceID, d.Type, d.Confidence, d.Value)
	}
	return sb.String()
}

func noReaskInstructions(mem *Memory) string {
	var sb strings.Builder
	sb.WriteString("RULES:\n")
	sb.WriteString("1. Use only node and action identifiers from the capability listing; never invent identifiers.\n")
	sb.WriteString("2. Do not ask the user for any value listed under collected inputs or discovered resources.\n")
	if mem != nil && len(mem.ChosenServices) > 0 {
		sb.WriteString("3. The user already chose between competing services; do not ask again.\n")
	}
	if mem != nil && len(mem.AuthorizedServices) > 0 {
		sb.WriteString("4. Services listed as authorized need no further authorization.\n")
	}
	return sb.String()
}

// PrefillFromDiscovery fills null or missing parameter values on a step from
// discovery results whose type matches the declared parameter name or type.
// Highest-confidence results win.
func PrefillFromDiscovery(step *PlanStep, discovery []DiscoveryResult) {
	if step == nil || len(discovery) == 0 || step.Kind != KindAction {
		return
	}
	if step.Parameters == nil {
		step.Parameters = make(map[string]interface{})
	}
	for _, meta := range step.ParameterMeta {
		if v, ok := step.Parameters[meta.Name]; ok && v != nil {
			continue
		}
		best := -1.0
		var bestVal interface{}
		for _, d := range discovery {
			if d.Type != meta.Name && d.Type != string(meta.Type) {
				continue
			}
			if d.Confidence > best {
				best = d.Confidence
				bestVal = d.Value
			}
		}
		if best >= 0 {
			step.Parameters[meta.Name] = bestVal
		}
	}
}
