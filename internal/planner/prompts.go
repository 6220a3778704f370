package planner

import (
	"fmt"
	"strings"
)

// buildPlanningPrompt renders the full system prompt for one planning turn.
func buildPlanningPrompt(intent string, pc PromptContext, history []string) string {
	var sb strings.Builder

	sb.WriteString(`You are the planning engine of a workflow-automation platform. Given the user's intent and the available services, design a multi-step workflow or report exactly what blocks it.

`)
	sb.WriteString(pc.CapabilityListing)
	sb.WriteString("\n")
	if pc.MemoryRecap != "" {
		sb.WriteString(pc.MemoryRecap)
		sb.WriteString("\n")
	}
	if pc.DiscoveryRecap != "" {
		sb.WriteString(pc.DiscoveryRecap)
		sb.WriteString("\n")
	}
	if len(history) > 0 {
		sb.WriteString("CONVERSATION SO FAR:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "  %s\n", msg)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(pc.Instructions)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "USER INTENT: %s\n\n", intent)
	sb.WriteString(outputFormat)
	return sb.String()
}

const outputFormat = `OUTPUT FORMAT (strict JSON, no prose outside the object):
{
  "state": "clarification_needed|oauth_required|needs_user_input|ready_for_review",
  "steps": [
    {
      "id": "step_1",
      "kind": "action",
      "node": "service name or id",
      "action": "action name or id",
      "parameters": {"param_name": "value or null when unknown"},
      "depends_on": ["step ids that must complete first"],
      "description": "what this step does",
      "confidence": 0.9
    },
    {
      "id": "step_2",
      "kind": "branch",
      "condition": "expression over prior step outputs",
      "on_true": "step id",
      "on_false": "step id"
    }
  ],
  "clarification_question": "only when competing services must be disambiguated",
  "service_groups": [
    {"purpose": "what the services compete for", "options": [{"node_id": "...", "name": "..."}]}
  ],
  "oauth_requirements": [
    {"node_id": "...", "node_name": "...", "method": "oauth2", "reason": "..."}
  ],
  "title": "short workflow title",
  "trigger": "what starts the workflow",
  "outcome": "what the workflow achieves",
  "time_estimate": "rough runtime estimate",
  "summary": "one-paragraph recap for the user",
  "confidence": 0.85
}

Set parameter values to null when the user must supply them. Reuse node and action identifiers exactly as listed. Give every step a unique id.`
