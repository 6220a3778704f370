package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks oracle output that could not be parsed into the
// expected structure. Retrying the same prompt is unlikely to fix a
// systematic formatting problem, so this is never retried.
var ErrMalformed = errors.New("oracle response malformed")

// rawResponse is the single internal representation every supported oracle
// wire shape normalizes into. Nothing past this boundary branches on a
// provider-specific shape again.
type rawResponse struct {
	State         string            `json:"state,omitempty"`
	Steps         []rawStep         `json:"steps,omitempty"`
	Question      string            `json:"clarification_question,omitempty"`
	ServiceGroups []rawServiceGroup `json:"service_groups,omitempty"`
	OAuth         []rawOAuth        `json:"oauth_requirements,omitempty"`
	Confidence    float64           `json:"confidence,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Title         string            `json:"title,omitempty"`
	Trigger       string            `json:"trigger,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`
	TimeEstimate  string            `json:"time_estimate,omitempty"`
	Reasoning     string            `json:"reasoning,omitempty"`
}

type rawStep struct {
	ID          string                 `json:"id,omitempty"`
	Kind        string                 `json:"kind,omitempty"`
	Node        string                 `json:"node,omitempty"`
	Action      string                 `json:"action,omitempty"`
	NodeID      string                 `json:"node_id,omitempty"`
	ActionID    string                 `json:"action_id,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Params      []rawParam             `json:"parameter_meta,omitempty"`
	DependsOn   []string               `json:"depends_on,omitempty"`
	Description string                 `json:"description,omitempty"`
	Reasoning   string                 `json:"reasoning,omitempty"`
	DefaultAuth string                 `json:"default_auth,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Condition   string                 `json:"condition,omitempty"`
	OnTrue      string                 `json:"on_true,omitempty"`
	OnFalse     string                 `json:"on_false,omitempty"`
}

type rawParam struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

type rawServiceGroup struct {
	Purpose string          `json:"purpose"`
	Options []rawServiceOpt `json:"options"`
}

type rawServiceOpt struct {
	NodeID  string `json:"node_id"`
	Name    string `json:"name"`
	UseCase string `json:"use_case,omitempty"`
}

type rawOAuth struct {
	NodeID   string `json:"node_id"`
	NodeName string `json:"node_name,omitempty"`
	Method   string `json:"method,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// extractFirstJSON finds the first balanced top-level JSON object in a
// string, tolerating prose and code fences around it.
func extractFirstJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// parseOracleResponse normalizes the oracle's raw output. It accepts a bare
// JSON object, an object wrapped in prose or markdown fences, and coerces
// numeric step ids and loosely-shaped depends_on entries.
func parseOracleResponse(raw string) (*rawResponse, error) {
	jsonStr := extractFirstJSON(raw)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformed)
	}

	var resp rawResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err == nil {
		if err := validateResponseDocument([]byte(jsonStr)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &resp, nil
	}

	// Lenient pass: coerce numeric ids and mixed-type depends_on lists that
	// strict unmarshaling rejects.
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	coerceSteps(generic)
	coerced, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(coerced, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validateResponseDocument(coerced); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &resp, nil
}

func coerceSteps(doc map[string]interface{}) {
	steps, ok := doc["steps"].([]interface{})
	if !ok {
		return
	}
	for _, si := range steps {
		step, ok := si.(map[string]interface{})
		if !ok {
			continue
		}
		if fv, ok := step["id"].(float64); ok {
			step["id"] = fmt.Sprintf("%.0f", fv)
		}
		if deps, ok := step["depends_on"].([]interface{}); ok {
			out := make([]interface{}, 0, len(deps))
			for _, d := range deps {
				switch v := d.(type) {
				case string:
					out = append(out, v)
				case float64:
					out = append(out, fmt.Sprintf("%.0f", v))
				}
			}
			step["depends_on"] = out
		}
	}
}

// stateHint maps the oracle's optional state label onto a protocol state.
// The label is only a hint; computeState re-derives the state from the
// payload in strict priority order.
func stateHint(s string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clarification_needed", "clarification":
		return StateClarificationNeeded, true
	case "oauth_required", "oauth":
		return StateOAuthRequired, true
	case "needs_user_input", "needs_input":
		return StateNeedsUserInput, true
	case "ready_for_review", "review":
		return StateReadyForReview, true
	case "ready", "approved":
		return StateReady, true
	}
	return "", false
}
