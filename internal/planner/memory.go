package planner

// Memory is the cross-turn working state of one conversation. The contract
// is that nothing established within a session is forgotten, but it is kept
// as a capped structured object rather than a replay of raw messages so the
// prompt size stays bounded.
type Memory struct {
	// LastPlan is the most recent resolved step list.
	LastPlan []PlanStep `json:"last_plan,omitempty"`
	// LastForm is the most recent smart form issued to the user.
	LastForm *SmartForm `json:"last_form,omitempty"`
	// AuthorizedServices holds node ids whose authorization is satisfied.
	AuthorizedServices map[string]bool `json:"authorized_services,omitempty"`
	// CollectedInputs holds user-supplied parameter values keyed by name.
	CollectedInputs map[string]interface{} `json:"collected_inputs,omitempty"`
	// ChosenServices records clarification answers: purpose -> node id.
	// Once a purpose appears here the planner must not re-ask it.
	ChosenServices map[string]string `json:"chosen_services,omitempty"`
	// Turns counts planning turns absorbed into this memory.
	Turns int `json:"turns"`
}

// NewMemory returns an empty session memory.
func NewMemory() *Memory {
	return &Memory{
		AuthorizedServices: make(map[string]bool),
		CollectedInputs:    make(map[string]interface{}),
		ChosenServices:     make(map[string]string),
	}
}

// IsAuthorized reports whether a node's authorization is already satisfied.
func (m *Memory) IsAuthorized(nodeID string) bool {
	if m == nil {
		return false
	}
	return m.AuthorizedServices[nodeID]
}

// HasInput reports whether a parameter value was already collected.
func (m *Memory) HasInput(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.CollectedInputs[name]
	return ok
}

// Input returns a collected parameter value.
func (m *Memory) Input(name string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.CollectedInputs[name]
	return v, ok
}

// HasChosen reports whether the user already disambiguated a purpose.
func (m *Memory) HasChosen(purpose string) bool {
	if m == nil {
		return false
	}
	_, ok := m.ChosenServices[purpose]
	return ok
}

// RememberedStep returns the prior-plan step with the same node/action pair,
// if one exists. Metadata from a remembered step takes precedence over a
// fresh registry lookup so continuity is preserved when the oracle re-emits
// a step it already fully specified.
func (m *Memory) RememberedStep(nodeID, actionID string) (PlanStep, bool) {
	if m == nil || nodeID == "" || actionID == "" {
		return PlanStep{}, false
	}
	for _, s := range m.LastPlan {
		if s.Kind == KindAction && s.NodeID == nodeID && s.ActionID == actionID {
			return s, true
		}
	}
	return PlanStep{}, false
}

// Absorb folds one turn's result into memory. maxInputs caps the collected
// input map; entries beyond the cap are dropped oldest-agnostic (maps carry
// no order), which in practice only triggers on degenerate conversations.
func (m *Memory) Absorb(res *ProtocolResult, maxInputs int) {
	if m == nil || res == nil {
		return
	}
	m.Turns++
	if len(res.Steps) > 0 {
		m.LastPlan = res.Steps
	}
	if res.SmartForm != nil {
		m.LastForm = res.SmartForm
	}
	if maxInputs > 0 && len(m.CollectedInputs) > maxInputs {
		for k := range m.CollectedInputs {
			delete(m.CollectedInputs, k)
			if len(m.CollectedInputs) <= maxInputs {
				break
			}
		}
	}
}

// RecordAuthorization marks a node's authorization as satisfied.
func (m *Memory) RecordAuthorization(nodeID string) {
	if m.AuthorizedServices == nil {
		m.AuthorizedServices = make(map[string]bool)
	}
	m.AuthorizedServices[nodeID] = true
}

// RecordInput stores a user-supplied parameter value.
func (m *Memory) RecordInput(name string, value interface{}) {
	if m.CollectedInputs == nil {
		m.CollectedInputs = make(map[string]interface{})
	}
	m.CollectedInputs[name] = value
}

// RecordChoice stores a clarification answer.
func (m *Memory) RecordChoice(purpose, nodeID string) {
	if m.ChosenServices == nil {
		m.ChosenServices = make(map[string]string)
	}
	m.ChosenServices[purpose] = nodeID
}
