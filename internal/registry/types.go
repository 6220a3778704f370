package registry

// ParamType enumerates the declared types a parameter may carry.
type ParamType string

const (
	ParamString     ParamType = "string"
	ParamNumber     ParamType = "number"
	ParamBoolean    ParamType = "boolean"
	ParamStructured ParamType = "structured"
	ParamFile       ParamType = "file"
)

// Parameter describes a single typed input of an action.
type Parameter struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required"`
	Type        ParamType   `json:"type"`
	Choices     []string    `json:"choices,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Action is a single invocable operation on a node.
type Action struct {
	ID          string      `json:"id"`
	NodeID      string      `json:"node_id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// Node is a registered integration capability offering one or more actions.
type Node struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	UseCase     string   `json:"use_case,omitempty"`
	DefaultAuth string   `json:"default_auth,omitempty"`
	Actions     []Action `json:"actions,omitempty"`
}

// Parameter returns the named parameter declaration, if present.
func (a Action) Parameter(name string) (Parameter, bool) {
	for _, p := range a.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// RequiredParameters returns the subset of parameters flagged required.
func (a Action) RequiredParameters() []Parameter {
	var out []Parameter
	for _, p := range a.Parameters {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}
