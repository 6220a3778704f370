package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// ErrNodeNotFound indicates the requested node is not in the catalog.
var ErrNodeNotFound = fmt.Errorf("node not found")

// ErrActionNotFound indicates the requested action is not in the catalog.
var ErrActionNotFound = fmt.Errorf("action not found")

// ErrUnavailable indicates the registry backend could not be reached.
// Planning cannot proceed without capability metadata, so callers must
// propagate this as a hard failure.
var ErrUnavailable = fmt.Errorf("capability registry unavailable")

// Registry is the read-only capability catalog this subsystem plans against.
type Registry interface {
	ListNodes(ctx context.Context) ([]Node, error)
	GetNode(ctx context.Context, id string) (Node, error)
	GetAction(ctx context.Context, id string) (Action, error)
	ListParameters(ctx context.Context, actionID string) ([]Parameter, error)
}

// Snapshot is an immutable in-memory view of the registry, pulled once per
// planning turn. It satisfies Registry without suspending.
type Snapshot struct {
	nodes      []Node
	nodeByID   map[string]Node
	actionByID map[string]Action
}

// NewSnapshot indexes the supplied nodes. Action NodeID back-references are
// filled in when the source omitted them.
func NewSnapshot(nodes []Node) *Snapshot {
	s := &Snapshot{
		nodes:      nodes,
		nodeByID:   make(map[string]Node, len(nodes)),
		actionByID: make(map[string]Action),
	}
	for i, n := range nodes {
		for j, a := range n.Actions {
			if a.NodeID == "" {
				a.NodeID = n.ID
				nodes[i].Actions[j] = a
			}
			s.actionByID[a.ID] = a
		}
		s.nodeByID[n.ID] = nodes[i]
	}
	return s
}

// LoadSnapshotFile reads a JSON snapshot (array of nodes) from disk.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var nodes []Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return NewSnapshot(nodes), nil
}

// ListNodes returns all nodes in the snapshot.
func (s *Snapshot) ListNodes(ctx context.Context) ([]Node, error) {
	return s.nodes, nil
}

// GetNode returns the node with the given identifier.
func (s *Snapshot) GetNode(ctx context.Context, id string) (Node, error) {
	n, ok := s.nodeByID[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// GetAction returns the action with the given identifier.
func (s *Snapshot) GetAction(ctx context.Context, id string) (Action, error) {
	a, ok := s.actionByID[id]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrActionNotFound, id)
	}
	return a, nil
}

// ListParameters returns the parameter declarations of an action.
func (s *Snapshot) ListParameters(ctx context.Context, actionID string) ([]Parameter, error) {
	a, err := s.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	return a.Parameters, nil
}

// Nodes returns the raw node list without suspending. Resolution code uses
// this for name matching within a turn.
func (s *Snapshot) Nodes() []Node {
	return s.nodes
}

// Len reports the number of nodes in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.nodes)
}

// Narrow returns a snapshot restricted to the given node identifiers,
// preserving order. Unknown identifiers are skipped. An empty filter returns
// the receiver unchanged.
func (s *Snapshot) Narrow(nodeIDs []string) *Snapshot {
	if len(nodeIDs) == 0 {
		return s
	}
	var subset []Node
	for _, id := range nodeIDs {
		if n, ok := s.nodeByID[id]; ok {
			subset = append(subset, n)
		}
	}
	return NewSnapshot(subset)
}

// FindNode resolves a node by identifier first, then by exact name, then by
// a case/punctuation-insensitive comparison.
func (s *Snapshot) FindNode(ref string) (Node, bool) {
	if n, ok := s.nodeByID[ref]; ok {
		return n, true
	}
	for _, n := range s.nodes {
		if n.Name == ref {
			return n, true
		}
	}
	want := NormalizeName(ref)
	if want == "" {
		return Node{}, false
	}
	for _, n := range s.nodes {
		if NormalizeName(n.Name) == want {
			return n, true
		}
	}
	return Node{}, false
}

// FindAction resolves an action within a node by identifier, exact name,
// then normalized name.
func (s *Snapshot) FindAction(node Node, ref string) (Action, bool) {
	for _, a := range node.Actions {
		if a.ID == ref {
			return a, true
		}
	}
	for _, a := range node.Actions {
		if a.Name == ref {
			return a, true
		}
	}
	want := NormalizeName(ref)
	if want == "" {
		return Action{}, false
	}
	for _, a := range node.Actions {
		if NormalizeName(a.Name) == want {
			return a, true
		}
	}
	return Action{}, false
}

// NormalizeName lowercases a display name and strips everything that is not
// a letter or digit, so "Send E-Mail" matches "send email".
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
