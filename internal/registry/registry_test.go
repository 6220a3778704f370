package registry

import (
	"context"
	"errors"
	"testing"
)

func testNodes() []Node {
	return []Node{
		{
			ID:          "node_gmail",
			Name:        "Gmail",
			UseCase:     "email",
			DefaultAuth: "oauth2",
			Actions: []Action{
				{
					ID:   "act_send_email",
					Name: "Send E-Mail",
					Parameters: []Parameter{
						{Name: "to", Type: ParamString, Required: true},
						{Name: "subject", Type: ParamString, Required: true},
						{Name: "body", Type: ParamString},
					},
				},
			},
		},
		{
			ID:   "node_slack",
			Name: "Slack",
			Actions: []Action{
				{ID: "act_post_message", Name: "Post Message"},
			},
		},
	}
}

func TestSnapshotLookups(t *testing.T) {
	snap := NewSnapshot(testNodes())
	ctx := context.Background()

	n, err := snap.GetNode(ctx, "node_gmail")
	if err != nil {
		t.Fatalf("expected gmail node: %v", err)
	}
	if n.Name != "Gmail" {
		t.Fatalf("unexpected node name %q", n.Name)
	}

	a, err := snap.GetAction(ctx, "act_send_email")
	if err != nil {
		t.Fatalf("expected send email action: %v", err)
	}
	if a.NodeID != "node_gmail" {
		t.Fatalf("expected back-reference to node_gmail, got %q", a.NodeID)
	}

	params, err := snap.ListParameters(ctx, "act_send_email")
	if err != nil {
		t.Fatalf("list parameters: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(params))
	}

	if _, err := snap.GetNode(ctx, "node_missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
	if _, err := snap.GetAction(ctx, "act_missing"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

func TestFindNodeFallsBackToFuzzyName(t *testing.T) {
	snap := NewSnapshot(testNodes())

	cases := []struct {
		ref  string
		want string
	}{
		{"node_gmail", "node_gmail"},
		{"Gmail", "node_gmail"},
		{"g-mail", "node_gmail"},
		{"GMAIL", "node_gmail"},
		{"slack", "node_slack"},
	}
	for _, tc := range cases {
		n, ok := snap.FindNode(tc.ref)
		if !ok {
			t.Fatalf("expected %q to resolve", tc.ref)
		}
		if n.ID != tc.want {
			t.Fatalf("ref %q resolved to %s, want %s", tc.ref, n.ID, tc.want)
		}
	}

	if _, ok := snap.FindNode("notion"); ok {
		t.Fatalf("expected unknown service to stay unresolved")
	}
}

func TestFindActionNormalizesPunctuation(t *testing.T) {
	snap := NewSnapshot(testNodes())
	node, _ := snap.FindNode("node_gmail")

	a, ok := snap.FindAction(node, "send email")
	if !ok {
		t.Fatalf("expected fuzzy action match")
	}
	if a.ID != "act_send_email" {
		t.Fatalf("resolved wrong action %s", a.ID)
	}
}

func TestNarrowKeepsOnlyPreselection(t *testing.T) {
	snap := NewSnapshot(testNodes())

	narrowed := snap.Narrow([]string{"node_slack", "node_unknown"})
	if narrowed.Len() != 1 {
		t.Fatalf("expected 1 node after narrowing, got %d", narrowed.Len())
	}
	if _, ok := narrowed.FindNode("node_gmail"); ok {
		t.Fatalf("narrowed snapshot should drop gmail")
	}

	if snap.Narrow(nil) != snap {
		t.Fatalf("empty preselection must return the same snapshot")
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Send E-Mail":  "sendemail",
		"  Slack  ":    "slack",
		"HTTP/2 Call!": "http2call",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
