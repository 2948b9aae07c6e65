package transcript

// Test helpers for building mappings without JSON fixtures.

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// gap returns a node without a message.
func gap(id string, parent string, children ...string) *Node {
	n := &Node{ID: id, Children: children}
	if parent != "" {
		n.Parent = strPtr(parent)
	}
	return n
}

// msg returns a node with a plain text message.
func msg(id, parent, role, text string, children ...string) *Node {
	n := gap(id, parent, children...)
	n.Message = &Message{
		ID:     id,
		Author: Author{Role: role},
		Content: map[string]any{
			"content_type": "text",
			"parts":        []any{text},
		},
		Status: "finished_successfully",
		Weight: 1,
	}
	return n
}

func mappingOf(nodes ...*Node) map[string]*Node {
	m := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hasWarning(ws []Warning, kind WarningKind, nodeID string) bool {
	for _, w := range ws {
		if w.Kind == kind && w.NodeID == nodeID {
			return true
		}
	}
	return false
}
