package transcript

import (
	"errors"
	"fmt"
	"sort"
)

// ErrStructural indicates a mapping that cannot be turned into any traversable tree.
var ErrStructural = errors.New("structural error")

// WarningKind classifies a recovered structural defect.
type WarningKind string

const (
	// WarnMissingParent: the node's parent id is not in the mapping; the node became a root.
	WarnMissingParent WarningKind = "missing_parent"
	// WarnMissingChild: a children entry references an id that is not in the mapping.
	WarnMissingChild WarningKind = "missing_child"
	// WarnRevisit: a node was reached a second time; the branch was truncated there.
	WarnRevisit WarningKind = "revisit"
	// WarnUnlistedChild: the node's parent exists but does not list it as a child.
	WarnUnlistedChild WarningKind = "unlisted_child"
	// WarnCycleBroken: the node sat on a cycle unreachable from any root and was promoted to root.
	WarnCycleBroken WarningKind = "cycle_broken"
	// WarnIDMismatch: the node's embedded id differs from its mapping key.
	WarnIDMismatch WarningKind = "id_mismatch"
	// WarnUnknownCurrentNode: current_node does not resolve; the full tree was used.
	WarnUnknownCurrentNode WarningKind = "unknown_current_node"
)

// Warning records a defect the builder recovered from.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	NodeID string      `json:"node_id"`
	Ref    string      `json:"ref,omitempty"` // The offending referenced id, if any
}

func (w Warning) String() string {
	if w.Ref != "" {
		return fmt.Sprintf("%s: node %q -> %q", w.Kind, w.NodeID, w.Ref)
	}
	return fmt.Sprintf("%s: node %q", w.Kind, w.NodeID)
}

// Fragment is the pre-order node sequence of one forest component.
type Fragment struct {
	RootID string
	Nodes  []*Node
}

// Tree is the navigable result of Build. It owns the id index; parent and
// child links stay id references resolved through that index.
type Tree struct {
	Fragments []Fragment
	Warnings  []Warning

	index    map[string]*Node
	children map[string][]string // Effective children: listed, resolvable, plus recovered
}

// Node returns the node with the given id.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Children returns the effective ordered child ids of a node.
func (t *Tree) Children(id string) []string {
	return t.children[id]
}

// Len returns the number of indexed nodes.
func (t *Tree) Len() int {
	return len(t.index)
}

// Nodes returns every fragment's nodes concatenated in fragment order.
func (t *Tree) Nodes() []*Node {
	var out []*Node
	for _, f := range t.Fragments {
		out = append(out, f.Nodes...)
	}
	return out
}

// PathTo returns the chain from the root of id's component down to id,
// following parent links. Returns false if id is not in the tree.
func (t *Tree) PathTo(id string) ([]*Node, bool) {
	n, ok := t.index[id]
	if !ok {
		return nil, false
	}
	seen := make(map[string]bool)
	var rev []*Node
	for n != nil && !seen[n.ID] {
		seen[n.ID] = true
		rev = append(rev, n)
		n = t.index[n.ParentID()]
	}
	path := make([]*Node, len(rev))
	for i, node := range rev {
		path[len(rev)-1-i] = node
	}
	return path, true
}

// Build reconstructs the forest described by a flat mapping.
//
// Roots are nodes without a parent or whose parent is absent from the
// mapping. Each root is walked depth-first in children order with an explicit
// stack; nodes reached twice, dangling child ids and other recoverable
// defects are recorded as warnings. A non-empty mapping without any root is
// cyclic and fails with ErrStructural. An empty mapping yields an empty tree.
func Build(mapping map[string]*Node) (*Tree, error) {
	t := &Tree{
		index:    make(map[string]*Node, len(mapping)),
		children: make(map[string][]string, len(mapping)),
	}
	if len(mapping) == 0 {
		return t, nil
	}

	// Sorted keys make warnings and recovery order deterministic.
	keys := make([]string, 0, len(mapping))
	for key, n := range mapping {
		if n == nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		n := mapping[key]
		if n.ID != key {
			if n.ID != "" {
				t.warn(WarnIDMismatch, key, n.ID)
			}
			// Index a copy under its key; the parsed node stays untouched.
			c := *n
			c.ID = key
			n = &c
		}
		t.index[key] = n
	}

	var roots []*Node
	for _, key := range keys {
		n := t.index[key]
		for _, childID := range n.Children {
			if _, ok := t.index[childID]; !ok {
				t.warn(WarnMissingChild, key, childID)
				continue
			}
			t.children[key] = append(t.children[key], childID)
		}

		parentID := n.ParentID()
		if parentID == "" {
			roots = append(roots, n)
			continue
		}
		if _, ok := t.index[parentID]; !ok {
			t.warn(WarnMissingParent, key, parentID)
			roots = append(roots, n)
		}
	}

	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no root among %d nodes, every parent resolves so the mapping is cyclic", ErrStructural, len(t.index))
	}

	t.adoptUnlisted(keys)
	sortRoots(roots)

	visited := make(map[string]bool, len(t.index))
	for _, root := range roots {
		if visited[root.ID] {
			// Already reached as some other node's child.
			t.warn(WarnRevisit, root.ID, "")
			continue
		}
		t.Fragments = append(t.Fragments, t.walk(root, visited))
	}

	// Anything left is only reachable through a cycle that no root leads into.
	for _, key := range keys {
		if visited[key] {
			continue
		}
		t.warn(WarnCycleBroken, key, t.index[key].ParentID())
		t.Fragments = append(t.Fragments, t.walk(t.index[key], visited))
	}

	return t, nil
}

// adoptUnlisted appends nodes whose parent exists but does not list them.
func (t *Tree) adoptUnlisted(keys []string) {
	listed := make(map[string]map[string]bool, len(t.children))
	for parentID, kids := range t.children {
		set := make(map[string]bool, len(kids))
		for _, k := range kids {
			set[k] = true
		}
		listed[parentID] = set
	}

	adopted := make(map[string][]*Node)
	for _, key := range keys {
		n := t.index[key]
		parentID := n.ParentID()
		if parentID == "" || parentID == key {
			continue
		}
		if _, ok := t.index[parentID]; !ok {
			continue
		}
		if listed[parentID][key] {
			continue
		}
		t.warn(WarnUnlistedChild, key, parentID)
		adopted[parentID] = append(adopted[parentID], n)
	}

	for parentID, kids := range adopted {
		sortByCreateTime(kids)
		for _, k := range kids {
			t.children[parentID] = append(t.children[parentID], k.ID)
		}
	}
}

// walk performs an iterative pre-order traversal from root.
func (t *Tree) walk(root *Node, visited map[string]bool) Fragment {
	frag := Fragment{RootID: root.ID}
	stack := []string{root.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[id] {
			t.warn(WarnRevisit, id, "")
			continue
		}
		visited[id] = true
		frag.Nodes = append(frag.Nodes, t.index[id])

		// Push in reverse so the first child is popped first.
		kids := t.children[id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return frag
}

func (t *Tree) warn(kind WarningKind, nodeID, ref string) {
	t.Warnings = append(t.Warnings, Warning{Kind: kind, NodeID: nodeID, Ref: ref})
}

// CountWarnings groups warnings by kind.
func CountWarnings(warnings []Warning) map[WarningKind]int {
	counts := make(map[WarningKind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	return counts
}

func sortRoots(roots []*Node) {
	sortByCreateTime(roots)
}

// sortByCreateTime orders nodes by message create_time (absent last), then id.
func sortByCreateTime(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		ti, okI := createTime(nodes[i])
		tj, okJ := createTime(nodes[j])
		switch {
		case okI && okJ && ti != tj:
			return ti < tj
		case okI != okJ:
			return okI
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func createTime(n *Node) (float64, bool) {
	if n.Message == nil || n.Message.CreateTime == nil {
		return 0, false
	}
	return *n.Message.CreateTime, true
}
