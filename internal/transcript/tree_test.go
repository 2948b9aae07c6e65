package transcript

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBuild_LinearChain(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "a"),
		msg("a", "root", "user", "hello", "b"),
		msg("b", "a", "assistant", "hi there", "c"),
		msg("c", "b", "user", "thanks"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(tree.Fragments) != 1 {
		t.Fatalf("got %d fragments, want 1", len(tree.Fragments))
	}
	got := ids(tree.Fragments[0].Nodes)
	want := []string{"root", "a", "b", "c"}
	if !equalStrings(got, want) {
		t.Errorf("pre-order = %v, want %v", got, want)
	}
	if len(tree.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", tree.Warnings)
	}
}

func TestBuild_BranchesFollowChildrenOrder(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "q"),
		msg("q", "root", "user", "question", "a2", "a1"),
		msg("a1", "q", "assistant", "first answer", "f"),
		msg("a2", "q", "assistant", "regenerated answer"),
		msg("f", "a1", "user", "follow up"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := ids(tree.Nodes())
	want := []string{"root", "q", "a2", "a1", "f"}
	if !equalStrings(got, want) {
		t.Errorf("pre-order = %v, want %v", got, want)
	}
}

func TestBuild_WellFormedForestProperty(t *testing.T) {
	// Three independent components; every reference resolves.
	mapping := mappingOf(
		gap("r1", "", "a"),
		msg("a", "r1", "user", "one", "b", "c"),
		msg("b", "a", "assistant", "two"),
		msg("c", "a", "assistant", "three"),
		msg("r2", "", "user", "orphan thread", "d"),
		msg("d", "r2", "assistant", "reply"),
		msg("r3", "", "system", "lonely"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	roots := 0
	for _, n := range mapping {
		if n.ParentID() == "" {
			roots++
		}
	}
	if len(tree.Fragments) != roots {
		t.Errorf("got %d fragments, want %d (one per root)", len(tree.Fragments), roots)
	}

	seen := make(map[string]int)
	for _, n := range tree.Nodes() {
		seen[n.ID]++
	}
	for id := range mapping {
		if seen[id] != 1 {
			t.Errorf("node %q appears %d times, want exactly once", id, seen[id])
		}
	}
	if len(seen) != len(mapping) {
		t.Errorf("fragments hold %d distinct nodes, mapping has %d", len(seen), len(mapping))
	}
	if len(tree.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", tree.Warnings)
	}
}

func TestBuild_GeneratedChainsProperty(t *testing.T) {
	for _, width := range []int{1, 2, 5} {
		for _, depth := range []int{1, 3, 10} {
			t.Run(fmt.Sprintf("width=%d/depth=%d", width, depth), func(t *testing.T) {
				mapping := make(map[string]*Node)
				for r := 0; r < width; r++ {
					parent := ""
					for d := 0; d < depth; d++ {
						id := fmt.Sprintf("n%d_%d", r, d)
						var kids []string
						if d+1 < depth {
							kids = []string{fmt.Sprintf("n%d_%d", r, d+1)}
						}
						mapping[id] = msg(id, parent, "user", id, kids...)
						parent = id
					}
				}

				tree, err := Build(mapping)
				if err != nil {
					t.Fatalf("Build failed: %v", err)
				}
				if len(tree.Fragments) != width {
					t.Errorf("got %d fragments, want %d", len(tree.Fragments), width)
				}
				if got := len(tree.Nodes()); got != width*depth {
					t.Errorf("got %d nodes, want %d", got, width*depth)
				}
			})
		}
	}
}

func TestBuild_CycleWithoutRootFails(t *testing.T) {
	mapping := mappingOf(
		msg("A", "B", "user", "a", "B"),
		msg("B", "A", "assistant", "b", "A"),
	)

	done := make(chan error, 1)
	go func() {
		_, err := Build(mapping)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStructural) {
			t.Errorf("expected ErrStructural, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Build did not terminate on a cyclic mapping")
	}
}

func TestBuild_SelfParentFails(t *testing.T) {
	mapping := mappingOf(msg("A", "A", "user", "a", "A"))
	if _, err := Build(mapping); !errors.Is(err, ErrStructural) {
		t.Errorf("expected ErrStructural, got %v", err)
	}
}

func TestBuild_DanglingChild(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "a"),
		msg("a", "root", "user", "hello", "ghost", "b"),
		msg("b", "a", "assistant", "world"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := ids(tree.Nodes())
	want := []string{"root", "a", "b"}
	if !equalStrings(got, want) {
		t.Errorf("pre-order = %v, want %v", got, want)
	}
	if !hasWarning(tree.Warnings, WarnMissingChild, "a") {
		t.Errorf("expected missing_child warning for node a, got %v", tree.Warnings)
	}
}

func TestBuild_MissingParentBecomesRoot(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "a"),
		msg("a", "root", "user", "hello"),
		msg("x", "deleted", "assistant", "orphaned reply", "y"),
		msg("y", "x", "user", "still here"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(tree.Fragments) != 2 {
		t.Fatalf("got %d fragments, want 2", len(tree.Fragments))
	}
	if !hasWarning(tree.Warnings, WarnMissingParent, "x") {
		t.Errorf("expected missing_parent warning for x, got %v", tree.Warnings)
	}
	if len(tree.Nodes()) != 4 {
		t.Errorf("got %d nodes, want 4", len(tree.Nodes()))
	}
}

func TestBuild_RevisitTruncatesBranch(t *testing.T) {
	// b is listed under both a and c; c also points back at a.
	mapping := mappingOf(
		gap("root", "", "a", "c"),
		msg("a", "root", "user", "a", "b"),
		msg("b", "a", "assistant", "b"),
		msg("c", "root", "user", "c", "b", "a"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := ids(tree.Nodes())
	want := []string{"root", "a", "b", "c"}
	if !equalStrings(got, want) {
		t.Errorf("pre-order = %v, want %v", got, want)
	}
	if !hasWarning(tree.Warnings, WarnRevisit, "b") || !hasWarning(tree.Warnings, WarnRevisit, "a") {
		t.Errorf("expected revisit warnings for a and b, got %v", tree.Warnings)
	}
}

func TestBuild_CycleUnreachableFromRootIsRecovered(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "a"),
		msg("a", "root", "user", "hello"),
		msg("p", "q", "user", "loop one", "q"),
		msg("q", "p", "assistant", "loop two", "p"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(tree.Fragments) != 2 {
		t.Fatalf("got %d fragments, want 2", len(tree.Fragments))
	}
	got := ids(tree.Fragments[1].Nodes)
	want := []string{"p", "q"}
	if !equalStrings(got, want) {
		t.Errorf("recovered fragment = %v, want %v", got, want)
	}
	if !hasWarning(tree.Warnings, WarnCycleBroken, "p") {
		t.Errorf("expected cycle_broken warning for p, got %v", tree.Warnings)
	}
	if !hasWarning(tree.Warnings, WarnRevisit, "p") {
		t.Errorf("expected revisit warning closing the loop at p, got %v", tree.Warnings)
	}
}

func TestBuild_UnlistedChildIsAdopted(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "a"),
		msg("a", "root", "user", "hello"), // b claims a as parent but a lists nothing
		msg("b", "a", "assistant", "hidden reply"),
	)

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := ids(tree.Nodes())
	want := []string{"root", "a", "b"}
	if !equalStrings(got, want) {
		t.Errorf("pre-order = %v, want %v", got, want)
	}
	if !hasWarning(tree.Warnings, WarnUnlistedChild, "b") {
		t.Errorf("expected unlisted_child warning for b, got %v", tree.Warnings)
	}
}

func TestBuild_IDMismatchUsesKey(t *testing.T) {
	n := msg("other", "", "user", "hello")
	mapping := map[string]*Node{"key": n}

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := tree.Node("key"); !ok {
		t.Error("expected node indexed under its mapping key")
	}
	if n.ID != "other" {
		t.Errorf("Build mutated the parsed node id to %q", n.ID)
	}
	if !hasWarning(tree.Warnings, WarnIDMismatch, "key") {
		t.Errorf("expected id_mismatch warning, got %v", tree.Warnings)
	}
}

func TestBuild_EmptyMapping(t *testing.T) {
	tree, err := Build(map[string]*Node{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(tree.Fragments) != 0 {
		t.Errorf("got %d fragments, want 0", len(tree.Fragments))
	}
}

func TestBuild_RootsOrderedByCreateTime(t *testing.T) {
	late := msg("late", "", "user", "second")
	late.Message.CreateTime = floatPtr(200)
	early := msg("zzz", "", "user", "first")
	early.Message.CreateTime = floatPtr(100)
	untimed := gap("aaa", "")

	tree, err := Build(mappingOf(late, early, untimed))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	var roots []string
	for _, f := range tree.Fragments {
		roots = append(roots, f.RootID)
	}
	want := []string{"zzz", "late", "aaa"}
	if !equalStrings(roots, want) {
		t.Errorf("root order = %v, want %v", roots, want)
	}
}

func TestBuild_DeepChainDoesNotRecurse(t *testing.T) {
	const depth = 100000
	mapping := make(map[string]*Node, depth)
	for i := 0; i < depth; i++ {
		id := fmt.Sprintf("n%06d", i)
		parent := ""
		if i > 0 {
			parent = fmt.Sprintf("n%06d", i-1)
		}
		var kids []string
		if i+1 < depth {
			kids = []string{fmt.Sprintf("n%06d", i+1)}
		}
		mapping[id] = gap(id, parent, kids...)
	}

	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := len(tree.Nodes()); got != depth {
		t.Errorf("got %d nodes, want %d", got, depth)
	}
}

func TestTree_PathTo(t *testing.T) {
	mapping := mappingOf(
		gap("root", "", "q"),
		msg("q", "root", "user", "question", "a1", "a2"),
		msg("a1", "q", "assistant", "first"),
		msg("a2", "q", "assistant", "second"),
	)
	tree, err := Build(mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	path, ok := tree.PathTo("a2")
	if !ok {
		t.Fatal("PathTo(a2) not found")
	}
	want := []string{"root", "q", "a2"}
	if got := ids(path); !equalStrings(got, want) {
		t.Errorf("PathTo(a2) = %v, want %v", got, want)
	}

	if _, ok := tree.PathTo("missing"); ok {
		t.Error("PathTo(missing) should report not found")
	}
}

func TestCountWarnings(t *testing.T) {
	counts := CountWarnings([]Warning{
		{Kind: WarnRevisit, NodeID: "a"},
		{Kind: WarnRevisit, NodeID: "b"},
		{Kind: WarnMissingChild, NodeID: "c", Ref: "x"},
	})
	if counts[WarnRevisit] != 2 || counts[WarnMissingChild] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
