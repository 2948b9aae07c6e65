package transcript

import (
	"errors"
	"fmt"
)

var (
	// ErrSelectionOutOfRange indicates a conversation index outside the export.
	ErrSelectionOutOfRange = errors.New("conversation index out of range")

	// ErrConversationNotFound indicates no conversation carries the requested id.
	ErrConversationNotFound = errors.New("conversation not found")
)

// BranchCurrent restricts linearization to the root-to-current_node path.
const BranchCurrent = "current"

// Selection picks which conversation of an export to analyze.
// The zero value selects the most recently updated conversation.
type Selection struct {
	Index  *int   // Position in the export, if set
	ID     string // id or conversation_id, if set
	Branch string // "" for the whole tree, BranchCurrent for the current_node path
}

// IsDefault reports whether no explicit conversation was requested.
func (s Selection) IsDefault() bool {
	return s.Index == nil && s.ID == ""
}

// Select returns the chosen conversation and its index. By default it is the
// one with the greatest update_time (create_time when absent); ties go to the
// later conversation in the export.
func Select(export *Export, sel Selection) (*Conversation, int, error) {
	if export == nil || len(export.Conversations) == 0 {
		return nil, -1, ErrNoConversations
	}
	convs := export.Conversations

	switch {
	case sel.Index != nil:
		i := *sel.Index
		if i < 0 || i >= len(convs) {
			return nil, -1, fmt.Errorf("%w: %d (export has %d)", ErrSelectionOutOfRange, i, len(convs))
		}
		return convs[i], i, nil

	case sel.ID != "":
		for i, c := range convs {
			if c.ID == sel.ID || c.ConversationID == sel.ID {
				return c, i, nil
			}
		}
		return nil, -1, fmt.Errorf("%w: %q", ErrConversationNotFound, sel.ID)
	}

	best := 0
	for i := 1; i < len(convs); i++ {
		if convs[i].LastUpdated() >= convs[best].LastUpdated() {
			best = i
		}
	}
	return convs[best], best, nil
}

// NodesFor returns the node sequence to linearize for the selected branch mode.
// For BranchCurrent it is the path to current_node; if that id is missing or
// does not resolve, the whole tree is used and a warning is added.
func (t *Tree) NodesFor(c *Conversation, branch string) []*Node {
	if branch != BranchCurrent {
		return t.Nodes()
	}
	if c.CurrentNode != "" {
		if path, ok := t.PathTo(c.CurrentNode); ok {
			return path
		}
	}
	t.warn(WarnUnknownCurrentNode, c.CurrentNode, "")
	return t.Nodes()
}
