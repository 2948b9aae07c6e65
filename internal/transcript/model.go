// Package transcript parses conversation exports, rebuilds their message
// trees and linearizes them into bounded text payloads.
package transcript

import (
	"encoding/json"
	"math"
)

// Author identifies who produced a message.
type Author struct {
	Role     string         `json:"role"`           // "system", "user", "assistant", "tool"
	Name     *string        `json:"name,omitempty"` // Tool or plugin name, usually null
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Weight is a message's inclusion hint. Exports write it as 1.0 or 0.0, so
// any JSON number is accepted and rounded to the nearest integer.
type Weight int

func (w *Weight) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*w = Weight(math.Round(f))
	return nil
}

// Message is the payload attached to a mapping node.
type Message struct {
	ID         string         `json:"id"`
	Author     Author         `json:"author"`
	CreateTime *float64       `json:"create_time,omitempty"`
	UpdateTime *float64       `json:"update_time,omitempty"`
	Content    map[string]any `json:"content"` // Free-form; see Render
	Status     string         `json:"status,omitempty"`
	EndTurn    *bool          `json:"end_turn,omitempty"`
	Weight     Weight         `json:"weight"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Recipient  string         `json:"recipient,omitempty"`
}

// Node is one entry of a conversation mapping. Parent and Children are
// references by id into the same mapping and may dangle.
type Node struct {
	ID       string   `json:"id"`
	Message  *Message `json:"message,omitempty"`
	Parent   *string  `json:"parent,omitempty"`
	Children []string `json:"children"`
}

// IsGap reports whether the node carries no message (e.g. the synthetic root).
func (n *Node) IsGap() bool {
	return n.Message == nil
}

// ParentID returns the parent id, or "" for root candidates.
func (n *Node) ParentID() string {
	if n.Parent == nil {
		return ""
	}
	return *n.Parent
}

// Conversation is a single exported conversation.
type Conversation struct {
	ID             string           `json:"id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	Title          string           `json:"title"`
	CreateTime     *float64         `json:"create_time,omitempty"`
	UpdateTime     *float64         `json:"update_time,omitempty"`
	CurrentNode    string           `json:"current_node,omitempty"`
	Mapping        map[string]*Node `json:"mapping"`
}

// Identifier returns the conversation id, preferring conversation_id.
func (c *Conversation) Identifier() string {
	if c.ConversationID != "" {
		return c.ConversationID
	}
	return c.ID
}

// LastUpdated returns update_time, falling back to create_time, then 0.
func (c *Conversation) LastUpdated() float64 {
	if c.UpdateTime != nil {
		return *c.UpdateTime
	}
	if c.CreateTime != nil {
		return *c.CreateTime
	}
	return 0
}

// Export is an uploaded artifact holding one or more conversations, in file order.
type Export struct {
	Conversations []*Conversation
}

// exportEnvelope is the {"conversations": [...]} request shape.
type exportEnvelope struct {
	Conversations []*Conversation `json:"conversations"`
}

// topLevel distinguishes the accepted top-level object shapes.
type topLevel struct {
	Conversations json.RawMessage `json:"conversations"`
	Mapping       json.RawMessage `json:"mapping"`
}
