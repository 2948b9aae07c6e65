package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zip"
)

// Turn is one message of a fixture conversation.
type Turn struct {
	Role string
	Text string
}

// ChainConversation returns a conversation object whose mapping is a message-less
// root followed by turns chained parent to child, as real exports look.
func ChainConversation(id, title string, updateTime float64, turns ...Turn) map[string]any {
	mapping := map[string]any{}
	prev := id + "-root"
	mapping[prev] = map[string]any{"id": prev, "message": nil, "parent": nil, "children": []string{}}

	for i, turn := range turns {
		nodeID := fmt.Sprintf("%s-m%d", id, i+1)
		mapping[nodeID] = map[string]any{
			"id": nodeID,
			"message": map[string]any{
				"id":          nodeID,
				"author":      map[string]any{"role": turn.Role},
				"create_time": updateTime - float64(len(turns)-i),
				"content":     map[string]any{"content_type": "text", "parts": []string{turn.Text}},
				"status":      "finished_successfully",
				"weight":      1.0,
			},
			"parent":   prev,
			"children": []string{},
		}
		parent := mapping[prev].(map[string]any)
		parent["children"] = []string{nodeID}
		prev = nodeID
	}

	return map[string]any{
		"id":           id,
		"title":        title,
		"create_time":  updateTime - 100,
		"update_time":  updateTime,
		"current_node": prev,
		"mapping":      mapping,
	}
}

// ExportJSON marshals conversations as a top-level array.
func ExportJSON(t *testing.T, conversations ...map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(conversations)
	if err != nil {
		t.Fatalf("failed to marshal export: %v", err)
	}
	return data
}

// ZipEntry is a named archive member.
type ZipEntry struct {
	Name string
	Data []byte
}

// BuildZip writes entries, in order, to an in-memory ZIP archive.
func BuildZip(t *testing.T, entries ...ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("failed to create zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}
