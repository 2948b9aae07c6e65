package transcript

import (
	"encoding/json"
	"errors"
	"testing"
)

const sampleConversation = `{
  "title": "Greeting",
  "create_time": 1700000000.0,
  "update_time": 1700000100.5,
  "current_node": "b",
  "conversation_id": "conv-1",
  "mapping": {
    "root": {"id": "root", "message": null, "parent": null, "children": ["a"]},
    "a": {
      "id": "a",
      "message": {
        "id": "a",
        "author": {"role": "user", "name": null, "metadata": {}},
        "create_time": 1700000001.0,
        "content": {"content_type": "text", "parts": ["Hello"]},
        "status": "finished_successfully",
        "weight": 1.0,
        "metadata": {},
        "recipient": "all"
      },
      "parent": "root",
      "children": ["b"]
    },
    "b": {
      "id": "b",
      "message": {
        "id": "b",
        "author": {"role": "assistant", "name": null, "metadata": {}},
        "create_time": 1700000002.0,
        "content": {"content_type": "text", "parts": ["Hi there"]},
        "status": "finished_successfully",
        "end_turn": true,
        "weight": 1,
        "metadata": {},
        "recipient": "all"
      },
      "parent": "a",
      "children": []
    }
  }
}`

func TestParseExport_Shapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{"array", "[" + sampleConversation + "]", 1},
		{"envelope", `{"conversations": [` + sampleConversation + `,` + sampleConversation + `]}`, 2},
		{"single conversation", sampleConversation, 1},
		{"byte order mark", "\xef\xbb\xbf[" + sampleConversation + "]", 1},
		{"null entries dropped", "[null, " + sampleConversation + "]", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			export, err := ParseExport([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseExport failed: %v", err)
			}
			if len(export.Conversations) != tt.count {
				t.Errorf("got %d conversations, want %d", len(export.Conversations), tt.count)
			}
		})
	}
}

func TestParseExport_Fields(t *testing.T) {
	export, err := ParseExport([]byte("[" + sampleConversation + "]"))
	if err != nil {
		t.Fatalf("ParseExport failed: %v", err)
	}
	c := export.Conversations[0]

	if c.Title != "Greeting" {
		t.Errorf("Title = %q, want Greeting", c.Title)
	}
	if c.Identifier() != "conv-1" {
		t.Errorf("Identifier() = %q, want conv-1", c.Identifier())
	}
	if c.LastUpdated() != 1700000100.5 {
		t.Errorf("LastUpdated() = %v, want 1700000100.5", c.LastUpdated())
	}
	if len(c.Mapping) != 3 {
		t.Fatalf("got %d mapping entries, want 3", len(c.Mapping))
	}
	if !c.Mapping["root"].IsGap() {
		t.Error("expected root to be a gap node")
	}
	a := c.Mapping["a"]
	if a.ParentID() != "root" {
		t.Errorf("a.ParentID() = %q, want root", a.ParentID())
	}
	if a.Message.Weight != 1 {
		t.Errorf("weight = %v, want 1", a.Message.Weight)
	}
	b := c.Mapping["b"]
	if b.Message.EndTurn == nil || !*b.Message.EndTurn {
		t.Error("expected end_turn = true on b")
	}
}

func TestParseExport_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrMalformedExport},
		{"whitespace", "  \n ", ErrMalformedExport},
		{"not json", "hello world", ErrMalformedExport},
		{"truncated json", `[{"title": "x", "mapping": {`, ErrMalformedExport},
		{"scalar", `42`, ErrMalformedExport},
		{"unrelated object", `{"foo": "bar"}`, ErrMalformedExport},
		{"wrong field type", `[{"title": 5, "mapping": {}}]`, ErrMalformedExport},
		{"empty array", `[]`, ErrNoConversations},
		{"empty envelope", `{"conversations": []}`, ErrNoConversations},
		{"only nulls", `[null]`, ErrNoConversations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExport([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseExport_BuildsAndLinearizes(t *testing.T) {
	export, err := ParseExport([]byte(sampleConversation))
	if err != nil {
		t.Fatalf("ParseExport failed: %v", err)
	}
	tree, err := Build(export.Conversations[0].Mapping)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	p := Linearize(tree.Nodes(), DefaultMaxChars)
	want := "user: Hello\nassistant: Hi there"
	if p.Text != want {
		t.Errorf("Text = %q, want %q", p.Text, want)
	}
}

func TestWeight_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in   string
		want Weight
	}{
		{`1.0`, 1},
		{`0.0`, 0},
		{`1`, 1},
		{`2`, 2},
		{`null`, 0},
	}
	for _, tt := range tests {
		var m Message
		if err := json.Unmarshal([]byte(`{"id":"m","weight":`+tt.in+`}`), &m); err != nil {
			t.Errorf("weight %s: %v", tt.in, err)
			continue
		}
		if m.Weight != tt.want {
			t.Errorf("weight %s = %d, want %d", tt.in, m.Weight, tt.want)
		}
	}

	var m Message
	if err := json.Unmarshal([]byte(`{"id":"m","weight":"heavy"}`), &m); err == nil {
		t.Error("string weight should fail")
	}
}
