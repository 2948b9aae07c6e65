package transcript

import "testing"

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		content map[string]any
		want    string
	}{
		{
			name:    "single text part",
			content: map[string]any{"content_type": "text", "parts": []any{"Hello"}},
			want:    "Hello",
		},
		{
			name:    "parts joined with spaces",
			content: map[string]any{"content_type": "text", "parts": []any{"first", "second"}},
			want:    "first second",
		},
		{
			name:    "internal whitespace collapses",
			content: map[string]any{"content_type": "text", "parts": []any{"line one\n\n  line\ttwo"}},
			want:    "line one line two",
		},
		{
			name:    "empty parts render nothing",
			content: map[string]any{"content_type": "text", "parts": []any{""}},
			want:    "",
		},
		{
			name: "image part becomes placeholder",
			content: map[string]any{"content_type": "multimodal_text", "parts": []any{
				map[string]any{"content_type": "image_asset_pointer", "asset_pointer": "file-service://abc"},
				"what is this?",
			}},
			want: "[image_asset_pointer] what is this?",
		},
		{
			name: "map part with text",
			content: map[string]any{"content_type": "multimodal_text", "parts": []any{
				map[string]any{"content_type": "audio_transcription", "text": "spoken words"},
			}},
			want: "spoken words",
		},
		{
			name:    "code content uses text field",
			content: map[string]any{"content_type": "code", "language": "python", "text": "print('hi')"},
			want:    "print('hi')",
		},
		{
			name:    "execution output uses text field",
			content: map[string]any{"content_type": "execution_output", "text": "42"},
			want:    "42",
		},
		{
			name:    "tether quote uses text field",
			content: map[string]any{"content_type": "tether_quote", "url": "https://example.com", "text": "quoted"},
			want:    "quoted",
		},
		{
			name:    "browse result uses result field",
			content: map[string]any{"content_type": "tether_browsing_display", "result": "search results"},
			want:    "search results",
		},
		{
			name: "thoughts",
			content: map[string]any{"content_type": "thoughts", "thoughts": []any{
				map[string]any{"summary": "Planning", "content": "step one"},
				map[string]any{"summary": "Only a summary"},
			}},
			want: "step one Only a summary",
		},
		{
			name: "user editable context",
			content: map[string]any{
				"content_type":      "user_editable_context",
				"user_profile":      "I write Go.",
				"user_instructions": "Be brief.",
			},
			want: "I write Go. Be brief.",
		},
		{
			name:    "unknown payload becomes placeholder",
			content: map[string]any{"content_type": "system_error", "name": "Oops", "details": map[string]any{"x": 1.0}},
			want:    "[non-text content: system_error]",
		},
		{
			name:    "missing content type with payload",
			content: map[string]any{"blob": []any{1.0, 2.0}},
			want:    "[non-text content: unknown]",
		},
		{
			name:    "only a content type",
			content: map[string]any{"content_type": "text"},
			want:    "",
		},
		{
			name:    "nil content",
			content: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(&Message{Content: tt.content})
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NilMessage(t *testing.T) {
	if got := Render(nil); got != "" {
		t.Errorf("Render(nil) = %q, want empty", got)
	}
}

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"user message", msg("a", "", "user", "Hello"), "user: Hello"},
		{"assistant message", msg("b", "", "assistant", "Hi there"), "assistant: Hi there"},
		{"gap node", gap("root", ""), ""},
		{"empty message", msg("c", "", "user", "   "), ""},
		{"missing role", msg("d", "", "", "text"), "unknown: text"},
		{"nil node", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(tt.node); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}
