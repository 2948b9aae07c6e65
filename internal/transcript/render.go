package transcript

import (
	"fmt"
	"strings"
)

// Content types whose payload lives outside "parts".
var textFields = []string{"text", "result", "content", "summary"}

// Render flattens a message's structured content into a single line of plain
// text. Sub-parts are joined with single spaces and runs of whitespace
// collapse. Parts that carry no text become a bracketed placeholder naming
// their kind, so an image or attachment still shows up in the transcript.
func Render(msg *Message) string {
	if msg == nil || len(msg.Content) == 0 {
		return ""
	}
	contentType, _ := msg.Content["content_type"].(string)

	var pieces []string
	if parts, ok := msg.Content["parts"].([]any); ok {
		for _, part := range parts {
			if s := renderPart(part); s != "" {
				pieces = append(pieces, s)
			}
		}
	} else {
		pieces = renderFields(msg.Content, contentType)
	}

	if len(pieces) == 0 {
		if hasPayload(msg.Content) {
			return placeholder("non-text content: " + orDefault(contentType, "unknown"))
		}
		return ""
	}
	return collapse(strings.Join(pieces, " "))
}

func renderPart(part any) string {
	switch p := part.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(p)
	case map[string]any:
		if text, ok := p["text"].(string); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		kind, _ := p["content_type"].(string)
		return placeholder(orDefault(kind, "attachment"))
	case []any:
		var nested []string
		for _, item := range p {
			if s := renderPart(item); s != "" {
				nested = append(nested, s)
			}
		}
		return strings.Join(nested, " ")
	default:
		return fmt.Sprint(p)
	}
}

func renderFields(content map[string]any, contentType string) []string {
	switch contentType {
	case "thoughts":
		var out []string
		if thoughts, ok := content["thoughts"].([]any); ok {
			for _, th := range thoughts {
				m, ok := th.(map[string]any)
				if !ok {
					continue
				}
				if s, ok := m["content"].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				} else if s, ok := m["summary"].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
				}
			}
		}
		return out
	case "user_editable_context":
		var out []string
		for _, field := range []string{"user_profile", "user_instructions"} {
			if s, ok := content[field].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}

	for _, field := range textFields {
		if s, ok := content[field].(string); ok && strings.TrimSpace(s) != "" {
			return []string{strings.TrimSpace(s)}
		}
	}
	return nil
}

// hasPayload reports whether content carries anything beyond its type tag.
func hasPayload(content map[string]any) bool {
	for k, v := range content {
		if k == "content_type" {
			continue
		}
		switch v := v.(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return true
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) == "" {
					continue
				}
				return true
			}
		default:
			return true
		}
	}
	return false
}

func placeholder(kind string) string {
	return "[" + kind + "]"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
