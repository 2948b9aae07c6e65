package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedExport indicates the bytes are not a recognizable export.
	ErrMalformedExport = errors.New("malformed export")

	// ErrNoConversations indicates a well-formed export with nothing in it.
	ErrNoConversations = errors.New("export contains no conversations")
)

// ParseExport decodes an export. Three shapes are accepted: a top-level array
// of conversations, an object with a "conversations" array, or a single
// conversation object carrying a "mapping".
func ParseExport(data []byte) (*Export, error) {
	trimmed := bytes.TrimSpace(data)
	// Some tools prepend a UTF-8 BOM
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedExport)
	}

	var convs []*Conversation
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &convs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
		}
	case '{':
		var p topLevel
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
		}
		switch {
		case p.Conversations != nil:
			var env exportEnvelope
			if err := json.Unmarshal(trimmed, &env); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
			}
			convs = env.Conversations
		case p.Mapping != nil:
			var c Conversation
			if err := json.Unmarshal(trimmed, &c); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedExport, err)
			}
			convs = []*Conversation{&c}
		default:
			return nil, fmt.Errorf("%w: object has neither \"conversations\" nor \"mapping\"", ErrMalformedExport)
		}
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrMalformedExport)
	}

	// Drop JSON nulls inside the array
	out := convs[:0]
	for _, c := range convs {
		if c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoConversations
	}
	return &Export{Conversations: out}, nil
}
