package insights

import (
	"context"

	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

// Preview is the payload an analysis would send, without the model call.
type Preview struct {
	Payload           string               `json:"payload"`
	Member            string               `json:"member,omitempty"`
	ConversationTitle string               `json:"conversation_title,omitempty"`
	ConversationID    string               `json:"conversation_id,omitempty"`
	ConversationIndex int                  `json:"conversation_index"`
	ConversationCount int                  `json:"conversation_count"`
	Truncated         bool                 `json:"truncated"`
	PayloadChars      int                  `json:"payload_chars"`
	Lines             int                  `json:"lines"`
	SkippedLines      int                  `json:"skipped_lines"`
	Warnings          []transcript.Warning `json:"warnings,omitempty"`
}

// Preview runs the same archive, tree and linearization steps as Analyze on
// local bytes. It touches neither the store nor the requester.
func (s *Service) Preview(ctx context.Context, data []byte, sel transcript.Selection) (*Preview, error) {
	p, err := s.prepare(ctx, data, sel)
	if err != nil {
		return nil, err
	}
	return &Preview{
		Payload:           p.payload.Text,
		Member:            p.member,
		ConversationTitle: p.title,
		ConversationID:    p.conversationID,
		ConversationIndex: p.index,
		ConversationCount: p.count,
		Truncated:         p.payload.Truncated,
		PayloadChars:      p.payload.Chars(),
		Lines:             p.payload.Lines,
		SkippedLines:      p.payload.Skipped,
		Warnings:          p.warnings,
	}, nil
}
