package insights

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/ConfabulousDev/confab-insights/internal/archive"
	"github.com/ConfabulousDev/confab-insights/internal/logger"
	"github.com/ConfabulousDev/confab-insights/internal/transcript"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	emptyZipMagic = []byte("PK\x05\x06")
	pdfMagic      = []byte("%PDF-")
)

type format int

const (
	formatJSON format = iota
	formatZip
	formatPDF
)

// sniff classifies stored bytes. Stored objects keep their content type in
// the blob store, but the bytes are what get analyzed.
func sniff(data []byte) format {
	switch {
	case bytes.HasPrefix(data, zipMagic), bytes.HasPrefix(data, emptyZipMagic):
		return formatZip
	case bytes.HasPrefix(data, pdfMagic):
		return formatPDF
	default:
		return formatJSON
	}
}

// DetectMediaType returns the upload media type that matches stored bytes.
func DetectMediaType(data []byte) string {
	switch sniff(data) {
	case formatZip:
		return MediaTypeZip
	case formatPDF:
		return MediaTypePDF
	default:
		return MediaTypeJSON
	}
}

// prepared is a linearized conversation ready to send.
type prepared struct {
	payload        transcript.Payload
	member         string
	title          string
	conversationID string
	index          int
	count          int
	warnings       []transcript.Warning
}

func (s *Service) prepare(ctx context.Context, data []byte, sel transcript.Selection) (*prepared, error) {
	log := logger.Ctx(ctx)

	var member string
	switch sniff(data) {
	case formatPDF:
		return nil, fmt.Errorf("%w: PDF exports are stored but cannot be analyzed", ErrValidation)

	case formatZip:
		m, err := archive.ExtractAnalyzable(data, s.cfg.MaxArchiveMemberSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		member = m.Name
		log.Debug("extracted archive member",
			"member", m.Name,
			"size", humanize.Bytes(uint64(len(m.Data))))

		if m.IsText() {
			if _, err := transcript.ParseExport(m.Data); err != nil {
				if !sel.IsDefault() {
					return nil, fmt.Errorf("%w: %s is plain text and has no conversations to select", ErrValidation, m.Name)
				}
				payload := transcript.LinearizeText(string(m.Data), s.cfg.MaxPayloadChars)
				if payload.Text == "" {
					return nil, fmt.Errorf("%w: %s has no text", ErrStructural, m.Name)
				}
				return &prepared{payload: payload, member: member, count: 1}, nil
			}
		}
		data = m.Data
	}

	export, err := transcript.ParseExport(data)
	switch {
	case errors.Is(err, transcript.ErrMalformedExport):
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}

	conv, index, err := transcript.Select(export, sel)
	switch {
	case errors.Is(err, transcript.ErrSelectionOutOfRange):
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, transcript.ErrConversationNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}

	tree, err := transcript.Build(conv.Mapping)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation %d: %w", ErrStructural, index, err)
	}
	if len(tree.Fragments) == 0 {
		return nil, fmt.Errorf("%w: conversation %d has an empty mapping", ErrStructural, index)
	}

	nodes := tree.NodesFor(conv, sel.Branch)
	payload := transcript.Linearize(nodes, s.cfg.MaxPayloadChars)
	if payload.Text == "" {
		return nil, fmt.Errorf("%w: conversation %d has no renderable messages", ErrStructural, index)
	}

	if len(tree.Warnings) > 0 {
		counts := transcript.CountWarnings(tree.Warnings)
		attrs := make([]any, 0, 2*len(counts)+2)
		attrs = append(attrs, "conversation_index", index)
		for kind, n := range counts {
			attrs = append(attrs, string(kind), n)
		}
		log.Warn("recovered structural defects in conversation", attrs...)
	}
	if payload.Truncated {
		log.Info("payload truncated to budget",
			"budget", humanize.Comma(int64(s.cfg.MaxPayloadChars)),
			"lines", payload.Lines,
			"skipped_lines", payload.Skipped)
	}

	return &prepared{
		payload:        payload,
		member:         member,
		title:          conv.Title,
		conversationID: conv.Identifier(),
		index:          index,
		count:          len(export.Conversations),
		warnings:       tree.Warnings,
	}, nil
}
