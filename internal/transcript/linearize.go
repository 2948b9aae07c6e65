package transcript

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default character budget for a linearized payload,
// roughly 100k tokens at four characters per token.
const DefaultMaxChars = 400000

// Payload is a linearized conversation ready for the analysis request.
type Payload struct {
	Text      string
	Truncated bool
	Lines     int // Rendered message lines included in Text
	Skipped   int // Message lines left out because of the budget
}

// Chars returns the payload length in characters.
func (p Payload) Chars() int {
	return utf8.RuneCountInString(p.Text)
}

// Line renders one node as "<role>: <content>". Gap nodes and messages with
// no renderable content return "".
func Line(n *Node) string {
	if n == nil || n.IsGap() {
		return ""
	}
	text := Render(n.Message)
	if text == "" {
		return ""
	}
	return orDefault(n.Message.Author.Role, "unknown") + ": " + text
}

// Linearize renders nodes in order, one line per message, and stops before
// the payload would exceed maxChars characters (newline separators count).
// When it stops early Truncated is set. The result never exceeds maxChars;
// a first line that alone is over budget is cut to fit rather than dropped.
// maxChars <= 0 means no limit.
func Linearize(nodes []*Node, maxChars int) Payload {
	var (
		sb    strings.Builder
		p     Payload
		used  int
		lines []string
	)
	for _, n := range nodes {
		if line := Line(n); line != "" {
			lines = append(lines, line)
		}
	}

	for i, line := range lines {
		cost := utf8.RuneCountInString(line)
		if i > 0 {
			cost++ // newline separator
		}
		if maxChars > 0 && used+cost > maxChars {
			kept := i
			if p.Lines == 0 {
				sb.WriteString(truncateRunes(line, maxChars))
				p.Lines = 1
				kept = 1
			}
			p.Truncated = true
			p.Skipped = len(lines) - kept
			break
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		used += cost
		p.Lines++
	}

	p.Text = sb.String()
	return p
}

// LinearizeText bounds an already-flat text document (a plain-text transcript)
// to maxChars, cutting at the last line break that fits when there is one.
func LinearizeText(text string, maxChars int) Payload {
	text = strings.TrimSpace(text)
	lineCount := func(s string) int {
		if s == "" {
			return 0
		}
		return strings.Count(s, "\n") + 1
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return Payload{Text: text, Lines: lineCount(text)}
	}
	cut := truncateRunes(text, maxChars)
	if idx := strings.LastIndexByte(cut, '\n'); idx > 0 {
		cut = cut[:idx]
	}
	kept := lineCount(cut)
	return Payload{Text: cut, Truncated: true, Lines: kept, Skipped: lineCount(text) - kept}
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
