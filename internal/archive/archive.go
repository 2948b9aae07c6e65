// Package archive picks the analyzable member out of an uploaded ZIP export.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	// ErrUnreadable indicates the bytes are not a readable ZIP archive.
	ErrUnreadable = errors.New("unreadable zip archive")

	// ErrNoAnalyzableContent indicates the archive holds neither a
	// conversations.json nor a .txt member.
	ErrNoAnalyzableContent = errors.New("no analyzable content found in archive")

	// ErrAmbiguousArchive indicates several candidate members and no conversations.json.
	ErrAmbiguousArchive = errors.New("archive has more than one analyzable member")

	// ErrMemberTooLarge indicates the chosen member exceeds the size limit.
	ErrMemberTooLarge = errors.New("archive member too large")
)

// PreferredMember is the export file name ChatGPT puts in its data export.
const PreferredMember = "conversations.json"

// DefaultMaxMemberSize caps decompressed member size.
const DefaultMaxMemberSize = 256 << 20

// Member is an extracted archive entry.
type Member struct {
	Name string // Path inside the archive
	Data []byte
}

// IsText reports whether the member is a .txt file.
func (m *Member) IsText() bool {
	return strings.EqualFold(path.Ext(m.Name), ".txt")
}

// Validate checks that data opens as a ZIP archive.
func Validate(data []byte) error {
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return nil
}

// ExtractAnalyzable returns the single member to analyze. A member named
// conversations.json (at any depth) wins; otherwise exactly one .txt member
// must exist. Other .json members are never analyzed. Directories, __MACOSX/ entries and dot files are ignored.
// maxSize <= 0 uses DefaultMaxMemberSize.
func ExtractAnalyzable(data []byte, maxSize int64) (*Member, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMemberSize
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var preferred, candidates []*zip.File
	for _, f := range zr.File {
		if ignored(f) {
			continue
		}
		base := path.Base(f.Name)
		if strings.EqualFold(base, PreferredMember) {
			preferred = append(preferred, f)
			continue
		}
		if strings.EqualFold(path.Ext(base), ".txt") {
			candidates = append(candidates, f)
		}
	}

	var chosen *zip.File
	switch {
	case len(preferred) > 0:
		// Shallowest conversations.json, then first in archive order
		chosen = preferred[0]
		for _, f := range preferred[1:] {
			if depth(f.Name) < depth(chosen.Name) {
				chosen = f
			}
		}
	case len(candidates) == 1:
		chosen = candidates[0]
	case len(candidates) == 0:
		return nil, ErrNoAnalyzableContent
	default:
		names := make([]string, len(candidates))
		for i, f := range candidates {
			names[i] = f.Name
		}
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousArchive, strings.Join(names, ", "))
	}

	body, err := readMember(chosen, maxSize)
	if err != nil {
		return nil, err
	}
	return &Member{Name: chosen.Name, Data: body}, nil
}

func readMember(f *zip.File, maxSize int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrMemberTooLarge, f.Name, f.UncompressedSize64, maxSize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnreadable, f.Name, err)
	}
	defer rc.Close()

	// The header size can lie; bound the actual read too.
	body, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnreadable, f.Name, err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrMemberTooLarge, f.Name, maxSize)
	}
	return body, nil
}

func ignored(f *zip.File) bool {
	if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
		return true
	}
	if strings.HasPrefix(f.Name, "__MACOSX/") {
		return true
	}
	return strings.HasPrefix(path.Base(f.Name), ".")
}

func depth(name string) int {
	return strings.Count(name, "/")
}
