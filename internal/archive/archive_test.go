package archive

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

type entry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractAnalyzable(t *testing.T) {
	tests := []struct {
		name     string
		entries  []entry
		wantName string
		wantErr  error
	}{
		{
			name:     "conversations.json wins over other members",
			entries:  []entry{{"chat.html", "<html>"}, {"notes.txt", "x"}, {"conversations.json", "[]"}, {"user.json", "{}"}},
			wantName: "conversations.json",
		},
		{
			name:     "nested conversations.json",
			entries:  []entry{{"export/conversations.json", "[]"}, {"export/message_feedback.json", "[]"}},
			wantName: "export/conversations.json",
		},
		{
			name:     "shallowest conversations.json",
			entries:  []entry{{"a/b/conversations.json", "deep"}, {"a/conversations.json", "shallow"}},
			wantName: "a/conversations.json",
		},
		{
			name:     "single txt member",
			entries:  []entry{{"image.png", "\x89PNG"}, {"transcript.txt", "user: hi"}},
			wantName: "transcript.txt",
		},
		{
			name:    "json member without conversations.json",
			entries: []entry{{"export/data.json", "[]"}},
			wantErr: ErrNoAnalyzableContent,
		},
		{
			name:     "txt member beside other json",
			entries:  []entry{{"user.json", "{}"}, {"chat.TXT", "user: hi"}},
			wantName: "chat.TXT",
		},
		{
			name:     "mac metadata and dot files ignored",
			entries:  []entry{{"__MACOSX/._chat.txt", "junk"}, {".hidden.txt", "junk"}, {"chat.txt", "user: hi"}},
			wantName: "chat.txt",
		},
		{
			name:    "no analyzable member",
			entries: []entry{{"image.png", "\x89PNG"}, {"doc.pdf", "%PDF-1.4"}},
			wantErr: ErrNoAnalyzableContent,
		},
		{
			name:    "empty archive",
			entries: nil,
			wantErr: ErrNoAnalyzableContent,
		},
		{
			name:    "several candidates",
			entries: []entry{{"a.txt", "1"}, {"b/c.txt", "2"}},
			wantErr: ErrAmbiguousArchive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ExtractAnalyzable(buildZip(t, tt.entries...), 0)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractAnalyzable failed: %v", err)
			}
			if m.Name != tt.wantName {
				t.Errorf("member = %q, want %q", m.Name, tt.wantName)
			}
		})
	}
}

func TestExtractAnalyzable_ReturnsMemberBytes(t *testing.T) {
	body := `[{"title":"t","mapping":{}}]`
	m, err := ExtractAnalyzable(buildZip(t, entry{"conversations.json", body}), 0)
	if err != nil {
		t.Fatalf("ExtractAnalyzable failed: %v", err)
	}
	if string(m.Data) != body {
		t.Errorf("Data = %q, want %q", m.Data, body)
	}
	if m.IsText() {
		t.Error("conversations.json reported as text member")
	}
}

func TestExtractAnalyzable_SizeLimit(t *testing.T) {
	data := buildZip(t, entry{"chat.txt", strings.Repeat("a", 1024)})
	_, err := ExtractAnalyzable(data, 100)
	if !errors.Is(err, ErrMemberTooLarge) {
		t.Errorf("expected ErrMemberTooLarge, got %v", err)
	}
}

func TestExtractAnalyzable_NotAZip(t *testing.T) {
	_, err := ExtractAnalyzable([]byte("definitely not a zip"), 0)
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(buildZip(t, entry{"a.txt", "x"})); err != nil {
		t.Errorf("Validate(valid zip) = %v", err)
	}
	if err := Validate([]byte("PK\x03\x04garbage")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("expected ErrUnreadable, got %v", err)
	}
}

func TestMember_IsText(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"chat.txt", true},
		{"CHAT.TXT", true},
		{"conversations.json", false},
		{"notes.txt.json", false},
	}
	for _, tt := range tests {
		m := &Member{Name: tt.name}
		if got := m.IsText(); got != tt.want {
			t.Errorf("IsText(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
