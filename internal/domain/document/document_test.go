package document

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/cdcr/internal/domain"
)

func TestNew_Valid(t *testing.T) {
	meta := Metadata{Author: "Smith", Title: "Report", Keywords: []string{"politics"}}

	doc, err := New("a.pdf", []string{"page one", "page two"}, meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Filename() != "a.pdf" {
		t.Errorf("Filename() = %q", doc.Filename())
	}
	if len(doc.Segments()) != 2 {
		t.Errorf("Segments() = %v", doc.Segments())
	}
	if doc.Metadata().Author != "Smith" {
		t.Errorf("Metadata() = %+v", doc.Metadata())
	}
	if doc.Text() != "page one\n\npage two" {
		t.Errorf("Text() = %q", doc.Text())
	}
}

func TestNew_ClonesInputs(t *testing.T) {
	segments := []string{"text"}
	keywords := []string{"k"}

	doc, _ := New("a.txt", segments, Metadata{Keywords: keywords})

	segments[0] = "mutated"
	keywords[0] = "mutated"

	if doc.Segments()[0] != "text" {
		t.Error("segment mutation leaked into document")
	}
	if doc.Metadata().Keywords[0] != "k" {
		t.Error("keyword mutation leaked into document")
	}
}

func TestNew_EmptySegmentsAllowed(t *testing.T) {
	doc, err := New("empty.txt", nil, Metadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Text() != "" {
		t.Errorf("Text() = %q, want empty", doc.Text())
	}
}

func TestNew_InvalidFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"slash", "dir/a.pdf"},
		{"backslash", `dir\a.pdf`},
		{"dot", "."},
		{"dotdot", ".."},
		{"too long", strings.Repeat("a", MaxFilenameLength+1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.filename, nil, Metadata{})
			var ve *domain.ValidationError
			if !errors.As(err, &ve) || ve.Field != "filename" {
				t.Fatalf("expected filename validation error for %q, got %v", tc.filename, err)
			}
		})
	}
}

func TestNew_TextTooLarge(t *testing.T) {
	big := strings.Repeat("x", MaxTextSize/2+1)
	if _, err := New("big.txt", []string{big, big}, Metadata{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for oversized text, got %v", err)
	}
}

func TestParseKeywords(t *testing.T) {
	got := ParseKeywords(" politics, elections ;; ,usa ")
	want := []string{"politics", "elections", "usa"}
	if len(got) != len(want) {
		t.Fatalf("ParseKeywords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if len(ParseKeywords("")) != 0 {
		t.Error("expected no keywords for empty input")
	}
}
