// Package heuristic detects named-entity mentions without a model: runs of capitalized
// words, optionally joined by short lowercase connectors ("Bank of America").
package heuristic

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
)

// Labels assigned to detected spans.
const (
	LabelEntity  = "ENTITY"
	LabelAcronym = "ACRONYM"
)

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.\-][\p{L}\p{N}]+)*`)

// connectors may appear inside a span when surrounded by capitalized words.
var connectors = map[string]bool{
	"of": true, "de": true, "du": true, "la": true, "van": true, "von": true, "der": true, "al": true,
}

// sentence-initial words that are capitalized only because they open a sentence.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "after": true, "also": true,
	"before": true, "but": true, "by": true, "for": true, "from": true, "he": true, "her": true,
	"here": true, "his": true, "how": true, "however": true, "i": true, "if": true, "in": true,
	"it": true, "its": true, "on": true, "or": true, "our": true, "she": true, "so": true,
	"that": true, "the": true, "their": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "to": true, "today": true, "we": true,
	"what": true, "when": true, "while": true, "who": true, "why": true, "with": true,
	"yesterday": true, "you": true,
}

// Detector finds capitalized spans segment by segment in document order.
type Detector struct {
	maxPerDocument int
}

// New creates a heuristic detector. maxPerDocument <= 0 means unlimited.
func New(maxPerDocument int) *Detector {
	return &Detector{maxPerDocument: maxPerDocument}
}

// Name identifies the detector in metrics and logs.
func (d *Detector) Name() string { return "heuristic" }

// Detect returns the mentions of doc in position order.
func (d *Detector) Detect(ctx context.Context, doc document.Document) ([]mention.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []mention.Input
	for seg, text := range doc.Segments() {
		for _, span := range Spans(text) {
			if d.maxPerDocument > 0 && len(out) >= d.maxPerDocument {
				return out, nil
			}
			out = append(out, mention.Input{Text: span, Label: label(span), Segment: seg})
		}
	}
	return out, nil
}

type token struct {
	text          string
	start, end    int
	sentenceStart bool
	// joined is true when only horizontal whitespace separates the token from the previous one.
	joined bool
}

func tokenize(s string) []token {
	locs := tokenRe.FindAllStringIndex(s, -1)
	out := make([]token, 0, len(locs))
	prevEnd := 0
	for i, loc := range locs {
		gap := s[prevEnd:loc[0]]
		out = append(out, token{
			text:          s[loc[0]:loc[1]],
			start:         loc[0],
			end:           loc[1],
			sentenceStart: i == 0 || strings.ContainsAny(gap, ".!?\n"),
			joined:        i > 0 && strings.TrimLeft(gap, " \t") == "",
		})
		prevEnd = loc[1]
	}
	return out
}

// Spans extracts candidate entity spans from text, left to right.
func Spans(text string) []string {
	toks := tokenize(text)

	var out []string
	for i := 0; i < len(toks); {
		t := toks[i]
		if !capitalized(t.text) || (t.sentenceStart && stopwords[strings.ToLower(t.text)]) {
			i++
			continue
		}

		end := i
		for j := i + 1; j < len(toks) && toks[j].joined; {
			if capitalized(toks[j].text) {
				end = j
				j++
				continue
			}
			if connectors[toks[j].text] && j+1 < len(toks) && toks[j+1].joined && capitalized(toks[j+1].text) {
				end = j + 1
				j += 2
				continue
			}
			break
		}

		span := trimPossessive(text[t.start:toks[end].end])
		if utf8.RuneCountInString(span) >= 2 {
			out = append(out, span)
		}
		i = end + 1
	}
	return out
}

func capitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func trimPossessive(s string) string {
	for _, suffix := range []string{"'s", "’s"} {
		if strings.HasSuffix(s, suffix) {
			return s[:len(s)-len(suffix)]
		}
	}
	return s
}

func label(span string) string {
	if strings.ContainsRune(span, ' ') {
		return LabelEntity
	}
	for _, r := range span {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return LabelEntity
		}
	}
	return LabelAcronym
}
