package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
)

const detectPrompt = `You are a named entity recognizer. The user message is a JSON array of text segments.
Return a JSON object {"mentions":[{"text":"...","label":"...","segment":0}]} listing every
named entity mention (people, organizations, locations, events, works, products).
"text" must be copied verbatim from the segment, "segment" is the zero-based index of the
segment and "label" is one of PERSON, ORG, LOC, EVENT, WORK, PRODUCT, MISC.
List mentions in the order they appear. Return {"mentions":[]} when there are none.`

// Detector finds entity mentions with an OpenAI-compatible chat completion model.
type Detector struct {
	client         *openai.Client
	model          string
	user           string
	maxPerDocument int
	logger         *zap.Logger
}

// NewDetector creates an LLM mention detector. maxPerDocument <= 0 means unlimited.
func NewDetector(cfg *Config, maxPerDocument int) *Detector {
	return &Detector{
		client:         newClient(cfg),
		model:          cfg.Model,
		user:           cfg.User,
		maxPerDocument: maxPerDocument,
		logger:         cfg.Logger,
	}
}

// Name identifies the detector in metrics and logs.
func (d *Detector) Name() string { return "openai" }

type detectResponse struct {
	Mentions []struct {
		Text    string `json:"text"`
		Label   string `json:"label"`
		Segment int    `json:"segment"`
	} `json:"mentions"`
}

// Detect returns the mentions of doc in document order.
// Spans that do not occur verbatim in their segment are dropped.
func (d *Detector) Detect(ctx context.Context, doc document.Document) ([]mention.Input, error) {
	segments := doc.Segments()
	payload, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("marshal segments: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: detectPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		User: d.user,
	}

	start := time.Now()
	resp, err := d.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("detect mentions in %s: %w", doc.Filename(), ctx.Err())
		}
		return nil, parseAPIError("detection", domain.ErrDetectionProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion for %s: %w", doc.Filename(), domain.ErrDetectionProviderError)
	}

	var parsed detectResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("decode completion for %s: %v: %w", doc.Filename(), err, domain.ErrDetectionProviderError)
	}

	type located struct {
		in     mention.Input
		offset int
	}
	found := make([]located, 0, len(parsed.Mentions))
	// cursor per segment so repeated mentions of the same string map to successive occurrences
	cursor := make(map[string]int)
	for _, m := range parsed.Mentions {
		text := strings.TrimSpace(m.Text)
		if text == "" || m.Segment < 0 || m.Segment >= len(segments) {
			continue
		}
		key := fmt.Sprintf("%d\x00%s", m.Segment, text)
		from := cursor[key]
		off := strings.Index(segments[m.Segment][from:], text)
		if off < 0 {
			continue
		}
		off += from
		cursor[key] = off + len(text)
		found = append(found, located{
			in:     mention.Input{Text: text, Label: strings.ToUpper(m.Label), Segment: m.Segment},
			offset: off,
		})
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].in.Segment != found[j].in.Segment {
			return found[i].in.Segment < found[j].in.Segment
		}
		return found[i].offset < found[j].offset
	})

	if d.maxPerDocument > 0 && len(found) > d.maxPerDocument {
		found = found[:d.maxPerDocument]
	}

	out := make([]mention.Input, len(found))
	for i := range found {
		out[i] = found[i].in
	}

	d.logger.Debug("Mentions detected",
		zap.String("filename", doc.Filename()),
		zap.Int("mentions", len(out)),
		zap.Int("dropped", len(parsed.Mentions)-len(found)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (d *Detector) HealthCheck(ctx context.Context) error {
	if _, err := d.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
