package chi

import (
	"fmt"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
	"github.com/kailas-cloud/cdcr/internal/domain/mention"
	"github.com/kailas-cloud/cdcr/internal/transport/api"
	batchuc "github.com/kailas-cloud/cdcr/internal/usecase/batch"
)

func documentsFromAPI(in []api.DocumentInput) ([]batchuc.DocumentInput, error) {
	out := make([]batchuc.DocumentInput, len(in))
	for i, d := range in {
		if d.Segments != nil && d.Text != nil {
			return nil, domain.NewValidation(fmt.Sprintf("documents[%d]", i), "segments and text are mutually exclusive")
		}

		var segments []string
		switch {
		case d.Segments != nil:
			segments = *d.Segments
		case d.Text != nil:
			segments = []string{*d.Text}
		}

		out[i] = batchuc.DocumentInput{
			Filename: d.Filename,
			Segments: segments,
			Metadata: metadataFromAPI(d.Metadata),
		}
		if d.Mentions != nil {
			out[i].Mentions = mentionsFromAPI(*d.Mentions)
		}
	}
	return out, nil
}

func metadataFromAPI(m *api.Metadata) document.Metadata {
	if m == nil {
		return document.Metadata{}
	}
	return document.Metadata{
		Author:   derefString(m.Author),
		Title:    derefString(m.Title),
		Keywords: []string(m.Keywords),
	}
}

// mentionsFromAPI always returns a non-nil slice so supplied empty lists skip detection.
func mentionsFromAPI(in []api.MentionInput) []mention.Input {
	out := make([]mention.Input, len(in))
	for i, m := range in {
		out[i] = mention.Input{Text: m.Text, Label: derefString(m.Label)}
		if m.Segment != nil {
			out[i].Segment = *m.Segment
		}
		if m.Vector != nil {
			out[i].Vector = *m.Vector
		}
	}
	return out
}
