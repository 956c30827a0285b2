package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/cdcr/internal/domain"
	"github.com/kailas-cloud/cdcr/internal/domain/document"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %q, want json_object", req.ResponseFormat.Type)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDetector(url string, maxPerDocument int) *Detector {
	return NewDetector(&Config{
		APIKey:  "test-key",
		BaseURL: url,
		Model:   "test-chat",
		Logger:  zap.NewNop(),
	}, maxPerDocument)
}

func testDocument(t *testing.T) document.Document {
	t.Helper()
	doc, err := document.New("a.txt", []string{
		"Obama met Merkel in Berlin.",
		"Obama later flew to Paris.",
	}, document.Metadata{})
	if err != nil {
		t.Fatalf("document.New: %v", err)
	}
	return doc
}

func TestDetector_OrdersByPosition(t *testing.T) {
	content := `{"mentions":[
		{"text":"Paris","label":"loc","segment":1},
		{"text":"Berlin","label":"LOC","segment":0},
		{"text":"Obama","label":"PERSON","segment":0},
		{"text":"Merkel","label":"PERSON","segment":0},
		{"text":"Obama","label":"PERSON","segment":1}
	]}`
	d := newTestDetector(chatServer(t, content).URL, 0)

	got, err := d.Detect(context.Background(), testDocument(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	want := []struct {
		text    string
		segment int
	}{{"Obama", 0}, {"Merkel", 0}, {"Berlin", 0}, {"Obama", 1}, {"Paris", 1}}
	if len(got) != len(want) {
		t.Fatalf("got %d mentions, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Text != w.text || got[i].Segment != w.segment {
			t.Errorf("mention[%d] = %q/%d, want %q/%d", i, got[i].Text, got[i].Segment, w.text, w.segment)
		}
	}
	if got[4].Label != "LOC" {
		t.Errorf("label not normalized: %q", got[4].Label)
	}
}

func TestDetector_DropsHallucinatedSpans(t *testing.T) {
	content := `{"mentions":[
		{"text":"Angela Merkel","label":"PERSON","segment":0},
		{"text":"Berlin","label":"LOC","segment":7},
		{"text":"  ","label":"MISC","segment":0},
		{"text":"Berlin","label":"LOC","segment":0}
	]}`
	d := newTestDetector(chatServer(t, content).URL, 0)

	got, err := d.Detect(context.Background(), testDocument(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 1 || got[0].Text != "Berlin" {
		t.Errorf("got %+v, want only Berlin", got)
	}
}

func TestDetector_MaxPerDocument(t *testing.T) {
	content := `{"mentions":[
		{"text":"Obama","label":"PERSON","segment":0},
		{"text":"Merkel","label":"PERSON","segment":0},
		{"text":"Berlin","label":"LOC","segment":0}
	]}`
	d := newTestDetector(chatServer(t, content).URL, 2)

	got, err := d.Detect(context.Background(), testDocument(t))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d mentions, want 2", len(got))
	}
}

func TestDetector_MalformedCompletion(t *testing.T) {
	d := newTestDetector(chatServer(t, "not json").URL, 0)

	_, err := d.Detect(context.Background(), testDocument(t))
	if !errors.Is(err, domain.ErrDetectionProviderError) {
		t.Fatalf("expected detection provider error, got %v", err)
	}
}

func TestDetector_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream unavailable"}`))
	}))
	defer srv.Close()

	_, err := newTestDetector(srv.URL, 0).Detect(context.Background(), testDocument(t))
	if !errors.Is(err, domain.ErrDetectionProviderError) {
		t.Fatalf("expected detection provider error, got %v", err)
	}
}
