package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"annopipe/internal/logging"
)

// GenAIModel is a NERModel backed by a cloud LLM structured-extraction
// call, mirroring the reference client's multi-provider pattern: one
// concrete provider alongside local regex/gazetteer models in the same
// registry.
type GenAIModel struct {
	name   string
	client *genai.Client
	model  string
}

// NewGenAIModel constructs a GenAIModel bound to an already-configured
// genai.Client and model name (e.g. "gemini-2.0-flash").
func NewGenAIModel(name string, client *genai.Client, model string) *GenAIModel {
	return &GenAIModel{name: name, client: client, model: model}
}

func (m *GenAIModel) Name() string { return m.name }

type genaiEntity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Extract asks the model to return a JSON array of entities for the
// given domain, then parses and span-validates the response.
func (m *GenAIModel) Extract(ctx context.Context, text string, domain string) ([]Span, error) {
	prompt := fmt.Sprintf(
		"Extract named entities relevant to the %q domain from the text below. "+
			"Return ONLY a JSON array of objects with fields: text, type, start, end, confidence (0-1). "+
			"start/end are character offsets into the original text.\n\nTEXT:\n%s",
		domain, text,
	)

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("genai extraction failed: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var parsed []genaiEntity
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logging.NERWarn("genai model %s returned unparseable output: %v", m.name, err)
		return nil, fmt.Errorf("parsing genai response: %w", err)
	}

	spans := make([]Span, 0, len(parsed))
	for _, e := range parsed {
		if e.Start < 0 || e.End <= e.Start || e.End > len(text) {
			continue
		}
		spans = append(spans, Span{
			Text:       e.Text,
			Type:       e.Type,
			Start:      e.Start,
			End:        e.End,
			Confidence: e.Confidence,
		})
	}
	return spans, nil
}
