package extract

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/config"
	"github.com/vitalsight/harvest-cli/internal/resilience"
	"github.com/vitalsight/harvest-cli/pkg/anthropic"
)

const semanticSystemPrompt = `You extract product facts from Taiwanese supplement e-commerce pages.
Given page text, respond with ONLY a JSON object:
{"title": string, "price": integer TWD or 0, "count": integer units per package or 0, "highlights": [strings, max 5]}
Use 0 or empty values for anything not present. No prose, no markdown.`

// maxSemanticChars bounds how much page text goes into the prompt.
const maxSemanticChars = 12000

// SemanticFields is the model's answer for one page.
type SemanticFields struct {
	Title      string   `json:"title"`
	Price      int      `json:"price"`
	Count      int      `json:"count"`
	Highlights []string `json:"highlights"`
}

// SemanticExtractor is the last-resort field extractor. It only runs when
// the deterministic waterfall left price at zero, and it sits behind a
// circuit breaker so a degraded model endpoint cannot stall the worker
// pool.
type SemanticExtractor struct {
	client  anthropic.Client
	breaker *resilience.CircuitBreaker
	cfg     config.AnthropicConfig
}

// NewSemanticExtractor wires the client behind a breaker. Only transient
// failures trip it; a model answering "no price on this page" is a valid
// answer, not an outage.
func NewSemanticExtractor(client anthropic.Client, cfg config.AnthropicConfig) *SemanticExtractor {
	bcfg := resilience.FromCircuitConfig(cfg.CircuitFailureThreshold, cfg.CircuitResetSecs)
	bcfg.ShouldTrip = resilience.IsTransient
	bcfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("semantic extractor circuit state change",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &SemanticExtractor{
		client:  client,
		breaker: resilience.NewCircuitBreaker(bcfg),
		cfg:     cfg,
	}
}

// Extract asks the model for the fields the waterfall missed.
func (s *SemanticExtractor) Extract(ctx context.Context, url, pageText string) (*SemanticFields, error) {
	pageText = truncateRunes(pageText, maxSemanticChars)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SemanticTimeout())
	defer cancel()

	resp, err := resilience.ExecuteVal(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.cfg.Model,
			MaxTokens: int64(s.cfg.MaxTokens),
			System:    semanticSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: "URL: " + url + "\n\nPage text:\n" + pageText},
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: semantic call")
	}

	resp.Usage.LogCost(s.cfg.Model, "semantic_extract")

	fields, err := parseSemanticResponse(resp.Text())
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// parseSemanticResponse decodes the model's JSON answer, tolerating
// markdown code fences around it.
func parseSemanticResponse(text string) (*SemanticFields, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// Some responses come back as a one-element array.
	if strings.HasPrefix(cleaned, "[") {
		var list []SemanticFields
		if err := json.Unmarshal([]byte(cleaned), &list); err != nil {
			return nil, eris.Wrap(err, "extract: parse semantic response")
		}
		if len(list) == 0 {
			return nil, eris.New("extract: empty semantic response array")
		}
		return &list[0], nil
	}

	var fields SemanticFields
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, eris.Wrap(err, "extract: parse semantic response")
	}
	return &fields, nil
}

// truncateRunes cuts s to at most max bytes without splitting a UTF-8
// sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
