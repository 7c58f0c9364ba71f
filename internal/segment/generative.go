package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/classpulse/clo-analysis/internal/ai"
	"github.com/classpulse/clo-analysis/internal/fault"
)

const defaultTimeout = 60 * time.Second

const segmentSystemPrompt = `You split exam documents into individual questions.
Respond with JSON only, no prose, in the form:
{"questions": [{"number": 1, "text": "..."}, {"number": 2, "text": "..."}]}
Number the questions sequentially in document order. Do not invent questions
that are not in the document.`

// responseSchema is enforced before any entry is trusted.
const responseSchema = `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["number", "text"],
				"properties": {
					"number": {"type": "integer"},
					"text": {"type": "string"}
				}
			}
		}
	}
}`

// GenerativeSegmenter segments text via a generative text service.
type GenerativeSegmenter struct {
	completer ai.Completer
	timeout   time.Duration
	model     string
}

// GenerativeOption configures a GenerativeSegmenter.
type GenerativeOption func(*GenerativeSegmenter)

// WithTimeout bounds each service call.
func WithTimeout(d time.Duration) GenerativeOption {
	return func(g *GenerativeSegmenter) {
		g.timeout = d
	}
}

// WithModel pins the model used for segmentation.
func WithModel(model string) GenerativeOption {
	return func(g *GenerativeSegmenter) {
		g.model = model
	}
}

// NewGenerative creates a segmenter backed by the given completer.
func NewGenerative(completer ai.Completer, opts ...GenerativeOption) *GenerativeSegmenter {
	g := &GenerativeSegmenter{
		completer: completer,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Segment asks the service to split text into questions and sanitizes the
// structured response. Entries with empty text are dropped; output numbering
// is sequential regardless of the numbers the service returned.
func (g *GenerativeSegmenter) Segment(ctx context.Context, text string) ([]Question, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: segmentSystemPrompt},
			{Role: "user", Content: text},
		},
		Model: g.model,
		Task:  ai.TaskSegmentation,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.GenerativeTimeout, err, "segmentation call exceeded %s", g.timeout)
		}
		return nil, fmt.Errorf("segmentation completion: %w", err)
	}

	return parseSegmentResponse(resp.Content)
}

func parseSegmentResponse(content string) ([]Question, error) {
	raw := StripCodeFence(content)

	check, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(responseSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fault.Wrap(fault.MalformedResponse, err, "segmentation response is not valid JSON")
	}
	if !check.Valid() {
		return nil, fault.New(fault.MalformedResponse, "segmentation response does not match the expected schema: %v", check.Errors())
	}

	var parsed struct {
		Questions []struct {
			Number int    `json:"number"`
			Text   string `json:"text"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fault.Wrap(fault.MalformedResponse, err, "segmentation response")
	}

	questions := make([]Question, 0, len(parsed.Questions))
	for _, q := range parsed.Questions {
		text := strings.TrimSpace(q.Text)
		if text == "" {
			slog.Warn("dropping empty question from segmentation response", "number", q.Number)
			continue
		}
		questions = append(questions, Question{Number: len(questions) + 1, Text: text})
	}
	return questions, nil
}

// StripCodeFence removes a surrounding markdown code fence, which models
// add despite instructions to return bare JSON.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
