package scoring

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
	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/fault"
	"github.com/classpulse/clo-analysis/internal/segment"
)

const defaultScoreTimeout = 120 * time.Second

const mappingSystemPrompt = `You map exam questions to course learning outcomes (CLOs).
For every question, identify the CLO codes it assesses, a 0-100 relevance
score per mapped CLO, and one short rationale sentence per mapping.
Respond with JSON only, no prose, in the form:
{"results": [{"question_number": 1, "mappings": [{"clo_code": "CLO-1", "score": 85, "analysis": "..."}]}]}
Use only CLO codes from the provided list. Omit CLOs a question does not assess.`

const mappingSchema = `{
	"type": "object",
	"required": ["results"],
	"properties": {
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["question_number", "mappings"],
				"properties": {
					"question_number": {"type": "integer"},
					"mappings": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["clo_code", "score"],
							"properties": {
								"clo_code": {"type": "string"},
								"score": {"type": "number"},
								"analysis": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// GenerativeScorer sends the question set and CLO descriptions to a
// generative service and defensively parses the structured judgments back.
// Invalid entries are dropped with a warning; the run only fails hard when
// nothing valid remains.
type GenerativeScorer struct {
	completer ai.Completer
	budget    ai.BudgetChecker
	timeout   time.Duration
	model     string
}

// GenerativeOption configures a GenerativeScorer.
type GenerativeOption func(*GenerativeScorer)

// WithTimeout bounds the service call.
func WithTimeout(d time.Duration) GenerativeOption {
	return func(g *GenerativeScorer) {
		g.timeout = d
	}
}

// WithModel pins the model used for mapping.
func WithModel(model string) GenerativeOption {
	return func(g *GenerativeScorer) {
		g.model = model
	}
}

// WithBudget enables per-CLO-set token accounting.
func WithBudget(b ai.BudgetChecker) GenerativeOption {
	return func(g *GenerativeScorer) {
		g.budget = b
	}
}

// NewGenerative creates a scorer backed by the given completer.
func NewGenerative(completer ai.Completer, opts ...GenerativeOption) *GenerativeScorer {
	g := &GenerativeScorer{
		completer: completer,
		timeout:   defaultScoreTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (*GenerativeScorer) Name() analysis.Strategy {
	return analysis.StrategyGenerative
}

func (g *GenerativeScorer) Score(ctx context.Context, questions []analysis.ExtractedQuestion, clos []analysis.CLO) ([]analysis.Mapping, error) {
	if len(clos) == 0 {
		return nil, fault.New(fault.NoCLOsDefined, "cannot score without CLOs")
	}
	if len(questions) == 0 {
		return nil, nil
	}

	setID := clos[0].SetID
	if g.budget != nil {
		ok, err := g.budget.Check(setID)
		if err != nil {
			return nil, fmt.Errorf("budget check: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("generative token budget exhausted for CLO set %s", setID)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: mappingSystemPrompt},
			{Role: "user", Content: buildMappingPrompt(questions, clos)},
		},
		Model: g.model,
		Task:  ai.TaskMapping,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.GenerativeTimeout, err, "mapping call exceeded %s", g.timeout)
		}
		return nil, fmt.Errorf("mapping completion: %w", err)
	}

	if g.budget != nil {
		if err := g.budget.Record(setID, resp.TotalTokens()); err != nil {
			slog.Warn("could not record token usage", "clo_set_id", setID, "error", err)
		}
	}

	return parseMappingResponse(resp.Content, questions, clos)
}

// buildMappingPrompt serializes the questions and CLO list into one prompt.
func buildMappingPrompt(questions []analysis.ExtractedQuestion, clos []analysis.CLO) string {
	var b strings.Builder
	b.WriteString("Course learning outcomes:\n")
	for _, clo := range clos {
		fmt.Fprintf(&b, "%s: %s", clo.Code, clo.Description)
		if clo.Bloom != "" {
			fmt.Fprintf(&b, " (Bloom: %s)", clo.Bloom)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nExam questions:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", q.Number, q.Text)
	}
	return b.String()
}

// parseMappingResponse validates and sanitizes the structured response,
// then pads the result into a complete mapping set: every (question, CLO)
// pair the service did not mention scores zero.
func parseMappingResponse(content string, questions []analysis.ExtractedQuestion, clos []analysis.CLO) ([]analysis.Mapping, error) {
	raw := segment.StripCodeFence(content)

	check, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(mappingSchema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fault.Wrap(fault.MalformedResponse, err, "mapping response is not valid JSON")
	}
	if !check.Valid() {
		return nil, fault.New(fault.MalformedResponse, "mapping response does not match the expected schema: %v", check.Errors())
	}

	var parsed struct {
		Results []struct {
			QuestionNumber int `json:"question_number"`
			Mappings       []struct {
				CLOCode  string  `json:"clo_code"`
				Score    float64 `json:"score"`
				Analysis string  `json:"analysis"`
			} `json:"mappings"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fault.Wrap(fault.MalformedResponse, err, "mapping response")
	}

	questionByNumber := make(map[int]analysis.ExtractedQuestion, len(questions))
	for _, q := range questions {
		questionByNumber[q.Number] = q
	}
	cloByCode := make(map[string]analysis.CLO, len(clos))
	for _, clo := range clos {
		cloByCode[clo.Code] = clo
	}

	scored := make(map[string]analysis.Mapping) // questionID+cloID -> mapping
	total, dropped := 0, 0
	for _, result := range parsed.Results {
		q, ok := questionByNumber[result.QuestionNumber]
		if !ok {
			total += len(result.Mappings)
			dropped += len(result.Mappings)
			slog.Warn("dropping mappings for unknown question number", "number", result.QuestionNumber)
			continue
		}
		for _, entry := range result.Mappings {
			total++
			clo, ok := cloByCode[entry.CLOCode]
			if !ok {
				dropped++
				slog.Warn("dropping mapping with unknown CLO code", "clo_code", entry.CLOCode, "question", q.Number)
				continue
			}
			if entry.Score < 0 || entry.Score > 100 {
				dropped++
				slog.Warn("dropping mapping with out-of-range score", "score", entry.Score, "clo_code", entry.CLOCode, "question", q.Number)
				continue
			}
			score := int(entry.Score + 0.5)
			scored[q.ID+"|"+clo.ID] = analysis.Mapping{
				QuestionID: q.ID,
				CLOID:      clo.ID,
				Score:      score,
				Bucket:     analysis.BucketFor(score),
				Analysis:   strings.TrimSpace(entry.Analysis),
			}
		}
	}
	if total > 0 && dropped == total {
		return nil, fault.New(fault.MalformedResponse, "every entry in the mapping response was invalid (%d dropped)", dropped)
	}

	mappings := make([]analysis.Mapping, 0, len(questions)*len(clos))
	for _, q := range questions {
		for _, clo := range clos {
			if m, ok := scored[q.ID+"|"+clo.ID]; ok {
				mappings = append(mappings, m)
				continue
			}
			mappings = append(mappings, analysis.Mapping{
				QuestionID: q.ID,
				CLOID:      clo.ID,
				Score:      0,
				Bucket:     analysis.BucketFor(0),
			})
		}
	}
	return mappings, nil
}
