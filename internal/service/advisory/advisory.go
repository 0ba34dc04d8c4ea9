// Package advisory turns the running conversation into a summary and dispatcher guidance.
package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/llm"
)

// Input is everything the oracle may look at for one batch.
type Input struct {
	Chunk       string
	Role        models.Role
	Summary     string
	Transcript  string
	Passages    []string
	PriorAdvice string
}

// Advice is the oracle's answer.
type Advice struct {
	Summary     []string
	Advice      string
	PatientAge  *int
	Criticality string
}

// Oracle produces advice for one input.
type Oracle interface {
	Advise(ctx context.Context, in Input) (Advice, error)
}

// NormalizeCriticality maps s onto the criticality levels, defaulting to low.
func NormalizeCriticality(s string) string {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case models.CriticalityLow, models.CriticalityMedium, models.CriticalityHigh, models.CriticalityCritical:
		return v
	default:
		return models.CriticalityLow
	}
}

const systemPrompt = `You are a crisis-dispatch copilot. Your job is to:
1. Update the running summary with new facts from the transcript
2. Provide concise advice based on dispatcher guidelines
3. Estimate the patient's age and the criticality of the situation

Respond with a JSON object containing:
- "summary": array of bullet-point facts about the call
- "advice": string with specific guidance for the dispatcher
- "patient_age": integer age of the patient, or null if unknown
- "criticality_level": one of "low", "medium", "high", "critical"

Be concise and focus on actionable information. Do not repeat the previous advice unless it is still the most important action.`

// BuildPrompt assembles the user prompt for in.
func BuildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current call summary:\n%s\n\n", in.Summary)
	fmt.Fprintf(&b, "Dispatcher guidelines context:\n%s\n\n", strings.Join(in.Passages, "\n\n"))
	if in.Transcript != "" {
		fmt.Fprintf(&b, "Conversation so far:\n%s\n", in.Transcript)
	}
	if in.PriorAdvice != "" {
		fmt.Fprintf(&b, "Previous advice:\n%s\n\n", in.PriorAdvice)
	}
	fmt.Fprintf(&b, "New transcript segment (%s):\n%s\n\n", in.Role, in.Chunk)
	b.WriteString("Update the summary with any new facts and provide advice.")
	return b.String()
}

// ParseAdvice extracts the JSON object between the first '{' and the last
// '}' of content. When none parses, the chunk becomes the summary and the
// raw content the advice.
func ParseAdvice(content, chunk string) Advice {
	fallback := Advice{
		Summary:     []string{chunk},
		Advice:      strings.TrimSpace(content),
		Criticality: models.CriticalityLow,
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return fallback
	}

	var raw struct {
		Summary     json.RawMessage `json:"summary"`
		Advice      any             `json:"advice"`
		PatientAge  json.RawMessage `json:"patient_age"`
		Criticality any             `json:"criticality_level"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return fallback
	}

	out := Advice{
		Summary:    parseSummary(raw.Summary),
		PatientAge: parseAge(raw.PatientAge),
	}
	if s, ok := raw.Advice.(string); ok {
		out.Advice = strings.TrimSpace(s)
	}
	crit, _ := raw.Criticality.(string)
	out.Criticality = NormalizeCriticality(crit)
	return out
}

func parseSummary(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "•"))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return SplitSummary(s)
	}
	return []string{}
}

func parseAge(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 || n > 130 {
			return nil
		}
		age := int(n)
		return &age
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if age, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && age > 0 && age <= 130 {
			return &age
		}
	}
	return nil
}

// SplitSummary turns "• item" lines back into items.
func SplitSummary(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// LLMOracle asks a chat model for advice.
type LLMOracle struct {
	completer llm.Completer
	model     string
}

// NewLLMOracle creates an oracle calling model through c.
func NewLLMOracle(c llm.Completer, model string) *LLMOracle {
	return &LLMOracle{completer: c, model: model}
}

func (o *LLMOracle) Advise(ctx context.Context, in Input) (Advice, error) {
	content, err := o.completer.Complete(ctx, llm.Request{
		Model:       o.model,
		System:      systemPrompt,
		Prompt:      BuildPrompt(in),
		Temperature: 0.1,
		MaxTokens:   1000,
	})
	if err != nil {
		return Advice{}, fmt.Errorf("advise: %w", err)
	}
	return ParseAdvice(content, in.Chunk), nil
}

// maxEchoItems caps the offline summary.
const maxEchoItems = 10

// Echo is a deterministic oracle for offline runs: it appends the chunk to
// the running summary and points the dispatcher at the best guideline.
type Echo struct{}

func (Echo) Advise(_ context.Context, in Input) (Advice, error) {
	items := append(SplitSummary(in.Summary), in.Chunk)
	if len(items) > maxEchoItems {
		items = items[len(items)-maxEchoItems:]
	}

	advice := fmt.Sprintf("Confirm with the %s: %q", in.Role, in.Chunk)
	if len(in.Passages) > 0 {
		advice = in.Passages[0]
	}
	return Advice{
		Summary:     items,
		Advice:      advice,
		Criticality: models.CriticalityLow,
	}, nil
}
