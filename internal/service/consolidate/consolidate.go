// Package consolidate merges a batch of fragments into ordered speaker turns.
package consolidate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/llm"
)

// Consolidator turns fragments into turns. A malformed answer yields no
// turns and a nil error; only transport failures are returned.
type Consolidator interface {
	Consolidate(ctx context.Context, fragments []models.Fragment) ([]models.Turn, error)
}

// Group is the fragments of one role, ordered by (timestamp, sequence).
type Group struct {
	Role      models.Role
	Fragments []models.Fragment
}

// GroupFragments groups fragments by role in order of first appearance and
// sorts each group by source timestamp, then sequence number.
func GroupFragments(fragments []models.Fragment) []Group {
	var groups []Group
	index := make(map[models.Role]int)
	for _, f := range fragments {
		i, ok := index[f.Role]
		if !ok {
			i = len(groups)
			index[f.Role] = i
			groups = append(groups, Group{Role: f.Role})
		}
		groups[i].Fragments = append(groups[i].Fragments, f)
	}
	for _, g := range groups {
		sort.SliceStable(g.Fragments, func(a, b int) bool {
			fa, fb := g.Fragments[a], g.Fragments[b]
			if fa.SourceTimestamp != fb.SourceTimestamp {
				return fa.SourceTimestamp < fb.SourceTimestamp
			}
			return fa.SequenceNumber < fb.SequenceNumber
		})
	}
	return groups
}

// FormatFragments renders groups in the tagged layout the consolidation prompt uses:
//
//	CALLER FRAGMENTS:
//	  1. [seq@ts] 'text'
func FormatFragments(groups []Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "\n%s FRAGMENTS:\n", strings.ToUpper(string(g.Role)))
		for i, f := range g.Fragments {
			fmt.Fprintf(&b, "  %d. [%d@%d] '%s'\n", i+1, f.SequenceNumber, f.SourceTimestamp, strings.TrimSpace(f.Text))
		}
	}
	return b.String()
}

const systemPrompt = "Always respond with valid JSON array only."

// BuildPrompt assembles the consolidation prompt for groups.
func BuildPrompt(groups []Group) string {
	return "You are an expert at merging ASR fragments into coherent dialogue.\n" +
		"Return ONLY valid JSON array of {'role':..., 'text':...}.\n" +
		"Fragments:" + FormatFragments(groups)
}

// ParseTurns decodes a consolidator answer. Anything other than a JSON list
// yields nil; entries without a role or non-empty text are skipped.
func ParseTurns(content string) []models.Turn {
	content = stripCodeFence(content)

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil
	}

	var turns []models.Turn
	for _, raw := range items {
		var item struct {
			Role any `json:"role"`
			Text any `json:"text"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		role, ok := item.Role.(string)
		if !ok || strings.TrimSpace(role) == "" {
			continue
		}
		text, ok := item.Text.(string)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		turns = append(turns, models.Turn{Role: models.NormalizeRole(role), Text: text})
	}
	return turns
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// LLMConsolidator asks a chat model to merge fragments.
type LLMConsolidator struct {
	completer llm.Completer
	model     string
}

// NewLLMConsolidator creates a consolidator calling model through c.
func NewLLMConsolidator(c llm.Completer, model string) *LLMConsolidator {
	return &LLMConsolidator{completer: c, model: model}
}

func (c *LLMConsolidator) Consolidate(ctx context.Context, fragments []models.Fragment) ([]models.Turn, error) {
	if len(fragments) == 0 {
		return nil, nil
	}
	content, err := c.completer.Complete(ctx, llm.Request{
		Model:       c.model,
		System:      systemPrompt,
		Prompt:      BuildPrompt(GroupFragments(fragments)),
		Temperature: 0.1,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	return ParseTurns(content), nil
}

// Concatenator joins each role group into a single turn without a model.
// Groups keep their first-appearance order.
type Concatenator struct{}

func (Concatenator) Consolidate(_ context.Context, fragments []models.Fragment) ([]models.Turn, error) {
	var turns []models.Turn
	for _, g := range GroupFragments(fragments) {
		parts := make([]string, 0, len(g.Fragments))
		for _, f := range g.Fragments {
			if t := strings.TrimSpace(f.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			continue
		}
		turns = append(turns, models.Turn{Role: g.Role, Text: strings.Join(parts, " ")})
	}
	return turns, nil
}
