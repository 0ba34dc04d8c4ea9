package consolidate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/llm"
)

func TestGroupFragments_OrdersByTimestampThenSequence(t *testing.T) {
	groups := GroupFragments([]models.Fragment{
		{Role: models.RoleCaller, Text: "second", SequenceNumber: 2, SourceTimestamp: 5},
		{Role: models.RoleDispatcher, Text: "d", SequenceNumber: 9, SourceTimestamp: 4},
		{Role: models.RoleCaller, Text: "first", SequenceNumber: 1, SourceTimestamp: 3},
		{Role: models.RoleCaller, Text: "tie-b", SequenceNumber: 4, SourceTimestamp: 7},
		{Role: models.RoleCaller, Text: "tie-a", SequenceNumber: 3, SourceTimestamp: 7},
	})

	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Role != models.RoleCaller || groups[1].Role != models.RoleDispatcher {
		t.Errorf("expected groups in first-appearance order, got %s, %s", groups[0].Role, groups[1].Role)
	}

	var order []string
	for _, f := range groups[0].Fragments {
		order = append(order, f.Text)
	}
	if got := strings.Join(order, ","); got != "first,second,tie-a,tie-b" {
		t.Errorf("unexpected caller order %s", got)
	}
}

func TestFormatFragments(t *testing.T) {
	got := FormatFragments(GroupFragments([]models.Fragment{
		{Role: models.RoleCaller, Text: " My husband ", SequenceNumber: 1, SourceTimestamp: 100},
		{Role: models.RoleDispatcher, Text: "Address?", SequenceNumber: 2, SourceTimestamp: 101},
	}))
	want := "\nCALLER FRAGMENTS:\n  1. [1@100] 'My husband'\n\nDISPATCHER FRAGMENTS:\n  1. [2@101] 'Address?'\n"
	if got != want {
		t.Errorf("FormatFragments() = %q, want %q", got, want)
	}
}

func TestParseTurns(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []models.Turn
	}{
		{
			name:    "list",
			content: `[{"role":"caller","text":"My husband collapsed"},{"role":"agent","text":"Is he breathing?"}]`,
			want: []models.Turn{
				{Role: models.RoleCaller, Text: "My husband collapsed"},
				{Role: models.RoleDispatcher, Text: "Is he breathing?"},
			},
		},
		{
			name:    "code fence",
			content: "```json\n[{\"role\":\"caller\",\"text\":\"help\"}]\n```",
			want:    []models.Turn{{Role: models.RoleCaller, Text: "help"}},
		},
		{
			name:    "invalid entries skipped",
			content: `[{"role":"caller"},{"text":"orphan"},{"role":"caller","text":"  "},{"role":7,"text":"x"},"bare",{"role":"caller","text":"kept"}]`,
			want:    []models.Turn{{Role: models.RoleCaller, Text: "kept"}},
		},
		{name: "object not list", content: `{"role":"caller","text":"x"}`},
		{name: "not json", content: "Sure! Here is the dialogue."},
		{name: "empty", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTurns(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d turns, got %d (%+v)", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("turn %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLLMConsolidator(t *testing.T) {
	var req llm.Request
	c := NewLLMConsolidator(llm.CompleterFunc(func(ctx context.Context, r llm.Request) (string, error) {
		req = r
		return `[{"role":"caller","text":"My husband collapsed at home"}]`, nil
	}), "scout")

	turns, err := c.Consolidate(context.Background(), []models.Fragment{
		{Role: models.RoleCaller, Text: "collapsed at", SequenceNumber: 2, SourceTimestamp: 2},
		{Role: models.RoleCaller, Text: "My husband", SequenceNumber: 1, SourceTimestamp: 1},
	})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "My husband collapsed at home" {
		t.Errorf("unexpected turns %+v", turns)
	}

	if req.Model != "scout" {
		t.Errorf("expected model 'scout', got %q", req.Model)
	}
	if i, j := strings.Index(req.Prompt, "My husband"), strings.Index(req.Prompt, "collapsed at"); i < 0 || j < i {
		t.Errorf("expected seq=1 before seq=2 in prompt:\n%s", req.Prompt)
	}
}

func TestLLMConsolidator_TransportError(t *testing.T) {
	c := NewLLMConsolidator(llm.CompleterFunc(func(ctx context.Context, r llm.Request) (string, error) {
		return "", errors.New("connection reset")
	}), "scout")

	turns, err := c.Consolidate(context.Background(), []models.Fragment{{Role: models.RoleCaller, Text: "x"}})
	if err == nil {
		t.Error("expected transport error to be returned")
	}
	if turns != nil {
		t.Errorf("expected no turns, got %+v", turns)
	}
}

func TestLLMConsolidator_EmptyBatchSkipsCall(t *testing.T) {
	c := NewLLMConsolidator(llm.CompleterFunc(func(ctx context.Context, r llm.Request) (string, error) {
		t.Error("unexpected completion call")
		return "", nil
	}), "scout")
	if turns, err := c.Consolidate(context.Background(), nil); err != nil || turns != nil {
		t.Errorf("expected nil, nil; got %+v, %v", turns, err)
	}
}

func TestConcatenator(t *testing.T) {
	turns, _ := Concatenator{}.Consolidate(context.Background(), []models.Fragment{
		{Role: models.RoleCaller, Text: "collapsed at", SequenceNumber: 2},
		{Role: models.RoleDispatcher, Text: "Okay", SequenceNumber: 3},
		{Role: models.RoleCaller, Text: "My husband", SequenceNumber: 1},
		{Role: models.RoleCaller, Text: "home", SequenceNumber: 4},
		{Role: models.RoleUnknown, Text: "  ", SequenceNumber: 5},
	})

	want := []models.Turn{
		{Role: models.RoleCaller, Text: "My husband collapsed at home"},
		{Role: models.RoleDispatcher, Text: "Okay"},
	}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %+v", len(want), turns)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, turns[i], want[i])
		}
	}
}
