package advisory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dispatch-copilot-service/internal/models"
	"dispatch-copilot-service/internal/service/llm"
)

func TestParseAdvice(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		summary     []string
		advice      string
		age         int // 0 means nil
		criticality string
	}{
		{
			name:        "full object with prose around it",
			content:     "Here you go:\n{\"summary\":[\"male, collapsed\",\"• not breathing\"],\"advice\":\"Start CPR\",\"patient_age\":62,\"criticality_level\":\"CRITICAL\"}\nStay safe.",
			summary:     []string{"male, collapsed", "not breathing"},
			advice:      "Start CPR",
			age:         62,
			criticality: models.CriticalityCritical,
		},
		{
			name:        "string summary and string age",
			content:     `{"summary":"• fell\n• conscious","advice":"Keep still","patient_age":"80","criticality_level":"medium"}`,
			summary:     []string{"fell", "conscious"},
			advice:      "Keep still",
			age:         80,
			criticality: models.CriticalityMedium,
		},
		{
			name:        "unknown criticality and null age",
			content:     `{"summary":[],"advice":"Ask for address","patient_age":null,"criticality_level":"urgent"}`,
			summary:     []string{},
			advice:      "Ask for address",
			criticality: models.CriticalityLow,
		},
		{
			name:        "no json falls back",
			content:     "Ask whether he is breathing.",
			summary:     []string{"he collapsed"},
			advice:      "Ask whether he is breathing.",
			criticality: models.CriticalityLow,
		},
		{
			name:        "broken json falls back",
			content:     `{"summary": [oops}`,
			summary:     []string{"he collapsed"},
			advice:      `{"summary": [oops}`,
			criticality: models.CriticalityLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAdvice(tt.content, "he collapsed")
			if strings.Join(got.Summary, "|") != strings.Join(tt.summary, "|") {
				t.Errorf("summary = %q, want %q", got.Summary, tt.summary)
			}
			if got.Advice != tt.advice {
				t.Errorf("advice = %q, want %q", got.Advice, tt.advice)
			}
			if got.Criticality != tt.criticality {
				t.Errorf("criticality = %q, want %q", got.Criticality, tt.criticality)
			}
			switch {
			case tt.age == 0 && got.PatientAge != nil:
				t.Errorf("expected nil age, got %d", *got.PatientAge)
			case tt.age != 0 && (got.PatientAge == nil || *got.PatientAge != tt.age):
				t.Errorf("expected age %d, got %v", tt.age, got.PatientAge)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(Input{
		Chunk:       "He is not breathing",
		Role:        models.RoleCaller,
		Summary:     "• male, 60",
		Passages:    []string{"Start CPR.", "Send for an AED."},
		PriorAdvice: "Ask for the address",
	})
	for _, want := range []string{"• male, 60", "Start CPR.\n\nSend for an AED.", "Previous advice:\nAsk for the address", "(caller):\nHe is not breathing"} {
		if !strings.Contains(p, want) {
			t.Errorf("expected prompt to contain %q:\n%s", want, p)
		}
	}
}

func TestLLMOracle(t *testing.T) {
	o := NewLLMOracle(llm.CompleterFunc(func(ctx context.Context, r llm.Request) (string, error) {
		if r.Model != "versatile" || r.System == "" {
			t.Errorf("unexpected request %+v", r)
		}
		return `{"summary":["collapsed"],"advice":"Check breathing","criticality_level":"high"}`, nil
	}), "versatile")

	got, err := o.Advise(context.Background(), Input{Chunk: "collapsed", Role: models.RoleCaller})
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	if got.Advice != "Check breathing" || got.Criticality != models.CriticalityHigh {
		t.Errorf("unexpected advice %+v", got)
	}

	failing := NewLLMOracle(llm.CompleterFunc(func(ctx context.Context, r llm.Request) (string, error) {
		return "", errors.New("timeout")
	}), "versatile")
	if _, err := failing.Advise(context.Background(), Input{}); err == nil {
		t.Error("expected error from failing completer")
	}
}

func TestEcho(t *testing.T) {
	got, _ := Echo{}.Advise(context.Background(), Input{
		Chunk:   "He fell down the stairs",
		Role:    models.RoleCaller,
		Summary: "• elderly man",
	})
	if strings.Join(got.Summary, "|") != "elderly man|He fell down the stairs" {
		t.Errorf("unexpected summary %q", got.Summary)
	}
	if !strings.Contains(got.Advice, "He fell down the stairs") {
		t.Errorf("unexpected advice %q", got.Advice)
	}

	withGuideline, _ := Echo{}.Advise(context.Background(), Input{Chunk: "x", Passages: []string{"Keep the patient still."}})
	if withGuideline.Advice != "Keep the patient still." {
		t.Errorf("expected top passage as advice, got %q", withGuideline.Advice)
	}
}

func TestNormalizeCriticality(t *testing.T) {
	for in, want := range map[string]string{
		"low": "low", " High ": "high", "CRITICAL": "critical", "medium": "medium", "": "low", "severe": "low",
	} {
		if got := NormalizeCriticality(in); got != want {
			t.Errorf("NormalizeCriticality(%q) = %q, want %q", in, got, want)
		}
	}
}
