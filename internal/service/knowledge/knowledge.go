// Package knowledge retrieves dispatcher guideline passages relevant to an utterance.
package knowledge

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Backends.
const (
	BackendNone     = "none"
	BackendStatic   = "static"
	BackendPostgres = "postgres"
)

// DefaultTopK is the number of passages requested when none is configured.
const DefaultTopK = 3

// Passage is one guideline entry.
type Passage struct {
	Title string
	Body  string
}

// Retriever returns up to k passages for query, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// None retrieves nothing.
type None struct{}

func (None) Retrieve(context.Context, string, int) ([]string, error) { return nil, nil }

// Static ranks an in-memory passage set by word overlap with the query.
type Static struct {
	passages []Passage
	terms    []map[string]struct{}
}

// NewStatic indexes passages.
func NewStatic(passages []Passage) *Static {
	s := &Static{passages: passages}
	for _, p := range passages {
		s.terms = append(s.terms, termSet(p.Title+" "+p.Body))
	}
	return s
}

func (s *Static) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultTopK
	}
	q := termSet(query)
	if len(q) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, terms := range s.terms {
		n := 0
		for t := range q {
			if _, ok := terms[t]; ok {
				n++
			}
		}
		if n > 0 {
			hits = append(hits, scored{idx: i, score: n})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	var out []string
	for i := 0; i < len(hits) && i < k; i++ {
		out = append(out, s.passages[hits[i].idx].Body)
	}
	return out, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "his": {}, "her": {},
	"she": {}, "you": {}, "with": {}, "that": {}, "this": {}, "have": {}, "has": {},
}

func termSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// DefaultPassages is a small built-in guideline set used by the static
// backend and to seed an empty Postgres table.
var DefaultPassages = []Passage{
	{Title: "Cardiac arrest", Body: "Unresponsive and not breathing normally: start hands-only CPR, push hard and fast in the center of the chest at 100 to 120 compressions per minute, send for an AED."},
	{Title: "Choking", Body: "Choking adult who cannot speak or cough: give up to five back blows followed by five abdominal thrusts, repeat until the object is expelled or the patient becomes unresponsive."},
	{Title: "Severe bleeding", Body: "Severe bleeding: apply firm direct pressure on the wound with a clean cloth, do not remove soaked dressings, add more on top, apply a tourniquet above the wound if bleeding is life threatening."},
	{Title: "Stroke", Body: "Suspected stroke: check face drooping, arm weakness and speech difficulty, note the time symptoms started, do not give food or drink."},
	{Title: "Seizure", Body: "Seizure: move objects away, do not restrain the patient or put anything in the mouth, time the seizure, place in recovery position once it stops."},
	{Title: "Fall", Body: "Fall with possible head or neck injury: keep the patient still, do not move them unless in danger, ask about loss of consciousness and blood thinners."},
	{Title: "Scene safety", Body: "Fire, smoke, gas or violence at the scene: tell the caller to get to a safe place first, do not re-enter the building, stay on the line."},
	{Title: "Overdose", Body: "Suspected opioid overdose: check breathing, give naloxone if available, start rescue breathing or CPR if not breathing, place in recovery position if breathing."},
}
