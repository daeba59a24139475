package parser

import (
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/tokenizer"
)

func TestParse(t *testing.T) {
	tok := tokenizer.Default()
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"single", "cat", []string{"cat"}},
		{"stemmed and sorted", "Running dogs", []string{"dog", "run"}},
		{"duplicates", "cat cats CAT", []string{"cat"}},
		{"stop words only", "the and of", []string{}},
		{"punctuation and digits", "cat, 42 dog!", []string{"cat", "dog"}},
		{"blank", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.query, tok)
			if !reflect.DeepEqual(plan.Terms, tt.want) {
				t.Errorf("Parse(%q).Terms = %v, want %v", tt.query, plan.Terms, tt.want)
			}
			if plan.RawQuery != tt.query {
				t.Errorf("RawQuery = %q, want %q", plan.RawQuery, tt.query)
			}
			if plan.Empty() != (len(tt.want) == 0) {
				t.Errorf("Empty() = %v", plan.Empty())
			}
		})
	}
}

func TestPlanKeyIgnoresOrder(t *testing.T) {
	tok := tokenizer.Default()
	a := Parse("dog cat", tok)
	b := Parse("cats, dogs and cat", tok)
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}
