package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/shardidx/internal/indexer/tokenizer"
)

// QueryPlan is a normalised query. Documents matching any term are
// returned.
type QueryPlan struct {
	Terms    []string
	RawQuery string
}

// Empty reports whether no term survived normalisation.
func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Key is a stable representation of the plan's terms, independent of the
// order and repetition of words in the raw query.
func (p *QueryPlan) Key() string {
	return strings.Join(p.Terms, " ")
}

func Parse(query string, tok *tokenizer.Tokenizer) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return plan
	}
	plan.Terms = append(plan.Terms, tok.Query(query)...)
	return plan
}
