// Package tokenizer turns raw documents and queries into normalised terms.
// Text is NFKC-normalised and lower-cased, segmented into UAX#29 words,
// filtered against the English stop-word list and reduced with the Snowball
// English stemmer. Every non-space segment, punctuation included, counts as
// a token and advances the position counter.
package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// HTML extraction modes.
const (
	HTMLAuto   = "auto"
	HTMLAlways = "always"
	HTMLNever  = "never"
)

// Analysis is the result of analysing one document.
type Analysis struct {
	// TokenCount is the length of the raw token sequence.
	TokenCount int
	// Terms maps each stemmed term to the ascending token positions where
	// it occurs.
	Terms map[string][]int
}

// Options configures a Tokenizer.
type Options struct {
	HTML      string
	StopWords []string
}

// Tokenizer is safe for concurrent use.
type Tokenizer struct {
	html      string
	stopWords map[string]struct{}
}

func New(opts Options) *Tokenizer {
	mode := opts.HTML
	if mode == "" {
		mode = HTMLAuto
	}
	sw := opts.StopWords
	if sw == nil {
		sw = englishStopWords
	}
	return &Tokenizer{
		html:      mode,
		stopWords: stopWordSet(sw),
	}
}

// Default returns a tokenizer with HTML detection and English stop words.
func Default() *Tokenizer {
	return New(Options{})
}

// Analyze tokenises a document. Failures are document-level errors: the
// caller skips the document and carries on.
func (t *Tokenizer) Analyze(raw string) (Analysis, error) {
	if !utf8.ValidString(raw) {
		return Analysis{}, apperrors.New(apperrors.ErrDocumentProcessing, "tokenizer.analyze", "invalid utf-8")
	}
	text := raw
	if t.html == HTMLAlways || (t.html == HTMLAuto && LooksLikeHTML(raw)) {
		var err error
		text, err = ExtractText(raw)
		if err != nil {
			return Analysis{}, fmt.Errorf("%w: %v", apperrors.ErrDocumentProcessing, err)
		}
	}
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Analysis{}, apperrors.New(apperrors.ErrEmptyDocument, "tokenizer.analyze", "no tokens")
	}

	stems := make([]string, len(tokens))
	vocab := make(map[string]struct{})
	for i, tok := range tokens {
		stems[i] = stem(tok)
		if t.isTerm(tok) {
			vocab[stems[i]] = struct{}{}
		}
	}
	terms := make(map[string][]int, len(vocab))
	for i, s := range stems {
		if _, ok := vocab[s]; ok {
			terms[s] = append(terms[s], i)
		}
	}
	return Analysis{
		TokenCount: len(tokens),
		Terms:      terms,
	}, nil
}

// Query returns the distinct normalised terms of a query, sorted.
func (t *Tokenizer) Query(raw string) []string {
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(raw) {
		if !t.isTerm(tok) {
			continue
		}
		seen[stem(tok)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// isTerm reports whether a token may become an index term: ASCII letters
// only and not a stop word.
func (t *Tokenizer) isTerm(tok string) bool {
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c < 'a' || c > 'z' {
			return false
		}
	}
	_, stop := t.stopWords[tok]
	return !stop
}

// Tokenize returns the normalised token sequence of text.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	segs := words.FromString(text)
	tokens := make([]string, 0, len(text)/5)
	for segs.Next() {
		seg := segs.Value()
		if strings.TrimSpace(seg) == "" {
			continue
		}
		tokens = append(tokens, seg)
	}
	return tokens
}

func stem(word string) string {
	return english.Stem(word, true)
}
