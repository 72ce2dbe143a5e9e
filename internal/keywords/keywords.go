// Package keywords extracts the normalized keyword sets used by the
// connection graph, the pattern detector, and full-text query building.
package keywords

import (
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// MinLength is the shortest token kept as a keyword.
const MinLength = 4

var stopWords = map[string]bool{
	"the": true, "this": true, "that": true, "these": true, "those": true,
	"with": true, "from": true, "have": true, "has": true, "been": true,
	"will": true, "would": true, "could": true, "should": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"your": true, "their": true, "there": true, "here": true,
}

// Extract tokenizes text, lowercases, drops stop words and short tokens,
// and de-duplicates while preserving first-seen order.
func Extract(text string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, tok := range tokenize(text) {
		kw := normalize(tok)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		result = append(result, kw)
	}
	return result
}

// tokenize runs the prose tokenizer with tagging and entity extraction
// disabled. Falls back to field splitting if the document fails to build.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}
	tokens := doc.Tokens()
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Text)
	}
	return out
}

func normalize(tok string) string {
	kw := strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	if len(kw) < MinLength || stopWords[kw] {
		return ""
	}
	return kw
}

// Shared counts keywords present in both sets.
func Shared(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, kw := range a {
		set[kw] = true
	}
	n := 0
	for _, kw := range b {
		if set[kw] {
			n++
		}
	}
	return n
}

// Similarity is shared-keyword count over the larger keyword set, in [0,1].
func Similarity(a, b []string) float64 {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	if max == 0 {
		return 0
	}
	return float64(Shared(a, b)) / float64(max)
}

// ContainsAny reports whether the lowercased text contains any marker.
func ContainsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
