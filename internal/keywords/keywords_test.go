package keywords

import (
	"testing"
)

func TestExtractFiltersStopWordsAndShortTokens(t *testing.T) {
	kws := Extract("The database crashed while parsing these huge log files")

	for _, kw := range kws {
		if stopWords[kw] {
			t.Errorf("Stop word %q survived extraction", kw)
		}
		if len(kw) < MinLength {
			t.Errorf("Short token %q survived extraction", kw)
		}
	}

	want := map[string]bool{"database": true, "crashed": true, "parsing": true}
	got := make(map[string]bool)
	for _, kw := range kws {
		got[kw] = true
	}
	for kw := range want {
		if !got[kw] {
			t.Errorf("Expected keyword %q, got %v", kw, kws)
		}
	}
}

func TestExtractLowercasesAndDeduplicates(t *testing.T) {
	kws := Extract("Memory MEMORY memory consolidation")

	count := 0
	for _, kw := range kws {
		if kw == "memory" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one 'memory' keyword, got %d in %v", count, kws)
	}
}

func TestExtractEmpty(t *testing.T) {
	if kws := Extract(""); len(kws) != 0 {
		t.Errorf("Expected no keywords from empty text, got %v", kws)
	}
	if kws := Extract("a an to of"); len(kws) != 0 {
		t.Errorf("Expected no keywords from short tokens, got %v", kws)
	}
}

func TestShared(t *testing.T) {
	a := []string{"database", "crashed", "parsing"}
	b := []string{"database", "parsing", "timeout"}

	if n := Shared(a, b); n != 2 {
		t.Errorf("Shared = %d, want 2", n)
	}
	if n := Shared(a, nil); n != 0 {
		t.Errorf("Shared with nil = %d, want 0", n)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"alpha", "beta"}, []string{"alpha", "beta"}, 1.0},
		{"disjoint", []string{"alpha"}, []string{"beta"}, 0.0},
		{"half", []string{"alpha", "beta"}, []string{"alpha", "gamma"}, 0.5},
		{"empty", nil, nil, 0.0},
		{"asymmetric sizes", []string{"alpha"}, []string{"alpha", "beta", "gamma", "delta"}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); got != tt.want {
				t.Errorf("Similarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	if !ContainsAny("We DECIDED to use SQLite", []string{"decide", "chose"}) {
		t.Error("Expected marker match, got none")
	}
	if ContainsAny("nothing interesting here", []string{"decide", "chose"}) {
		t.Error("Unexpected marker match")
	}
}
