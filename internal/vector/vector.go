// Package vector is the default semantic-similarity oracle: an in-memory
// TF-IDF cosine index over record content. The convergence detector treats
// the oracle as opaque, so deployments can swap in a real embedding model.
package vector

import (
	"math"
	"sort"
	"sync"

	"github.com/ckoons/katra-sub002/internal/keywords"
	"github.com/ckoons/katra-sub002/internal/types"
)

// Match is one similarity hit.
type Match struct {
	RecordID   string
	Similarity float64
}

type doc struct {
	owner string
	tf    map[string]float64
}

// Index holds term frequencies per registered record.
type Index struct {
	mu   sync.RWMutex
	docs map[string]doc
	df   map[string]int
}

// NewIndex returns an empty similarity index.
func NewIndex() *Index {
	return &Index{
		docs: make(map[string]doc),
		df:   make(map[string]int),
	}
}

// Register adds or replaces a record's content in the index.
func (ix *Index) Register(rec *types.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.docs[rec.RecordID]; ok {
		for term := range old.tf {
			ix.df[term]--
			if ix.df[term] <= 0 {
				delete(ix.df, term)
			}
		}
	}

	tf := termFreq(rec.Content)
	for term := range tf {
		ix.df[term]++
	}
	ix.docs[rec.RecordID] = doc{owner: rec.OwnerID, tf: tf}
	return nil
}

// Remove drops a record from the index.
func (ix *Index) Remove(recordID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, ok := ix.docs[recordID]
	if !ok {
		return
	}
	for term := range old.tf {
		ix.df[term]--
		if ix.df[term] <= 0 {
			delete(ix.df, term)
		}
	}
	delete(ix.docs, recordID)
}

// Len returns the number of registered records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Search returns the owner's records most similar to text, best first,
// up to limit. Scores are cosine similarity over tf-idf weights, in [0,1].
func (ix *Index) Search(ownerID, text string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	query := termFreq(text)
	if len(query) == 0 || len(ix.docs) == 0 {
		return nil, nil
	}

	total := float64(len(ix.docs))
	idf := func(term string) float64 {
		n := ix.df[term]
		if n == 0 {
			return 0
		}
		return math.Log(1 + total/float64(n))
	}

	qvec := make(map[string]float64, len(query))
	var qnorm float64
	for term, f := range query {
		w := f * idf(term)
		qvec[term] = w
		qnorm += w * w
	}
	if qnorm == 0 {
		return nil, nil
	}
	qnorm = math.Sqrt(qnorm)

	var matches []Match
	for id, d := range ix.docs {
		if d.owner != ownerID {
			continue
		}
		var dot, dnorm float64
		for term, f := range d.tf {
			w := f * idf(term)
			dnorm += w * w
			if qw, ok := qvec[term]; ok {
				dot += w * qw
			}
		}
		if dot == 0 || dnorm == 0 {
			continue
		}
		matches = append(matches, Match{
			RecordID:   id,
			Similarity: dot / (qnorm * math.Sqrt(dnorm)),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// termFreq builds normalized term frequencies from the keyword set plus
// raw token counts.
func termFreq(text string) map[string]float64 {
	kws := keywords.Extract(text)
	if len(kws) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(kws))
	for _, kw := range kws {
		tf[kw]++
	}
	for term := range tf {
		tf[term] /= float64(len(kws))
	}
	return tf
}
