// Package keyword is an in-process TF-IDF retriever over local documents.
// It needs no embedding service.
package keyword

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/pario-ai/supportdesk/pkg/ingest"
	"github.com/pario-ai/supportdesk/pkg/models"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true,
	"will": true, "with": true, "you": true, "your": true,
}

// Retriever ranks documents by cosine similarity of TF-IDF vectors.
type Retriever struct {
	mu      sync.RWMutex
	docs    []models.Document
	vectors []map[string]float64
	idf     map[string]float64
}

// New indexes docs.
func New(docs []models.Document) *Retriever {
	r := &Retriever{}
	r.Index(docs)
	return r
}

// FromDir loads, chunks and indexes every supported file under dir.
func FromDir(dir string, chunkSize, overlap int) (*Retriever, error) {
	docs, err := ingest.LoadDir(dir, chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	return New(docs), nil
}

// Name identifies the retriever in health output.
func (r *Retriever) Name() string { return "keyword" }

// Len returns the number of indexed documents.
func (r *Retriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Index replaces the indexed corpus.
func (r *Retriever) Index(docs []models.Document) {
	tfs := make([]map[string]float64, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		tf := termFreq(d.Content)
		tfs[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	// Smoothed idf: ln((1+n)/(1+df)) + 1.
	n := float64(len(docs))
	idf := make(map[string]float64, len(df))
	for term, c := range df {
		idf[term] = math.Log((1+n)/(1+float64(c))) + 1
	}

	vectors := make([]map[string]float64, len(docs))
	for i, tf := range tfs {
		vectors[i] = weigh(tf, idf)
	}

	r.mu.Lock()
	r.docs = append([]models.Document(nil), docs...)
	r.vectors = vectors
	r.idf = idf
	r.mu.Unlock()
}

// Retrieve returns up to topK documents with a positive score, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.docs) == 0 || topK <= 0 {
		return nil, nil
	}

	qv := weigh(termFreq(query), r.idf)
	if len(qv) == 0 {
		return nil, nil
	}

	type scored struct {
		idx   int
		score float64
	}
	var hits []scored
	for i, dv := range r.vectors {
		if s := dot(qv, dv); s > 0 {
			hits = append(hits, scored{i, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]models.Document, len(hits))
	for i, h := range hits {
		out[i] = r.docs[h.idx]
	}
	return out, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func termFreq(text string) map[string]float64 {
	tf := make(map[string]float64)
	for _, tok := range tokenize(text) {
		tf[tok]++
	}
	return tf
}

// weigh applies idf and L2-normalizes. Terms unknown to idf are dropped.
func weigh(tf map[string]float64, idf map[string]float64) map[string]float64 {
	v := make(map[string]float64, len(tf))
	var norm float64
	for term, f := range tf {
		w, ok := idf[term]
		if !ok {
			continue
		}
		x := f * w
		v[term] = x
		norm += x * x
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for term := range v {
		v[term] /= norm
	}
	return v
}

func dot(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var s float64
	for term, x := range a {
		s += x * b[term]
	}
	return s
}
