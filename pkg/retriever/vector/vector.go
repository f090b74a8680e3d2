// Package vector retrieves documents by embedding similarity from a
// chromem-go collection persisted on disk.
package vector

import (
	"context"
	"fmt"
	"os"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"github.com/pario-ai/supportdesk/pkg/config"
	"github.com/pario-ai/supportdesk/pkg/models"
)

// Retriever queries one chromem collection.
type Retriever struct {
	db    *chromem.DB
	col   *chromem.Collection
	embed chromem.EmbeddingFunc
}

// EmbeddingFunc builds the embedding function described by cfg.
func EmbeddingFunc(cfg config.EmbeddingConfig) chromem.EmbeddingFunc {
	switch cfg.Provider {
	case "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.Model, cfg.URL)
	default:
		url := cfg.URL
		if url == "" {
			url = "https://api.openai.com/v1"
		}
		normalized := true
		return chromem.NewEmbeddingFuncOpenAICompat(url, cfg.APIKey, cfg.Model, &normalized)
	}
}

// Open opens (or creates) the persistent store at dir and its collection.
func Open(dir, collection string, embed chromem.EmbeddingFunc) (*Retriever, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create vector store dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return New(db, collection, embed)
}

// New uses an already opened database.
func New(db *chromem.DB, collection string, embed chromem.EmbeddingFunc) (*Retriever, error) {
	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &Retriever{db: db, col: col, embed: embed}, nil
}

// Name identifies the retriever in health output.
func (r *Retriever) Name() string { return "vector" }

// Len returns the number of stored chunks.
func (r *Retriever) Len() int { return r.col.Count() }

func docID(d models.Document) string {
	return d.Source + "#" + strconv.Itoa(d.ChunkIndex)
}

// Index embeds and stores docs. Re-indexing a chunk with the same source and
// index replaces it.
func (r *Retriever) Index(ctx context.Context, docs []models.Document, concurrency int) error {
	if len(docs) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	cdocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		cdocs[i] = chromem.Document{
			ID:      docID(d),
			Content: d.Content,
			Metadata: map[string]string{
				"source":      d.Source,
				"chunk_index": strconv.Itoa(d.ChunkIndex),
			},
		}
	}
	if err := r.col.AddDocuments(ctx, cdocs, concurrency); err != nil {
		return fmt.Errorf("index documents: %w", err)
	}
	return nil
}

// Retrieve returns the topK most similar chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]models.Document, error) {
	n := r.col.Count()
	if n == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > n {
		topK = n
	}

	results, err := r.col.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]models.Document, 0, len(results))
	for _, res := range results {
		idx, _ := strconv.Atoi(res.Metadata["chunk_index"])
		out = append(out, models.Document{
			Content:    res.Content,
			Source:     res.Metadata["source"],
			ChunkIndex: idx,
		})
	}
	return out, nil
}

// Reset deletes every stored chunk.
func (r *Retriever) Reset() error {
	name := r.col.Name
	if err := r.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	col, err := r.db.CreateCollection(name, nil, r.embed)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", name, err)
	}
	r.col = col
	return nil
}
