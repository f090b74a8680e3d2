// Package ingest loads knowledge-base files and splits them into
// overlapping chunks for the retrievers.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// Extensions lists the file types LoadDir picks up.
var Extensions = []string{".md", ".txt"}

// Split cuts text into chunks of at most size runes, each starting overlap
// runes before the previous one ended. Text no longer than size is one chunk.
func Split(text string, size, overlap int) []string {
	r := []rune(text)
	if size <= 0 || len(r) <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(r); start += size - overlap {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		chunks = append(chunks, string(r[start:end]))
		if end == len(r) {
			break
		}
	}
	return chunks
}

// LoadDir reads every supported file under dir, in path order, and returns
// their chunks as documents. Source is the path relative to dir.
func LoadDir(dir string, size, overlap int) ([]models.Document, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supported(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var docs []models.Document
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = p
		}
		for i, chunk := range Split(string(data), size, overlap) {
			docs = append(docs, models.Document{Content: chunk, Source: filepath.ToSlash(rel), ChunkIndex: i})
		}
	}
	return docs, nil
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
