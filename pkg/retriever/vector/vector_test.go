package vector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/supportdesk/pkg/models"
)

// hashEmbed is a deterministic bag-of-words embedding for tests.
func hashEmbed(_ context.Context, text string) ([]float32, error) {
	const dims = 64
	v := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%dims]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	r, err := New(chromem.NewDB(), "support_docs", hashEmbed)
	require.NoError(t, err)
	return r
}

func TestIndexAndRetrieve(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()

	err := r.Index(ctx, []models.Document{
		{Content: "reset password settings security", Source: "account.md", ChunkIndex: 0},
		{Content: "invoice billing monthly cycle", Source: "billing.md", ChunkIndex: 0},
		{Content: "business hours support team", Source: "contact.md", ChunkIndex: 3},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())

	docs, err := r.Retrieve(ctx, "reset password", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "account.md", docs[0].Source)

	docs, err = r.Retrieve(ctx, "support team hours", 10)
	require.NoError(t, err)
	require.Len(t, docs, 3, "topK is capped at collection size")
	assert.Equal(t, "contact.md", docs[0].Source)
	assert.Equal(t, 3, docs[0].ChunkIndex)
}

func TestReindexReplaces(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	doc := models.Document{Content: "old text", Source: "a.md"}
	require.NoError(t, r.Index(ctx, []models.Document{doc}, 1))
	doc.Content = "new text"
	require.NoError(t, r.Index(ctx, []models.Document{doc}, 1))
	assert.Equal(t, 1, r.Len())
}

func TestRetrieveEmpty(t *testing.T) {
	r := newTestRetriever(t)
	docs, err := r.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReset(t *testing.T) {
	r := newTestRetriever(t)
	ctx := context.Background()
	require.NoError(t, r.Index(ctx, []models.Document{{Content: "x", Source: "a.md"}}, 1))
	require.NoError(t, r.Reset())
	assert.Equal(t, 0, r.Len())
}

func TestOpenPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r, err := Open(dir, "kb", hashEmbed)
	require.NoError(t, err)
	require.NoError(t, r.Index(ctx, []models.Document{{Content: "refund policy", Source: "faq.md"}}, 1))

	reopened, err := Open(dir, "kb", hashEmbed)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
}
