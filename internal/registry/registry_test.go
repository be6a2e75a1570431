package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledgehub/internal/domain"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegisterLifecycle(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)
	doc := domain.Document{ID: domain.DocumentID("ml.txt"), Filename: "ml.txt", UploadedAt: time.Now().UTC()}

	require.NoError(t, r.Register(ctx, doc))
	got, ok, err := r.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusIndexing, got.Status)

	require.NoError(t, r.MarkIndexed(ctx, doc.ID, 4))
	got, _, err = r.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, got.Status)
	assert.Equal(t, 4, got.ChunkCount)

	err = r.Register(ctx, doc)
	assert.ErrorIs(t, err, domain.ErrDuplicateDocument)

	require.NoError(t, r.Remove(ctx, doc.ID))
	_, ok, err = r.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.Remove(ctx, doc.ID))
}

func TestFailedRowCanBeRegisteredAgain(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)
	doc := domain.Document{ID: "abc", Filename: "a.txt", UploadedAt: time.Now().UTC()}

	require.NoError(t, r.Register(ctx, doc))
	require.NoError(t, r.MarkFailed(ctx, doc.ID, errors.New("embedding provider down")))
	require.NoError(t, r.Register(ctx, doc))

	docs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, domain.StatusIndexing, docs[0].Status)
}

func TestMarkUnknownDocument(t *testing.T) {
	r := openTest(t)
	assert.Error(t, r.MarkIndexed(context.Background(), "missing", 1))
}

func TestListOrdersByUpload(t *testing.T) {
	ctx := context.Background()
	r := openTest(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Register(ctx, domain.Document{ID: "late", Filename: "b.txt", UploadedAt: base.Add(time.Hour)}))
	require.NoError(t, r.Register(ctx, domain.Document{ID: "early", Filename: "a.txt", UploadedAt: base}))

	docs, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "early", docs[0].ID)
	assert.Equal(t, "late", docs[1].ID)
}
