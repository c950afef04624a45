package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/kmis/xerrors"
)

func TestRepositoryCRUD(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	doc := seed(t, repo, &Document{ID: "d1", OwnerID: "alice", UnitID: "u1", Tags: []string{"HR", "policy"}})

	got, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, []string{"hr", "policy"}, got.Tags)
	assert.False(t, got.CreatedAt.IsZero())

	got.Title = "renamed"
	got.Status = StatusNotProcessed
	got.ProcessingAttempts = 2
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, StatusNotProcessed, got.Status)
	assert.Equal(t, 2, got.ProcessingAttempts)

	require.NoError(t, repo.Delete(ctx, "d1"))
	_, err = repo.Get(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "d1"), ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &Document{ID: "missing", Title: "x", Status: StatusPending, Visibility: VisibilityUnit}), ErrNotFound)
}

func TestRepositoryGetMany(t *testing.T) {
	repo := newRepository(t)
	seed(t, repo, &Document{ID: "a"})
	seed(t, repo, &Document{ID: "b"})

	docs, err := repo.GetMany(context.Background(), []string{"a", "missing", "b"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(docs))

	docs, err = repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRepositoryListVisibility(t *testing.T) {
	repo := newRepository(t)
	seed(t, repo, &Document{ID: "pub", OwnerID: "carol", UnitID: "u2", Visibility: VisibilityPublic})
	seed(t, repo, &Document{ID: "u1", OwnerID: "alice", UnitID: "u1", Visibility: VisibilityUnit})
	seed(t, repo, &Document{ID: "u2", OwnerID: "carol", UnitID: "u2", Visibility: VisibilityUnit})
	seed(t, repo, &Document{ID: "priv", OwnerID: "alice", UnitID: "u1", Visibility: VisibilityPrivate})

	tests := []struct {
		name  string
		actor Actor
		want  []string
	}{
		{"owner", alice, []string{"pub", "u1", "priv"}},
		{"same unit", bob, []string{"pub", "u1"}},
		{"other unit", carol, []string{"pub", "u2"}},
		{"admin", root, []string{"pub", "u1", "u2", "priv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, total, err := repo.List(context.Background(), tt.actor, ListFilter{Limit: 10})
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(docs))
			assert.Equal(t, int64(len(tt.want)), total)
		})
	}
}

func TestRepositoryListFilters(t *testing.T) {
	repo := newRepository(t)
	seed(t, repo, &Document{ID: "a", OwnerID: "alice", UnitID: "u1", Tags: []string{"hr"}})
	seed(t, repo, &Document{ID: "b", OwnerID: "alice", UnitID: "u1", Tags: []string{"hr_ops"}, Status: StatusFailed})
	seed(t, repo, &Document{ID: "c", OwnerID: "bob", UnitID: "u1", Tags: []string{"finance", "hr"}})
	ctx := context.Background()

	docs, total, err := repo.List(ctx, root, ListFilter{Tag: "hr", Limit: 10})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, ids(docs), "tag match is exact")
	assert.Equal(t, int64(2), total)

	docs, _, err = repo.List(ctx, root, ListFilter{OwnerID: "alice", Status: StatusFailed, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(docs))

	docs, total, err = repo.List(ctx, root, ListFilter{UnitID: "u1", Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, int64(3), total, "total ignores paging")
}

func TestRepositoryKeywordSearch(t *testing.T) {
	repo := newRepository(t)
	seed(t, repo, &Document{ID: "a", Title: "Leave Policy", Visibility: VisibilityPublic})
	seed(t, repo, &Document{ID: "b", Title: "Budget", Content: "a 100% increase", Visibility: VisibilityPublic})
	seed(t, repo, &Document{ID: "c", Title: "Budget draft", Content: "a 1000 increase", Visibility: VisibilityPublic})
	seed(t, repo, &Document{ID: "d", Title: "leave notes", OwnerID: "alice", Visibility: VisibilityPrivate})
	ctx := context.Background()

	docs, err := repo.KeywordSearch(ctx, carol, "LEAVE", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs), "case-insensitive and private docs hidden")

	docs, err = repo.KeywordSearch(ctx, alice, "leave", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "d"}, ids(docs))

	docs, err = repo.KeywordSearch(ctx, carol, "100%", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(docs), "wildcards are matched literally")

	docs, err = repo.KeywordSearch(ctx, carol, "budget", 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRepositoryListForProcessing(t *testing.T) {
	repo := newRepository(t)
	seed(t, repo, &Document{ID: "a", Status: StatusNotProcessed, ProcessingAttempts: 1})
	seed(t, repo, &Document{ID: "b", Status: StatusNotProcessed, ProcessingAttempts: 5})
	seed(t, repo, &Document{ID: "c", Status: StatusIndexed})

	docs, err := repo.ListForProcessing(context.Background(), StatusNotProcessed, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))
}
