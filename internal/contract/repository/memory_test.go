package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/procurely/contracting-api/internal/contract"
)

func plainOf(c *contract.Contract) map[string]any {
	return contract.Project(c, nil, contract.PurposePlain, "")
}

func TestMemoryInsertSealsFirstRevision(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	c := &contract.Contract{ID: "c1", Title: "works", Status: contract.StatusDraft, OwnerToken: "tok"}
	require.NoError(t, repo.Insert(ctx, c, "broker"))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "works", got.Title)
	require.True(t, strings.HasPrefix(got.Rev, "1-"))
	require.False(t, got.DateModified.IsZero())
	require.Len(t, got.Revisions, 1)
	require.Equal(t, "broker", got.Revisions[0].Author)
	require.NotEmpty(t, got.Revisions[0].Changes)
}

func TestMemoryInsertDuplicate(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &contract.Contract{ID: "c1"}, "broker"))
	err := repo.Insert(ctx, &contract.Contract{ID: "c1"}, "broker")
	require.ErrorIs(t, err, contract.ErrConflict)
}

func TestMemoryGetNotFoundAndArchived(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	require.ErrorIs(t, err, contract.ErrNotFound)

	repo.SeedArchived("old1")
	_, err = repo.Get(ctx, "old1")
	require.ErrorIs(t, err, contract.ErrArchived)
}

func TestMemorySaveAppendsRevision(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &contract.Contract{ID: "c1", Title: "v1", Status: contract.StatusActive}, "broker"))

	c, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	src := plainOf(c)
	firstModified := c.DateModified

	c.Title = "v2"
	require.NoError(t, repo.Save(ctx, c, src, "broker"))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "v2", got.Title)
	require.True(t, strings.HasPrefix(got.Rev, "2-"))
	require.Len(t, got.Revisions, 2)
	require.True(t, got.DateModified.After(firstModified))

	last := got.Revisions[1]
	require.Len(t, last.Changes, 1)
	require.Equal(t, contract.OpReplace, last.Changes[0].Op)
	require.Equal(t, "title", last.Changes[0].Path)
	// revision records the token the document carried before the write
	require.True(t, strings.HasPrefix(last.Rev, "1-"))
}

func TestMemorySaveEmptyDiffIsNoOp(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &contract.Contract{ID: "c1", Title: "same"}, "broker"))

	c, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, c, plainOf(c), "broker"))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, c.Rev, got.Rev)
	require.Len(t, got.Revisions, 1)
	require.True(t, got.DateModified.Equal(c.DateModified))
}

func TestMemorySaveCASConflict(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &contract.Contract{ID: "c1", Title: "v1"}, "broker"))

	a, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "c1")
	require.NoError(t, err)

	srcA := plainOf(a)
	a.Title = "from a"
	require.NoError(t, repo.Save(ctx, a, srcA, "broker"))

	srcB := plainOf(b)
	b.Title = "from b"
	require.ErrorIs(t, repo.Save(ctx, b, srcB, "broker"), contract.ErrConflict)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "from a", got.Title)
}

func TestMemoryDateModifiedMonotonicUnderFrozenClock(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	frozen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return frozen })

	require.NoError(t, repo.Insert(ctx, &contract.Contract{ID: "c1", Title: "v1"}, "broker"))

	c, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, c.DateModified.Equal(frozen))

	src := plainOf(c)
	c.Title = "v2"
	require.NoError(t, repo.Save(ctx, c, src, "broker"))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	// clock did not advance: the watermark is nudged by one millisecond
	require.True(t, got.DateModified.Equal(frozen.Add(time.Millisecond)))

	src = plainOf(got)
	got.Title = "v3"
	require.NoError(t, repo.Save(ctx, got, src, "broker"))

	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, got.DateModified.Equal(frozen.Add(2*time.Millisecond)))
}

func seedListRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	repo := NewMemoryRepo()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, spec := range []struct {
		id   string
		mode string
	}{
		{"a1", ""}, {"b2", ""}, {"c3", ""}, {"t4", "test"},
	} {
		ts := base.Add(time.Duration(i) * time.Second)
		repo.SetClock(func() time.Time { return ts })
		c := &contract.Contract{ID: spec.id, Title: "contract " + spec.id, Mode: spec.mode, Status: contract.StatusActive}
		require.NoError(t, repo.Insert(context.Background(), c, "broker"))
	}
	return repo
}

func TestMemoryListOrderAndModes(t *testing.T) {
	repo := seedListRepo(t)
	ctx := context.Background()

	items, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b2", "c3"}, ids(items))

	items, err = repo.List(ctx, ListOptions{Descending: true})
	require.NoError(t, err)
	require.Equal(t, []string{"c3", "b2", "a1"}, ids(items))

	items, err = repo.List(ctx, ListOptions{Mode: "test"})
	require.NoError(t, err)
	require.Equal(t, []string{"t4"}, ids(items))

	items, err = repo.List(ctx, ListOptions{Mode: "_all_"})
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b2", "c3", "t4"}, ids(items))
}

func TestMemoryListOffsetAndLimit(t *testing.T) {
	repo := seedListRepo(t)
	ctx := context.Background()

	page, err := repo.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b2"}, ids(page))

	cursor := page[len(page)-1].DateModified
	page, err = repo.List(ctx, ListOptions{Limit: 2, Offset: &cursor})
	require.NoError(t, err)
	require.Equal(t, []string{"c3"}, ids(page))

	// descending pages walk backwards from the cursor
	page, err = repo.List(ctx, ListOptions{Descending: true, Offset: &cursor})
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, ids(page))
}

func TestMemoryListOptFields(t *testing.T) {
	repo := seedListRepo(t)

	items, err := repo.List(context.Background(), ListOptions{OptFields: []string{"title", "status"}})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	require.Equal(t, "contract a1", items[0].Fields["title"])
	require.Equal(t, contract.StatusActive, items[0].Fields["status"])
}

func ids(items []ListItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestNewRevToken(t *testing.T) {
	first := NewRevToken("")
	require.True(t, strings.HasPrefix(first, "1-"))
	require.Len(t, first, len("1-")+16)

	next := NewRevToken(first)
	require.True(t, strings.HasPrefix(next, "2-"))
	require.NotEqual(t, first, next)

	require.True(t, strings.HasPrefix(NewRevToken("41-deadbeef"), "42-"))
}

func TestBumpDateModified(t *testing.T) {
	prev := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// clock advanced: watermark follows the clock, millisecond precision
	next := BumpDateModified(prev, prev.Add(3*time.Second+500*time.Microsecond))
	require.True(t, next.Equal(prev.Add(3*time.Second)))

	// clock stalled or went backwards: nudge past prev
	require.True(t, BumpDateModified(prev, prev).Equal(prev.Add(time.Millisecond)))
	require.True(t, BumpDateModified(prev, prev.Add(-time.Hour)).Equal(prev.Add(time.Millisecond)))
}
