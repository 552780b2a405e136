package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

func seed() map[string][]record.Record {
	return map[string][]record.Record{
		"posts": {
			{"id": 1, "title": "foo", "author_id": 10},
			{"id": 2, "title": "bar", "author_id": 11},
			{"id": 3, "title": "baz", "author_id": 10},
		},
	}
}

func TestProvider_GetList(t *testing.T) {
	p := New(seed())
	ctx := context.Background()

	res, err := p.GetList(ctx, "posts", provider.GetListParams{
		Pagination: provider.Pagination{Page: 1, PerPage: 2},
		Sort:       provider.Sort{Field: "title", Order: "ASC"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Total)
	assert.Equal(t, 3, *res.Total)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "bar", res.Data[0]["title"])
	assert.Equal(t, "baz", res.Data[1]["title"])

	res, err = p.GetList(ctx, "posts", provider.GetListParams{Filter: map[string]any{"author_id": 10}})
	require.NoError(t, err)
	assert.Equal(t, 2, *res.Total)
}

func TestProvider_GetManyReference(t *testing.T) {
	p := New(seed())
	res, err := p.GetManyReference(context.Background(), "posts", provider.GetManyReferenceParams{
		Target: "author_id", ID: "11",
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, 2, res.Data[0]["id"])
}

func TestProvider_WritesAndCopies(t *testing.T) {
	p := New(seed())
	ctx := context.Background()

	created, err := p.Create(ctx, "posts", provider.CreateParams{Data: record.Record{"title": "new"}})
	require.NoError(t, err)
	assert.Equal(t, 4, created.Data["id"])

	upd, err := p.Update(ctx, "posts", provider.UpdateParams{ID: 1, Data: record.Record{"id": record.Undefined, "title": "world"}})
	require.NoError(t, err)
	assert.Equal(t, record.Record{"id": 1, "title": "world", "author_id": 10}, upd.Data)

	upd.Data["title"] = "mutated by caller"
	one, err := p.GetOne(ctx, "posts", provider.GetOneParams{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, "world", one.Data["title"])

	ids, err := p.DeleteMany(ctx, "posts", provider.DeleteManyParams{IDs: []record.Identifier{2, 3, 99}})
	require.NoError(t, err)
	assert.Equal(t, []record.Identifier{2, 3}, ids.Data)
	assert.Len(t, p.Records("posts"), 2)

	_, err = p.Delete(ctx, "posts", provider.DeleteParams{ID: 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProvider_FailuresAndCalls(t *testing.T) {
	p := New(seed())
	ctx := context.Background()
	boom := errors.New("boom")

	p.FailNext(provider.MethodUpdate, boom)
	_, err := p.Update(ctx, "posts", provider.UpdateParams{ID: 1, Data: record.Record{"title": "x"}})
	assert.ErrorIs(t, err, boom)

	_, err = p.Update(ctx, "posts", provider.UpdateParams{ID: 1, Data: record.Record{"title": "x"}})
	assert.NoError(t, err)

	assert.Len(t, p.CallsTo(provider.MethodUpdate), 2)
	p.ResetCalls()
	assert.Empty(t, p.Calls())
}

func TestProvider_HoldHonoursContext(t *testing.T) {
	p := New(seed(), WithCancellation())
	release := p.Hold(provider.MethodGetOne)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.GetOne(ctx, "posts", provider.GetOneParams{ID: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.SupportsCancellation())
}
