package patch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revittco/mutacache/internal/cache"
	"github.com/revittco/mutacache/internal/cachekey"
	"github.com/revittco/mutacache/internal/provider"
	"github.com/revittco/mutacache/internal/record"
)

func ids(v ...record.Identifier) []record.Identifier { return v }

func TestOne_UndefinedFieldsKeepValues(t *testing.T) {
	cached := record.Record{"id": 1, "title": "foo"}
	got, changed := One(cached, Update(ids(1), record.Record{"id": record.Undefined, "title": "world"}))

	require.True(t, changed)
	if diff := cmp.Diff(record.Record{"id": 1, "title": "world"}, got); diff != "" {
		t.Errorf("patched record mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "foo", cached["title"], "old value must not be modified")
}

func TestList_DeleteCountsRemoved(t *testing.T) {
	l := record.List{
		Data: []record.Record{
			{"id": 1}, {"id": 2}, {"id": 3}, {"id": 4},
		},
		Total: record.IntPtr(4),
	}

	got, changed := List(l, Remove(ids(2, "3")))
	require.True(t, changed)
	want := record.List{Data: []record.Record{{"id": 1}, {"id": 4}}, Total: record.IntPtr(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	same, changed := List(l, Remove(ids(7, 8)))
	assert.False(t, changed)
	assert.Same(t, &l.Data[0], &same.Data[0])
	assert.Equal(t, 4, *l.Total)
}

func TestList_UpdateKeepsOrderAndLength(t *testing.T) {
	l := record.List{
		Data:     []record.Record{{"id": 1, "v": 1}, {"id": 2, "v": 2}, {"id": 3, "v": 3}},
		PageInfo: &record.PageInfo{HasNextPage: true},
	}
	got, changed := List(l, Update(ids(2), record.Record{"v": 20}))
	require.True(t, changed)
	want := record.List{
		Data:     []record.Record{{"id": 1, "v": 1}, {"id": 2, "v": 20}, {"id": 3, "v": 3}},
		PageInfo: &record.PageInfo{HasNextPage: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, l.Data[1]["v"])
}

func TestInfinite_PatchesEveryPage(t *testing.T) {
	inf := record.Infinite{
		Pages: []record.List{
			{Data: []record.Record{{"id": 1}, {"id": 2}}, Total: record.IntPtr(4)},
			{Data: []record.Record{{"id": 3}, {"id": 4}}, Total: record.IntPtr(4)},
		},
		PageParams: []any{1, 2},
	}
	got, changed := Infinite(inf, Remove(ids(2, 3)))
	require.True(t, changed)
	want := record.Infinite{
		Pages: []record.List{
			{Data: []record.Record{{"id": 1}}, Total: record.IntPtr(3)},
			{Data: []record.Record{{"id": 4}}, Total: record.IntPtr(3)},
		},
		PageParams: []any{1, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("infinite mismatch (-want +got):\n%s", diff)
	}
}

func TestApply_AllShapes(t *testing.T) {
	s := cache.New(cache.DefaultConfig(), cache.WithValidator(Validate))
	listKey := cachekey.List("posts", provider.GetListParams{Pagination: provider.Pagination{Page: 1, PerPage: 10}})
	refKey := cachekey.Reference("posts", provider.GetManyReferenceParams{Target: "author_id", ID: 5})
	manyKey := cachekey.Many("posts", ids(1, 2), nil)
	oneKey := cachekey.One("posts", 1, nil)
	otherKey := cachekey.List("comments", provider.GetListParams{})

	s.Set(oneKey, record.Record{"id": 1, "title": "foo"})
	s.Set(listKey, record.List{Data: []record.Record{{"id": 1, "title": "foo"}, {"id": 2, "title": "bar"}}, Total: record.IntPtr(2)})
	s.Set(refKey, record.List{Data: []record.Record{{"id": 2, "title": "bar"}}, Total: record.IntPtr(1)})
	s.Set(manyKey, []record.Record{{"id": 1, "title": "foo"}, {"id": 2, "title": "bar"}})
	s.Set(otherKey, record.List{Data: []record.Record{{"id": 1, "body": "x"}}, Total: record.IntPtr(1)})

	written := Apply(s, "posts", Update(ids(1), record.Record{"title": "new"}))
	assert.Len(t, written, 3, "getOne, getList and getMany hold id 1")

	v, _ := s.Get(oneKey)
	assert.Equal(t, "new", v.(record.Record)["title"])
	v, _ = s.Get(manyKey)
	assert.Equal(t, "new", v.([]record.Record)[0]["title"])
	v, _ = s.Get(otherKey)
	assert.Equal(t, "x", v.(record.List).Data[0]["body"], "other resources are untouched")

	written = Apply(s, "posts", Remove(ids(2)))
	assert.Len(t, written, 3)
	v, _ = s.Get(refKey)
	assert.Empty(t, v.(record.List).Data)
	assert.Equal(t, 0, *v.(record.List).Total)
	_, ok := s.Get(oneKey)
	assert.True(t, ok, "deletes leave single-record entries to the caller")
}

func TestApply_SavedSeedsSingleRecord(t *testing.T) {
	s := cache.New(cache.DefaultConfig())
	Apply(s, "posts", Saved(record.Record{"id": 9, "title": "created"}))

	v, ok := s.Get(cachekey.One("posts", "9", nil))
	require.True(t, ok)
	assert.Equal(t, "created", v.(record.Record)["title"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		value any
		bad   bool
	}{
		{"record", record.Record{"id": 1}, false},
		{"nil record", record.Record(nil), true},
		{"record without id", record.Record{"title": "x"}, true},
		{"negative total", record.List{Data: []record.Record{}, Total: record.IntPtr(-1)}, true},
		{"bad page", record.Infinite{Pages: []record.List{{Data: []record.Record{nil}}}}, true},
		{"other values pass", 42, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(nil, tt.value)
			if tt.bad {
				assert.True(t, errors.Is(err, ErrInconsistent), "err = %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
