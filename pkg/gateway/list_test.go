package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putKeys(t *testing.T, gw *Gateway, keys ...string) {
	t.Helper()
	ctx := context.Background()
	for _, k := range keys {
		_, err := gw.Put(ctx, k, BytesPayload([]byte(k)), nil)
		require.NoError(t, err)
	}
}

func listedKeys(res *ListResult) []string {
	keys := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	gw, _ := newTestGateway(t)

	res, err := gw.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
	assert.Empty(t, res.DelimitedPrefixes)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Cursor)
}

func TestList_SortedWithMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	putKeys(t, gw, "c", "a", "b")

	res, err := gw.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, listedKeys(res))
	for _, o := range res.Objects {
		assert.Equal(t, int64(1), o.Size)
		assert.NotEmpty(t, o.ETag)
		assert.NotEmpty(t, o.Version)
		assert.False(t, o.Uploaded.IsZero())
	}
}

func TestList_PaginationConcatenatesExactly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)

	want := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		want = append(want, fmt.Sprintf("key-%02d", i))
	}
	putKeys(t, gw, want...)

	res, err := gw.List(ctx, &ListOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Objects, 3)
	assert.True(t, res.Truncated)
	require.NotEmpty(t, res.Cursor)

	var got []string
	got = append(got, listedKeys(res)...)
	cursor := res.Cursor
	for cursor != "" {
		res, err = gw.List(ctx, &ListOptions{Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		got = append(got, listedKeys(res)...)
		if !res.Truncated {
			assert.Empty(t, res.Cursor)
			break
		}
		cursor = res.Cursor
	}
	assert.Equal(t, want, got)
}

func TestList_PrefixFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	putKeys(t, gw, "logs/1", "logs/2", "other")

	res, err := gw.List(ctx, &ListOptions{Prefix: "logs/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/1", "logs/2"}, listedKeys(res))
	assert.False(t, res.Truncated)
}

func TestList_DelimiterGroupsKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	putKeys(t, gw, "a/b", "a/c", "d")

	res, err := gw.List(ctx, &ListOptions{Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, listedKeys(res))
	assert.Equal(t, []string{"a/"}, res.DelimitedPrefixes)
	assert.False(t, res.Truncated)
}

func TestList_DelimiterUnderPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	putKeys(t, gw, "dir/sub/1", "dir/sub/2", "dir/leaf", "dir/zub/1", "top")

	res, err := gw.List(ctx, &ListOptions{Prefix: "dir/", Delimiter: "/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/leaf"}, listedKeys(res))
	assert.Equal(t, []string{"dir/sub/", "dir/zub/"}, res.DelimitedPrefixes)
}

func TestList_DelimitedPrefixesCountTowardLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)
	putKeys(t, gw, "a/1", "b/1", "c/1", "d")

	res, err := gw.List(ctx, &ListOptions{Delimiter: "/", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Objects, 0)
	assert.Equal(t, []string{"a/", "b/"}, res.DelimitedPrefixes)
	assert.True(t, res.Truncated)
	assert.NotEmpty(t, res.Cursor)

	res, err = gw.List(ctx, &ListOptions{Delimiter: "/", Limit: 2, Cursor: res.Cursor})
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, listedKeys(res))
	assert.Equal(t, []string{"c/"}, res.DelimitedPrefixes)
	assert.False(t, res.Truncated)
}

func TestList_IncludeStripsOmittedGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, _ := newTestGateway(t)

	_, err := gw.Put(ctx, "k", BytesPayload([]byte("x")), &PutOptions{
		HTTPMetadata:   &HTTPMetadata{ContentType: "text/plain"},
		CustomMetadata: map[string]string{"a": "b"},
	})
	require.NoError(t, err)

	res, err := gw.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Empty(t, res.Objects[0].HTTPMetadata.ContentType)
	assert.Nil(t, res.Objects[0].CustomMetadata)

	res, err = gw.List(ctx, &ListOptions{Include: Include{HTTPMetadata: true, CustomMetadata: true}})
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "text/plain", res.Objects[0].HTTPMetadata.ContentType)
	assert.Equal(t, map[string]string{"a": "b"}, res.Objects[0].CustomMetadata)
}

func TestList_MalformedCursorRejected(t *testing.T) {
	t.Parallel()
	gw, _ := newTestGateway(t)

	_, err := gw.List(context.Background(), &ListOptions{Cursor: "%%% not a cursor %%%"})
	assert.Equal(t, CodeOptionInvalid, CodeOf(err))
}
