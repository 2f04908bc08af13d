package hook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/notacms/internal/record"
)

func TestCompile_Empty(t *testing.T) {
	h, err := Compile(nil)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestCompile_KeepDrops(t *testing.T) {
	h, err := Compile([]Rule{{Types: []string{"article"}, Keep: "fields.draft != true"}})
	require.NoError(t, err)

	ctx := context.Background()
	draft := record.New("article", "p1", map[string]any{"draft": true})
	got, err := h(ctx, "article", draft)
	require.NoError(t, err)
	assert.Nil(t, got)

	published := record.New("article", "p2", map[string]any{"draft": false})
	got, err = h(ctx, "article", published)
	require.NoError(t, err)
	assert.Same(t, published, got)

	other := record.New("tag", "t1", map[string]any{"draft": true})
	got, err = h(ctx, "tag", other)
	require.NoError(t, err)
	assert.Same(t, other, got, "rule limited to article")
}

func TestCompile_SetFields(t *testing.T) {
	h, err := Compile([]Rule{{Set: map[string]string{
		"title":  "upper(fields.title)",
		"ref":    "collection + ':' + contentId",
		"legacy": "nil",
		"words":  "len(fields.title)",
	}}})
	require.NoError(t, err)

	rec := record.New("article", "p1", map[string]any{"title": "hi", "legacy": "x"})
	got, err := h(context.Background(), "article", rec)
	require.NoError(t, err)
	require.Same(t, rec, got)

	assert.Equal(t, "HI", got.Get("title"))
	assert.Equal(t, "article:p1", got.Get("ref"))
	assert.Equal(t, int64(2), got.Get("words"), "set expressions see fields from before the rule")
	_, ok := got.Fields["legacy"]
	assert.False(t, ok)
}

func TestCompile_RulesRunInOrder(t *testing.T) {
	h, err := Compile([]Rule{
		{Set: map[string]string{"n": "1"}},
		{Keep: "fields.n == 1", Set: map[string]string{"n": "fields.n + 1"}},
	})
	require.NoError(t, err)

	got, err := h(context.Background(), "x", record.New("x", "1", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Get("n"))
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile([]Rule{{Keep: "fields.("}})
	assert.Error(t, err)

	_, err = Compile([]Rule{{Set: map[string]string{"contentId": "'x'"}}})
	assert.Error(t, err)
}

func TestHook_NonBoolKeepIsError(t *testing.T) {
	h, err := Compile([]Rule{{Keep: "fields.title"}})
	require.NoError(t, err)

	_, err = h(context.Background(), "article", record.New("article", "p1", map[string]any{"title": "hi"}))
	assert.Error(t, err)
}
