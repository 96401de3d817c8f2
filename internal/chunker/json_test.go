package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ragchunk/pkg/types"
)

func configLimits(max int) Limits {
	l := DefaultLimits()
	l.MaxConfigTokens = max
	l.TextOverlapTokens = 1
	return l
}

func paths(chunks []*types.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Metadata.Value(types.MetaJSONPath)
	}
	return out
}

func TestJSON_SmallDocumentIsOneChunk(t *testing.T) {
	j := NewJSON(tok, DefaultLimits(), nil)

	chunks, err := j.Chunk(newRequest("package.json", "\n{\"name\": \"demo\"}\n"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, `{"name": "demo"}`, chunks[0].Content)
	assert.Equal(t, FormatJSON, chunks[0].Metadata.Value(types.MetaFormat))
}

func TestJSON_LargeArrayIsWalkedPerItem(t *testing.T) {
	items := make([]string, 50)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id":%d,"label":"item-%02d","description":"a moderately long description for item %02d"}`, i, i, i)
	}
	doc := `{"name":"demo","version":"1.0.0","items":[` + strings.Join(items, ",") + `]}`

	j := NewJSON(tok, configLimits(100), nil)
	chunks, err := j.Chunk(newRequest("data/catalog.json", doc))
	require.NoError(t, err)
	requireWellFormed(t, chunks)
	assertBudget(t, chunks, 100)
	require.Len(t, chunks, 52)

	assert.Equal(t, `"demo"`, chunks[0].Content)
	assert.Equal(t, "$.name", chunks[0].Metadata.Value(types.MetaJSONPath))
	assert.Equal(t, "string", chunks[0].Metadata.Value(types.MetaValueKind))
	assert.Equal(t, "$.version", chunks[1].Metadata.Value(types.MetaJSONPath))

	for i := 0; i < 50; i++ {
		c := chunks[i+2]
		assert.Equal(t, fmt.Sprintf("$.items[%d]", i), c.Metadata.Value(types.MetaJSONPath))
		assert.Equal(t, "object", c.Metadata.Value(types.MetaValueKind))
		assert.Equal(t, items[i], c.Content)
		assert.Equal(t, FormatJSON, c.Metadata.Value(types.MetaFormat))
	}
}

func TestJSON_NestedPaths(t *testing.T) {
	doc := `{"servers":{"primary":{"host":"alpha.example.com","port":8080,"tags":["a","b"]},"backup":{"host":"beta.example.com","port":9090}}}`

	j := NewJSON(tok, configLimits(10), nil)
	chunks, err := j.Chunk(newRequest("servers.json", doc))
	require.NoError(t, err)
	requireWellFormed(t, chunks)

	assert.Equal(t, []string{
		"$.servers.primary.host",
		"$.servers.primary.port",
		"$.servers.primary.tags",
		"$.servers.backup",
	}, paths(chunks))
	assert.Equal(t, []string{
		`"alpha.example.com"`,
		`8080`,
		`["a","b"]`,
		`{"host":"beta.example.com","port":9090}`,
	}, contents(chunks))
	assert.Equal(t, "number", chunks[1].Metadata.Value(types.MetaValueKind))
	assert.Equal(t, "array", chunks[2].Metadata.Value(types.MetaValueKind))
}

func TestJSON_SmallFlatObjectKeptWholeOverBudget(t *testing.T) {
	doc := fmt.Sprintf(`{"a":"%s","b":"%s","c":true}`, strings.Repeat("x", 60), strings.Repeat("y", 60))

	j := NewJSON(tok, configLimits(10), nil)
	chunks, err := j.Chunk(newRequest("flat.json", doc))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc, chunks[0].Content)
	assert.Equal(t, "$", chunks[0].Metadata.Value(types.MetaJSONPath))
	assert.Equal(t, "object", chunks[0].Metadata.Value(types.MetaValueKind))
}

func TestJSON_ArrayWithinSplitFactorStaysWhole(t *testing.T) {
	nums := make([]string, 25)
	for i := range nums {
		nums[i] = fmt.Sprint(1000 + i)
	}
	array := "[" + strings.Join(nums, ",") + "]"

	j := NewJSON(tok, configLimits(20), nil)
	chunks, err := j.Chunk(newRequest("values.json", `{"values":`+array+`}`))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, array, chunks[0].Content)
	assert.Equal(t, "$.values", chunks[0].Metadata.Value(types.MetaJSONPath))
	assert.Greater(t, chunks[0].EstimatedTokenCount, 20)
}

func TestJSON_MalformedFallsBackToPlainText(t *testing.T) {
	doc := `{"name": "demo", "items": [` + strings.Repeat(`"entry", `, 20)
	limits := configLimits(10)
	req := newRequest("broken.json", doc)

	chunks, err := NewJSON(tok, limits, nil).Chunk(req)
	require.NoError(t, err)

	expected, err := NewPlainText(tok, limits.MaxConfigTokens, limits.TextOverlapTokens, nil).Chunk(req)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, contents(expected), contents(chunks))
	_, ok := chunks[0].Metadata.Get(types.MetaJSONPath)
	assert.False(t, ok)
}
