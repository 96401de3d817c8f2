package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nSome body text.\n"), 0o644))

	var out bytes.Buffer
	err := run(cliConfig{ProjectID: "p1", UserID: "u1", FilePath: "docs/README.md"}, path, &out)
	require.NoError(t, err)

	var chunks []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &chunks))
	require.Len(t, chunks, 1)
	assert.Equal(t, "p1_docs_README_md_0", chunks[0]["id"])
	meta := chunks[0]["metadata"].(map[string]interface{})
	assert.Equal(t, "Title", meta["h1_context"])
	assert.Equal(t, "docs/README.md", meta["filePath"])
}

func TestRun_ForcedClass(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": 1}`), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(cliConfig{ProjectID: "p1", UserID: "u1", Class: "text"}, path, &out))

	var chunks []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &chunks))
	require.Len(t, chunks, 1)
	_, hasFormat := chunks[0]["metadata"].(map[string]interface{})["format"]
	assert.False(t, hasFormat)
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	err := run(cliConfig{ProjectID: "p1", UserID: "u1"}, filepath.Join(t.TempDir(), "nope.txt"), &out)
	assert.Error(t, err)
	assert.Zero(t, out.Len())
}

func TestReadInput_SizeCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	data, err := readInput(path, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = readInput(path, 9)
	assert.Error(t, err)
}
