package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidev/agentcore/internal/freshness"
	"github.com/aidev/agentcore/pkg/types"
)

func TestBatchRunsCallsConcurrentlyAndAggregatesResults(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("bravo"), 0o644))

	registry := NewRegistry()
	registry.Register(NewReadDescriptor(freshness.New()))
	registry.Register(NewBatchDescriptor(registry))

	desc, ok := registry.Get("Batch")
	require.True(t, ok)

	args := mustJSON(t, batchArgs{Calls: []batchCall{
		{Tool: "Read", Args: mustJSON(t, readArgs{FilePath: pathA})},
		{Tool: "Read", Args: mustJSON(t, readArgs{FilePath: pathB})},
	}})

	result, err := desc.Handler(&types.ToolContext{Context: context.Background()}, args)
	require.NoError(t, err)

	meta, ok := result.Artifact.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, meta["successful"])
	assert.Equal(t, 0, meta["failed"])
	assert.Contains(t, result.Content, "alpha")
	assert.Contains(t, result.Content, "bravo")
}

func TestBatchReportsPartialFailureWithoutAbortingSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha"), 0o644))

	registry := NewRegistry()
	registry.Register(NewReadDescriptor(freshness.New()))
	registry.Register(NewBatchDescriptor(registry))

	desc, _ := registry.Get("Batch")
	args := mustJSON(t, batchArgs{Calls: []batchCall{
		{Tool: "Read", Args: mustJSON(t, readArgs{FilePath: path})},
		{Tool: "Read", Args: mustJSON(t, readArgs{FilePath: filepath.Join(dir, "missing.txt")})},
	}})

	result, err := desc.Handler(&types.ToolContext{Context: context.Background()}, args)
	require.NoError(t, err)

	meta := result.Artifact.(map[string]any)
	assert.Equal(t, 1, meta["successful"])
	assert.Equal(t, 1, meta["failed"])
	assert.Contains(t, result.Content, "alpha")
}

func TestBatchRejectsNestedBatchAndEditAndTask(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewBatchDescriptor(registry))
	desc, _ := registry.Get("Batch")

	for _, name := range []string{"Batch", "Edit", "Task"} {
		args := mustJSON(t, batchArgs{Calls: []batchCall{{Tool: name, Args: mustJSON(t, map[string]any{})}}})
		result, err := desc.Handler(&types.ToolContext{Context: context.Background()}, args)
		require.NoError(t, err)
		meta := result.Artifact.(map[string]any)
		assert.Equal(t, 0, meta["successful"])
		assert.Equal(t, 1, meta["failed"])
	}
}

func TestBatchRequiresAtLeastOneCall(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewBatchDescriptor(registry))
	desc, _ := registry.Get("Batch")

	_, err := desc.Handler(&types.ToolContext{Context: context.Background()}, mustJSON(t, batchArgs{}))
	assert.Error(t, err)
}
