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

func setupEditable(t *testing.T, content string) (path string, tracker *freshness.Tracker) {
	t.Helper()
	dir := t.TempDir()
	path = filepath.Join(dir, "edit.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tracker = freshness.New()
	_, err := NewReadDescriptor(tracker).Handler(&types.ToolContext{Context: context.Background()}, mustJSON(t, readArgs{FilePath: path}))
	require.NoError(t, err)
	return path, tracker
}

func TestEditReplacesUniqueOccurrence(t *testing.T) {
	path, tracker := setupEditable(t, "Hello World")
	desc := NewEditDescriptor(tracker)

	_, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "World", NewString: "Go"}))
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "Hello Go", string(data))
}

func TestEditRefusesWithoutPriorRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edit.txt")
	require.NoError(t, os.WriteFile(path, []byte("Hello World"), 0o644))

	desc := NewEditDescriptor(freshness.New())
	_, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "World", NewString: "Go"}))

	var violation *types.FreshnessViolation
	assert.ErrorAs(t, err, &violation)
}

func TestEditFailsOnAmbiguousMatch(t *testing.T) {
	path, tracker := setupEditable(t, "foo bar foo baz foo")
	desc := NewEditDescriptor(tracker)

	_, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "foo", NewString: "qux"}))
	assert.ErrorContains(t, err, "3 times")
}

func TestEditReplaceAllReplacesEveryOccurrence(t *testing.T) {
	path, tracker := setupEditable(t, "foo bar foo baz foo")
	desc := NewEditDescriptor(tracker)

	_, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "foo", NewString: "qux", ReplaceAll: true}))
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "qux bar qux baz qux", string(data))
}

func TestEditRejectsIdenticalStrings(t *testing.T) {
	path, tracker := setupEditable(t, "Hello World")
	desc := NewEditDescriptor(tracker)

	_, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "Hello", NewString: "Hello"}))
	assert.ErrorContains(t, err, "differ")
}

func TestEditFallsBackToLineEndingNormalization(t *testing.T) {
	path, tracker := setupEditable(t, "Hello\r\nWorld")
	desc := NewEditDescriptor(tracker)

	result, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "Hello\nWorld", NewString: "Goodbye\nWorld"}))
	require.NoError(t, err)
	assert.Contains(t, result.Content, "normalized")
}

func TestEditFallsBackToFuzzyMatch(t *testing.T) {
	path, tracker := setupEditable(t, "Hello Wonderful World")
	desc := NewEditDescriptor(tracker)

	result, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, editArgs{FilePath: path, OldString: "Hello Wonderfull World", NewString: "Goodbye World"}))
	require.NoError(t, err)
	assert.Contains(t, result.Content, "fuzzy match")
}

func TestSimilarityMatchesKnownValues(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("hello", "hello"), 0.01)
	assert.InDelta(t, 0.0, similarity("hello", ""), 0.01)
	assert.InDelta(t, 1.0, similarity("", ""), 0.01)
	assert.Greater(t, similarity("hello", "helo"), 0.7)
}
