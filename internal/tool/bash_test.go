package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidev/agentcore/pkg/types"
)

func TestBashCapturesStdoutAndExitCode(t *testing.T) {
	desc := NewBashDescriptor()
	result, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, bashArgs{Command: "echo hi", Description: "say hi"}))
	require.NoError(t, err)
	assert.Contains(t, result.Content, "hi")

	meta := result.Artifact.(map[string]any)
	assert.Equal(t, 0, meta["exit_code"])
}

func TestBashRecordsNonZeroExitCode(t *testing.T) {
	desc := NewBashDescriptor()
	result, err := desc.Handler(&types.ToolContext{Context: context.Background()},
		mustJSON(t, bashArgs{Command: "exit 3", Description: "fail"}))
	require.NoError(t, err)

	meta := result.Artifact.(map[string]any)
	assert.Equal(t, 3, meta["exit_code"])
}

func TestBashRunsInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	desc := NewBashDescriptor()
	result, err := desc.Handler(&types.ToolContext{Context: context.Background(), WorkingDirectory: dir},
		mustJSON(t, bashArgs{Command: "pwd", Description: "print cwd"}))
	require.NoError(t, err)
	assert.Contains(t, result.Content, dir)
}
