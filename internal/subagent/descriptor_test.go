package subagent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAgentMarkdown = `---
agent_name: code-reviewer
description: Reviews a diff for correctness and style.
tools:
  - Read
  - Grep
---
You are a meticulous code reviewer. Read the diff and report issues.
`

func TestParseMarkdownValid(t *testing.T) {
	desc, err := ParseMarkdown([]byte(sampleAgentMarkdown))
	require.NoError(t, err)
	assert.Equal(t, "code-reviewer", desc.Name)
	assert.Equal(t, "Reviews a diff for correctness and style.", desc.Description)
	assert.Equal(t, []string{"Read", "Grep"}, desc.Tools)
	assert.Contains(t, desc.SystemPrompt, "meticulous code reviewer")
}

func TestParseMarkdownWildcardTools(t *testing.T) {
	md := "---\nagent_name: general\ndescription: does things\ntools: \"*\"\n---\nbody\n"
	desc, err := ParseMarkdown([]byte(md))
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, desc.Tools)
	assert.True(t, desc.AllowsTool("AnythingAtAll"))
}

func TestParseMarkdownMissingRequiredFields(t *testing.T) {
	md := "---\ndescription: no name here\n---\nbody\n"
	_, err := ParseMarkdown([]byte(md))
	assert.Error(t, err)
}

func TestParseMarkdownMissingDelimiter(t *testing.T) {
	_, err := ParseMarkdown([]byte("no front matter here"))
	assert.Error(t, err)
}

func writeAgentFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRegistryLoadMergePriorityProjectOverUserOverBuiltin(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "user")
	projectDir := filepath.Join(root, "project")

	writeAgentFile(t, userDir, "general-purpose.md", "---\nagent_name: general-purpose\ndescription: user override\n---\nuser body\n")
	writeAgentFile(t, projectDir, "general-purpose.md", "---\nagent_name: general-purpose\ndescription: project override\n---\nproject body\n")
	writeAgentFile(t, userDir, "researcher.md", "---\nagent_name: researcher\ndescription: digs through code\n---\nresearch body\n")

	reg := NewRegistry()
	errs := reg.Load(userDir, projectDir)
	assert.Empty(t, errs)

	general, ok := reg.Get("general-purpose")
	require.True(t, ok)
	assert.Equal(t, "project override", general.Description, "project definitions must win over user and built-in")

	researcher, ok := reg.Get("researcher")
	require.True(t, ok)
	assert.Equal(t, "digs through code", researcher.Description)
}

func TestRegistryKeepsBuiltinWhenNoFilesDiscovered(t *testing.T) {
	reg := NewRegistry()
	errs := reg.Load(filepath.Join(t.TempDir(), "missing-user"), filepath.Join(t.TempDir(), "missing-project"))
	assert.Empty(t, errs)

	general, ok := reg.Get("general-purpose")
	require.True(t, ok)
	assert.True(t, general.BuiltIn)
}

func TestRegistryLoadReportsMalformedFileButKeepsOthers(t *testing.T) {
	root := t.TempDir()
	userDir := filepath.Join(root, "user")
	writeAgentFile(t, userDir, "broken.md", "no frontmatter at all")
	writeAgentFile(t, userDir, "ok.md", "---\nagent_name: ok-agent\ndescription: fine\n---\nbody\n")

	reg := NewRegistry()
	errs := reg.Load(userDir, filepath.Join(root, "project"))
	assert.Len(t, errs, 1)

	_, ok := reg.Get("ok-agent")
	assert.True(t, ok)
}
