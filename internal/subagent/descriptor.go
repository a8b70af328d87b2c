// Package subagent discovers sub-agent descriptors from Markdown
// front-matter files and drives a filtered child Agent Runner for the
// Task tool (spec §4.9, C9). Grounded on
// original_source/ai_dev/utils/subagent.py's scan_sub_agent_directory
// and load_all_sub_agents (project > user > built-in merge, the
// unconditional general-purpose fallback), rewritten in the teacher's
// registry-with-mutex idiom from internal/agent/registry.go.
package subagent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aidev/agentcore/pkg/types"
)

// BuiltinGeneralPurposeSystemPrompt is the fallback agent's system
// prompt, grounded on subagent.py's
// build_in_general_agent_system_prompt.
const BuiltinGeneralPurposeSystemPrompt = `You are a general-purpose agent. Given the user's task, use the tools available to complete it efficiently and thoroughly.

When to use your capabilities:
- Searching for code, configurations, and patterns across large codebases
- Analyzing multiple files to understand system architecture
- Investigating complex questions that require exploring many files
- Performing multi-step research tasks

Guidelines:
- For file searches: use Grep or Glob when searching broadly, Read when the path is already known.
- For analysis: start broad and narrow down. Try more than one search strategy if the first yields nothing.
- Be thorough: check multiple locations, consider different naming conventions, look for related files.
- Complete tasks directly using the tools available, without asking the user for clarification.`

// BuiltinGeneralPurpose returns the unconditional fallback descriptor
// registered in code rather than discovered from disk (spec §6:
// "mirrors internal/agent/agent.go's BuiltInAgents()").
func BuiltinGeneralPurpose() types.AgentDescriptor {
	return types.AgentDescriptor{
		Name:         "general-purpose",
		Description:  "General-purpose agent for researching complex questions, searching code, and executing multi-step tasks.",
		SystemPrompt: BuiltinGeneralPurposeSystemPrompt,
		Tools:        []string{"*"},
		BuiltIn:      true,
	}
}

// frontMatter is the parsed shape of a Markdown agent file's `---`
// delimited YAML header (spec §6 EXPANSION: agent_name, description,
// system_prompt?, tools?: "*"|[name], model?).
type frontMatter struct {
	AgentName    string   `yaml:"agent_name"`
	Description  string   `yaml:"description"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        yamlTool `yaml:"tools"`
	Model        string   `yaml:"model"`
}

// yamlTool accepts either a bare "*" scalar or an explicit YAML list,
// matching the Python original's `tools: str | list[str]` field.
type yamlTool struct {
	values []string
}

func (t *yamlTool) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.values = []string{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("subagent: tools field must be a string or list of strings: %w", err)
	}
	t.values = list
	return nil
}

// ParseMarkdown parses one agent descriptor file's content: a
// `---`-delimited YAML front-matter block followed by the system
// prompt body. A non-empty system_prompt header field takes
// precedence over the body.
func ParseMarkdown(data []byte) (types.AgentDescriptor, error) {
	text := string(data)
	const delim = "---"

	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), delim) {
		return types.AgentDescriptor{}, fmt.Errorf("subagent: missing front-matter delimiter")
	}
	text = strings.TrimLeft(text, "\r\n")
	text = strings.TrimPrefix(text, delim)

	end := strings.Index(text, "\n"+delim)
	if end < 0 {
		return types.AgentDescriptor{}, fmt.Errorf("subagent: unterminated front-matter block")
	}
	header := text[:end]
	body := strings.TrimLeft(text[end+len(delim)+1:], "\r\n")

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return types.AgentDescriptor{}, fmt.Errorf("subagent: parse front-matter: %w", err)
	}
	if fm.AgentName == "" || fm.Description == "" {
		return types.AgentDescriptor{}, fmt.Errorf("subagent: missing required agent_name or description")
	}

	prompt := strings.TrimSpace(fm.SystemPrompt)
	if prompt == "" {
		prompt = strings.TrimSpace(body)
	}

	return types.AgentDescriptor{
		Name:         fm.AgentName,
		Description:  fm.Description,
		SystemPrompt: prompt,
		Tools:        fm.Tools.values,
		Model:        fm.Model,
	}, nil
}

// scanDirectory reads every *.md file directly under dir (no
// recursion, matching scan_sub_agent_directory) and parses each as an
// AgentDescriptor. A file that fails to parse is skipped with its
// error returned alongside the descriptors that did parse, so one bad
// file never hides the rest (spec §6: discovery is best-effort).
func scanDirectory(dir string) ([]types.AgentDescriptor, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	var descriptors []types.AgentDescriptor
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("subagent: read %s: %w", path, err))
			continue
		}
		desc, err := ParseMarkdown(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("subagent: %s: %w", path, err))
			continue
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, errs
}

// Registry holds every discovered sub-agent descriptor, keyed by
// name, with project > user > built-in precedence applied at Load time
// (spec §6).
type Registry struct {
	mu    sync.RWMutex
	byName map[string]types.AgentDescriptor
}

// NewRegistry returns a Registry containing only the built-in
// general-purpose agent; call Load to discover project/user agents.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]types.AgentDescriptor)}
	r.byName[BuiltinGeneralPurpose().Name] = BuiltinGeneralPurpose()
	return r
}

// Load discovers descriptors under userDir and projectDir and merges
// them over the built-in set with project > user > built-in priority
// (spec §6, subagent.py's available_sub_agents merge). It returns the
// parse errors encountered, if any, without failing the load: a
// malformed file never prevents the rest of the agents from loading.
func (r *Registry) Load(userDir, projectDir string) []error {
	var allErrs []error

	userAgents, errs := scanDirectory(userDir)
	allErrs = append(allErrs, errs...)
	projectAgents, errs := scanDirectory(projectDir)
	allErrs = append(allErrs, errs...)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range userAgents {
		r.byName[d.Name] = d
	}
	for _, d := range projectAgents {
		r.byName[d.Name] = d
	}
	return allErrs
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (types.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// List returns every registered descriptor, sorted by name.
func (r *Registry) List() []types.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AgentDescriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UserAgentsDir and ProjectAgentsDir compute the two discovery roots
// from spec §6: `<home>/.ai_dev/agents` and `<project>/.ai_dev/agents`.
func UserAgentsDir(homeDir string) string {
	return filepath.Join(homeDir, ".ai_dev", "agents")
}

func ProjectAgentsDir(projectDir string) string {
	return filepath.Join(projectDir, ".ai_dev", "agents")
}
