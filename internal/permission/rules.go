package permission

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Rule is one parsed entry of an allow/deny/ask list. Format:
// `ToolName` or `ToolName(pattern)` (spec §4.4).
type Rule struct {
	Tool    string
	Pattern string // empty means "matches all invocations of Tool"
	Raw     string
}

var ruleRe = regexp.MustCompile(`^([^(]+?)(?:\((.*)\))?$`)

// ParseRule parses one rule string.
func ParseRule(s string) Rule {
	s = strings.TrimSpace(s)
	m := ruleRe.FindStringSubmatch(s)
	if m == nil {
		return Rule{Tool: s, Raw: s}
	}
	return Rule{Tool: strings.TrimSpace(m[1]), Pattern: m[2], Raw: s}
}

// ParseRules parses a list of rule strings.
func ParseRules(strs []string) []Rule {
	rules := make([]Rule, 0, len(strs))
	for _, s := range strs {
		rules = append(rules, ParseRule(s))
	}
	return rules
}

// Matches reports whether rule applies to inv.
func (r Rule) Matches(inv Invocation) bool {
	if r.Tool != "*" && !strings.EqualFold(r.Tool, inv.Tool) {
		return false
	}
	if r.Pattern == "" {
		return true
	}

	if shellTools[inv.Tool] {
		command, _ := inv.Args["command"].(string)
		return matchShellPattern(r.Pattern, command)
	}

	path, _ := inv.Args["file_path"].(string)
	return matchFilePattern(r.Pattern, relativePath(inv.Cwd, path))
}

// matchFilePattern matches a file-tool rule pattern against a relative
// path. Recursive patterns (containing "**") are matched with
// doublestar, the same split the teacher's matchWildcard
// (internal/agent/agent.go) makes between simple wildcards and
// directory-spanning ones; everything else uses the spec's `*` <-> `.*`
// grammar so a bare "*.md" still matches across path separators like
// the rest of the file-tool pattern grammar (spec §4.4).
func matchFilePattern(pattern, path string) bool {
	if strings.Contains(pattern, "**") {
		matched, err := doublestar.Match(pattern, path)
		return err == nil && matched
	}
	return matchGlob(pattern, path)
}

// matchShellPattern implements the `<cmd>:<glob>` grammar: the first
// token of the command must equal cmd (or cmd is "*"), and the
// remainder of the command text (everything after that first token)
// must match glob (glob `*` <-> regex `.*`).
func matchShellPattern(pattern, command string) bool {
	cmdPart, globPart, ok := strings.Cut(pattern, ":")
	if !ok {
		// No colon: treat the whole pattern as a glob over the command
		// text, with no constraint on the leading token.
		return matchGlob(pattern, command)
	}

	first := parseFirstToken(command)
	if cmdPart != "*" && cmdPart != first {
		return false
	}
	remainder := strings.TrimSpace(command)
	if first != "" {
		remainder = strings.TrimSpace(strings.TrimPrefix(remainder, first))
	}
	return matchGlob(globPart, remainder)
}

// matchGlob implements `*` (meaning "any path"/"any text") and the
// glob-to-regex translation used by both the shell and file-tool
// pattern grammars.
func matchGlob(pattern, s string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	re := globToRegexp(pattern)
	return re.MatchString(s)
}

func globToRegexp(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			sb.WriteString(regexp.QuoteMeta(string(r)))
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		// Fall back to a literal, never-match-by-accident pattern.
		return regexp.MustCompile(regexp.QuoteMeta(pattern))
	}
	return re
}
