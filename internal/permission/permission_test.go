package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionKeyShellUsesFirstToken(t *testing.T) {
	key := PermissionKey(Invocation{Tool: "Bash", Args: map[string]any{"command": "git status --short"}})
	assert.Equal(t, "Shell(git:*)", key)
}

func TestPermissionKeyShellResolvesEnvPrefixedCommand(t *testing.T) {
	key := PermissionKey(Invocation{Tool: "Bash", Args: map[string]any{"command": "FOO=bar git commit -m 'msg'"}})
	assert.Equal(t, "Shell(git:*)", key)
}

func TestPermissionKeyFileToolUsesRelativePath(t *testing.T) {
	key := PermissionKey(Invocation{Tool: "Write", Args: map[string]any{"file_path": "/repo/NOTES.md"}, Cwd: "/repo"})
	assert.Equal(t, "Write(NOTES.md)", key)
}

func TestPermissionKeyOtherToolIsBareName(t *testing.T) {
	assert.Equal(t, "Read", PermissionKey(Invocation{Tool: "Read"}))
}

func TestEngineDenyTakesPrecedenceOverAllow(t *testing.T) {
	rules := NewRuleSet([]string{"Bash"}, []string{"Bash(rm:*)"}, nil)
	e := NewEngine(rules, nil)

	decision, _ := e.Check(Invocation{SessionID: "s1", Tool: "Bash", Args: map[string]any{"command": "rm -rf /tmp/x"}})
	assert.Equal(t, Deny, decision)
}

func TestEngineWildcardDenyMatchesEveryInvocation(t *testing.T) {
	rules := NewRuleSet(nil, []string{"*"}, nil)
	e := NewEngine(rules, nil)

	decision, _ := e.Check(Invocation{SessionID: "s1", Tool: "Read"})
	assert.Equal(t, Deny, decision)
}

func TestEngineDefaultsToAsk(t *testing.T) {
	e := NewEngine(RuleSet{}, nil)
	decision, req := e.Check(Invocation{SessionID: "s1", Tool: "Write", Args: map[string]any{"file_path": "a.txt"}})
	assert.Equal(t, Ask, decision)
	assert.Equal(t, "Write(a.txt)", req.PermissionKey)
}

func TestEngineAllowSessionCachesAcrossInvocations(t *testing.T) {
	e := NewEngine(RuleSet{}, nil)
	inv := Invocation{SessionID: "s1", Tool: "Write", Args: map[string]any{"file_path": "NOTES.md"}}

	decision, req := e.Check(inv)
	require.Equal(t, Ask, decision)

	resolved := e.ApplyUserChoice("s1", req, ChoiceAllowSession)
	assert.Equal(t, Allow, resolved)

	decision2, _ := e.Check(inv)
	assert.Equal(t, Allow, decision2, "second invocation with the same permission_key must not raise another interrupt")
}

func TestEngineAllowOnceDoesNotCache(t *testing.T) {
	e := NewEngine(RuleSet{}, nil)
	inv := Invocation{SessionID: "s1", Tool: "Write", Args: map[string]any{"file_path": "NOTES.md"}}

	_, req := e.Check(inv)
	e.ApplyUserChoice("s1", req, ChoiceAllowOnce)

	decision2, _ := e.Check(inv)
	assert.Equal(t, Ask, decision2)
}

func TestEngineDenyChoiceResolvesDeny(t *testing.T) {
	e := NewEngine(RuleSet{}, nil)
	inv := Invocation{SessionID: "s1", Tool: "Bash", Args: map[string]any{"command": "rm -rf /"}}
	_, req := e.Check(inv)
	assert.Equal(t, Deny, e.ApplyUserChoice("s1", req, ChoiceDeny))
}

func TestEngineSessionCacheIsolatedPerSession(t *testing.T) {
	e := NewEngine(RuleSet{}, nil)
	inv := Invocation{Tool: "Write", Args: map[string]any{"file_path": "NOTES.md"}}

	inv.SessionID = "s1"
	_, req := e.Check(inv)
	e.ApplyUserChoice("s1", req, ChoiceAllowSession)

	inv.SessionID = "s2"
	decision, _ := e.Check(inv)
	assert.Equal(t, Ask, decision, "grants in one session must not leak into another")
}

func TestRuleMatchesShellGlobPattern(t *testing.T) {
	rule := ParseRule("Bash(git:status *)")
	assert.True(t, rule.Matches(Invocation{Tool: "Bash", Args: map[string]any{"command": "git status --short"}}))
	assert.False(t, rule.Matches(Invocation{Tool: "Bash", Args: map[string]any{"command": "git commit"}}))
}

func TestRuleWildcardToolMatchesAll(t *testing.T) {
	rule := ParseRule("*")
	assert.True(t, rule.Matches(Invocation{Tool: "AnyTool"}))
}
