package permission

// RuleSet is the parsed form of the YAML `permissions` block (spec §6).
type RuleSet struct {
	Allow []Rule
	Deny  []Rule
	Ask   []Rule
}

// NewRuleSet parses raw rule strings for each list.
func NewRuleSet(allow, deny, ask []string) RuleSet {
	return RuleSet{
		Allow: ParseRules(allow),
		Deny:  ParseRules(deny),
		Ask:   ParseRules(ask),
	}
}

// Engine evaluates permission decisions. It is pure with respect to
// its rules and arguments; the SessionCache is its only mutable state,
// and that state resets with the session (spec §4.4).
type Engine struct {
	rules RuleSet
	cache *SessionCache
}

// NewEngine constructs an Engine over rules, sharing cache (which may
// also be used directly by callers that need to inspect grants, e.g.
// for test assertions or CLI introspection).
func NewEngine(rules RuleSet, cache *SessionCache) *Engine {
	if cache == nil {
		cache = NewSessionCache()
	}
	return &Engine{rules: rules, cache: cache}
}

// Check decides ALLOW/DENY/ASK for inv per the evaluation order in
// spec §4.4, and returns the Request an ASK (or a denial) should be
// presented with.
func (e *Engine) Check(inv Invocation) (Decision, Request) {
	key := PermissionKey(inv)
	req := Request{ToolName: inv.Tool, Args: inv.Args, Cwd: inv.Cwd, PermissionKey: key}

	if e.cache.Contains(inv.SessionID, key) {
		return Allow, req
	}
	for _, rule := range e.rules.Deny {
		if rule.Matches(inv) {
			return Deny, req
		}
	}
	for _, rule := range e.rules.Allow {
		if rule.Matches(inv) {
			return Allow, req
		}
	}
	return Ask, req
}

// ApplyUserChoice resolves a pending ASK for req. For ChoiceAllowSession
// it records req.PermissionKey in the engine's SessionCache keyed by
// sessionID so a later invocation with the same key short-circuits to
// ALLOW without raising another interrupt (spec §4.4, §8 invariant 6).
func (e *Engine) ApplyUserChoice(sessionID string, req Request, choice Choice) Decision {
	switch choice {
	case ChoiceAllowOnce:
		return Allow
	case ChoiceAllowSession:
		e.cache.Grant(sessionID, req.PermissionKey)
		return Allow
	default:
		return Deny
	}
}

// ResetSession clears the session cache's grants for sessionID.
func (e *Engine) ResetSession(sessionID string) {
	e.cache.Reset(sessionID)
}
