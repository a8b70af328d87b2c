package permission

import (
	"fmt"
	"path/filepath"
)

// shellTools and fileTools name the tools whose arguments feed the
// PermissionKey fingerprint rules from spec §3/§4.4. Unlisted tools
// fingerprint to their bare name.
var shellTools = map[string]bool{"Bash": true}
var fileTools = map[string]bool{"Write": true, "Edit": true}

// PermissionKey computes the deterministic fingerprint used as the
// session-cache key (spec §3):
//   - shell:            Shell(<first-token>:*)
//   - file write/edit:  <Tool>(<relative-path>)
//   - otherwise:        the tool name
func PermissionKey(inv Invocation) string {
	switch {
	case shellTools[inv.Tool]:
		command, _ := inv.Args["command"].(string)
		return fmt.Sprintf("Shell(%s:*)", parseFirstToken(command))
	case fileTools[inv.Tool]:
		path, _ := inv.Args["file_path"].(string)
		return fmt.Sprintf("%s(%s)", inv.Tool, relativePath(inv.Cwd, path))
	default:
		return inv.Tool
	}
}

func relativePath(cwd, path string) string {
	if cwd == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return path
	}
	return rel
}
