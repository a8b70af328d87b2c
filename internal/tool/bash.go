package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/aidev/agentcore/pkg/types"
)

const (
	defaultBashTimeout = 120 * time.Second
	maxBashTimeout     = 10 * time.Minute
	maxBashOutput      = 30000
)

const bashDescription = `Executes a bash command in a fresh shell process.

Usage:
- command is required
- Optional timeout in milliseconds (max 600000)
- Provide a brief description of what the command does
- Output is captured from stdout and stderr combined`

const bashArgSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "The command to execute"},
		"timeout": {"type": "integer", "description": "Optional timeout in milliseconds (max 600000)"},
		"description": {"type": "string", "description": "Brief description of what this command does"}
	},
	"required": ["command", "description"]
}`

type bashArgs struct {
	Command     string `json:"command"`
	Timeout     int    `json:"timeout,omitempty"`
	Description string `json:"description"`
}

// NewBashDescriptor builds the Bash tool. Permission gating for the
// command happens upstream, in the Agent Runner's CheckPermissions node
// (spec §4.4); by the time Dispatch invokes this handler the call has
// already been approved.
func NewBashDescriptor() types.ToolDescriptor {
	shell := detectShell()
	return types.ToolDescriptor{
		Name:           "Bash",
		Description:    bashDescription,
		Readonly:       false,
		Parallelizable: false,
		ArgSchema:      json.RawMessage(bashArgSchema),
		Handler: func(ctx *types.ToolContext, raw json.RawMessage) (*types.ToolResult, error) {
			var args bashArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("bash: invalid args: %w", err)
			}

			timeout := defaultBashTimeout
			if args.Timeout > 0 {
				timeout = time.Duration(args.Timeout) * time.Millisecond
				if timeout > maxBashTimeout {
					timeout = maxBashTimeout
				}
			}

			return runBash(ctx, shell, args, timeout)
		},
	}
}

func runBash(ctx *types.ToolContext, shell string, args bashArgs, timeout time.Duration) (*types.ToolResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx.Context, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, shell, "/c", args.Command)
	} else {
		cmd = exec.CommandContext(cmdCtx, shell, "-c", args.Command)
	}
	if ctx.WorkingDirectory != "" {
		cmd.Dir = ctx.WorkingDirectory
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	output, runErr := cmd.CombinedOutput()
	timedOut := errors.Is(cmdCtx.Err(), context.DeadlineExceeded)

	result := string(output)
	if len(result) > maxBashOutput {
		result = result[:maxBashOutput] + "\n\n(output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(command timed out after %v)", timeout)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if runErr != nil && !timedOut {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nerror: %v", runErr)
		}
	}

	return &types.ToolResult{
		Content:  result,
		Artifact: map[string]any{"exit_code": exitCode, "description": args.Description, "timed_out": timedOut},
	}, nil
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" && s != "/bin/fish" && s != "/usr/bin/fish" {
		return s
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}
