// Package shell provides the exec tool bound to a dabgent.Sandbox.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dabgent/dabgent"
)

const (
	defaultTimeoutSeconds = 300
	maxTimeoutSeconds     = 300
	maxOutputChars        = 4000
)

var blockedSubstrings = []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="}

type execArgs struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

// Tool returns the shell_exec tool. It always needs replay: a shell command
// can mutate the sandbox in ways this package cannot inspect.
func Tool() dabgent.Tool {
	return dabgent.Tool{
		Name:        "shell_exec",
		Description: "Execute a shell command in the workspace directory. Returns stdout + stderr. Use for running scripts, checking files, or system tasks.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"},"timeout":{"type":"integer","description":"Timeout in seconds (default 300)"}},"required":["command"]}`),
		NeedsReplay: true,
		Invoke:      execShell,
	}
}

func execShell(ctx context.Context, sb dabgent.Sandbox, args json.RawMessage) (json.RawMessage, error) {
	var p execArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return nil, &dabgent.ToolArgumentError{Tool: "shell_exec", Message: err.Error()}
	}
	if p.Command == "" {
		return nil, &dabgent.ToolArgumentError{Tool: "shell_exec", Message: "command is required"}
	}

	lower := strings.ToLower(p.Command)
	for _, b := range blockedSubstrings {
		if strings.Contains(lower, b) {
			return nil, &dabgent.ToolArgumentError{Tool: "shell_exec", Message: "command blocked for safety: " + b}
		}
	}

	timeout := defaultTimeoutSeconds
	if p.Timeout > 0 {
		timeout = p.Timeout
	}
	if timeout > maxTimeoutSeconds {
		timeout = maxTimeoutSeconds
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	result, err := sb.Exec(execCtx, []string{"sh", "-c", p.Command}, "")
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, &dabgent.ToolExecutionError{Tool: "shell_exec", Message: fmt.Sprintf("command timed out after %ds", timeout)}
		}
		return nil, &dabgent.ToolExecutionError{Tool: "shell_exec", Message: err.Error()}
	}

	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += result.Stderr
	}
	if len(output) > maxOutputChars {
		output = output[:maxOutputChars] + "...(truncated)"
	}
	if output == "" {
		output = "(no output)"
	}

	return json.Marshal(map[string]any{
		"output":    output,
		"exit_code": result.ExitCode,
		"status":    fmt.Sprintf("exited %d", result.ExitCode),
	})
}
