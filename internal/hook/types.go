package hook

import (
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
)

// Event types sent by the agent's hooks.
const (
	TypePreToolUse  = "PreToolUse"
	TypePostToolUse = "PostToolUse"
	TypeStop        = "Stop"
	TypeError       = "Error"
)

// Event is the body of POST /hook.
type Event struct {
	Type     string   `json:"type"`
	Tool     string   `json:"tool,omitempty"`
	// ExitCode is any JSON number; only zero versus non-zero matters.
	ExitCode *float64 `json:"exitCode,omitempty"`
}

// Decision is the state change an Event maps to.
type Decision struct {
	Mode       activity.Mode
	Protection time.Duration
}

// ClaudeInput is the subset of the payload Claude Code writes to a hook
// command's stdin that the relay cares about.
//
// See: https://docs.anthropic.com/en/docs/claude-code/hooks
type ClaudeInput struct {
	SessionID     string        `json:"session_id"`
	HookEventName string        `json:"hook_event_name"`
	ToolName      string        `json:"tool_name"`
	ToolResponse  *toolResponse `json:"tool_response,omitempty"`
}

type toolResponse struct {
	ExitCode *float64 `json:"exit_code,omitempty"`
}
