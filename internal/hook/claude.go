package hook

import (
	"encoding/json"
	"fmt"
	"io"
)

// FromClaudeInput reads a Claude Code hook payload from r and translates it
// into an Event. eventName overrides hook_event_name when non-empty, which
// lets one binary be registered under several hook types.
func FromClaudeInput(r io.Reader, eventName string) (Event, error) {
	var in ClaudeInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Event{}, fmt.Errorf("parse hook input: %w", err)
	}
	if eventName == "" {
		eventName = in.HookEventName
	}
	if eventName == "" {
		return Event{}, fmt.Errorf("parse hook input: missing hook_event_name")
	}

	e := Event{Type: eventName, Tool: in.ToolName}
	if in.ToolResponse != nil {
		e.ExitCode = in.ToolResponse.ExitCode
	}
	return e, nil
}
