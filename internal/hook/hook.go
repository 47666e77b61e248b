// Package hook turns agent tool-usage events into activity modes.
package hook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
)

// ErrInvalidJSON is returned by Decode when the body is not a JSON object.
var ErrInvalidJSON = errors.New("invalid JSON")

var toolModes = map[string]Decision{
	"Write":        {activity.ModeTyping, 5000 * time.Millisecond},
	"Edit":         {activity.ModeTyping, 5000 * time.Millisecond},
	"NotebookEdit": {activity.ModeTyping, 5000 * time.Millisecond},
	"Bash":         {activity.ModeRunning, 10000 * time.Millisecond},
	"Read":         {activity.ModeThinking, 3000 * time.Millisecond},
	"Grep":         {activity.ModeThinking, 3000 * time.Millisecond},
	"Glob":         {activity.ModeThinking, 3000 * time.Millisecond},
	"Task":         {activity.ModeThinking, 3000 * time.Millisecond},
	"WebFetch":     {activity.ModeThinking, 3000 * time.Millisecond},
	"WebSearch":    {activity.ModeThinking, 3000 * time.Millisecond},
}

var (
	celebrate = Decision{activity.ModeCelebrate, 2000 * time.Millisecond}
	failed    = Decision{activity.ModeError, 2000 * time.Millisecond}
)

// Decode parses an untrusted hook body. The whole body must be a single JSON
// value; any read or parse failure, including trailing data, is reported as
// ErrInvalidJSON.
func Decode(r io.Reader) (Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return e, nil
}

// Classify maps e to a Decision. The second result is false when the event
// carries no state change; that is not an error.
func Classify(e Event) (Decision, bool) {
	if e.Type == TypePreToolUse {
		if d, ok := toolModes[e.Tool]; ok {
			return d, true
		}
	}
	if e.Type == TypeStop {
		return celebrate, true
	}
	if e.Type == TypeError || (e.ExitCode != nil && *e.ExitCode != 0) {
		return failed, true
	}
	return Decision{}, false
}
