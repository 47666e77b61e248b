package hook_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/agent-pulse/internal/activity"
	"github.com/zsprackett/agent-pulse/internal/hook"
)

func exitCode(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		event      hook.Event
		ok         bool
		mode       activity.Mode
		protection time.Duration
	}{
		{"write", hook.Event{Type: "PreToolUse", Tool: "Write"}, true, activity.ModeTyping, 5 * time.Second},
		{"edit", hook.Event{Type: "PreToolUse", Tool: "Edit"}, true, activity.ModeTyping, 5 * time.Second},
		{"notebook edit", hook.Event{Type: "PreToolUse", Tool: "NotebookEdit"}, true, activity.ModeTyping, 5 * time.Second},
		{"bash", hook.Event{Type: "PreToolUse", Tool: "Bash"}, true, activity.ModeRunning, 10 * time.Second},
		{"read", hook.Event{Type: "PreToolUse", Tool: "Read"}, true, activity.ModeThinking, 3 * time.Second},
		{"grep", hook.Event{Type: "PreToolUse", Tool: "Grep"}, true, activity.ModeThinking, 3 * time.Second},
		{"glob", hook.Event{Type: "PreToolUse", Tool: "Glob"}, true, activity.ModeThinking, 3 * time.Second},
		{"task", hook.Event{Type: "PreToolUse", Tool: "Task"}, true, activity.ModeThinking, 3 * time.Second},
		{"web fetch", hook.Event{Type: "PreToolUse", Tool: "WebFetch"}, true, activity.ModeThinking, 3 * time.Second},
		{"web search", hook.Event{Type: "PreToolUse", Tool: "WebSearch"}, true, activity.ModeThinking, 3 * time.Second},
		{"stop", hook.Event{Type: "Stop"}, true, activity.ModeCelebrate, 2 * time.Second},
		{"error", hook.Event{Type: "Error"}, true, activity.ModeError, 2 * time.Second},
		{"post tool use failed", hook.Event{Type: "PostToolUse", Tool: "Bash", ExitCode: exitCode(1)}, true, activity.ModeError, 2 * time.Second},
		{"unknown type failed", hook.Event{Type: "Whatever", ExitCode: exitCode(127)}, true, activity.ModeError, 2 * time.Second},
		{"fractional exit code", hook.Event{Type: "PostToolUse", ExitCode: exitCode(0.5)}, true, activity.ModeError, 2 * time.Second},
		{"exit code beyond int range", hook.Event{Type: "PostToolUse", ExitCode: exitCode(1e20)}, true, activity.ModeError, 2 * time.Second},
		{"post tool use ok", hook.Event{Type: "PostToolUse", Tool: "Bash", ExitCode: exitCode(0)}, false, "", 0},
		{"post tool use", hook.Event{Type: "PostToolUse", Tool: "Write"}, false, "", 0},
		{"unknown tool", hook.Event{Type: "PreToolUse", Tool: "TodoWrite"}, false, "", 0},
		{"tool is case sensitive", hook.Event{Type: "PreToolUse", Tool: "bash"}, false, "", 0},
		{"empty", hook.Event{}, false, "", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, ok := hook.Classify(tc.event)
			if ok != tc.ok {
				t.Fatalf("ok: got %v want %v", ok, tc.ok)
			}
			if d.Mode != tc.mode || d.Protection != tc.protection {
				t.Errorf("got (%q, %v) want (%q, %v)", d.Mode, d.Protection, tc.mode, tc.protection)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	e, err := hook.Decode(strings.NewReader(`{"type":"PreToolUse","tool":"Bash","exitCode":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != "PreToolUse" || e.Tool != "Bash" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.ExitCode == nil || *e.ExitCode != 2 {
		t.Errorf("exit code not decoded: %+v", e.ExitCode)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, body := range []string{
		"", "not json", `{"type":`, `["Stop"]`, `{"exitCode":"x"}`,
		`{"type":"Stop"}x`, `{"type":"Stop"}{`, `{"type":"Stop"} {"type":"Error"}`,
	} {
		_, err := hook.Decode(strings.NewReader(body))
		if !errors.Is(err, hook.ErrInvalidJSON) {
			t.Errorf("Decode(%q): expected ErrInvalidJSON, got %v", body, err)
		}
	}
}

func TestDecode_NumericExitCodes(t *testing.T) {
	cases := map[string]float64{
		`{"type":"Error","exitCode":1.0}`:        1,
		`{"type":"PostToolUse","exitCode":1e20}`: 1e20,
		`{"type":"PostToolUse","exitCode":-1}`:   -1,
		`{"type":"PostToolUse","exitCode":0.0}`:  0,
	}
	for body, want := range cases {
		e, err := hook.Decode(strings.NewReader(body))
		if err != nil {
			t.Errorf("Decode(%q): %v", body, err)
			continue
		}
		if e.ExitCode == nil || *e.ExitCode != want {
			t.Errorf("Decode(%q): exit code %v want %v", body, e.ExitCode, want)
		}
		d, ok := hook.Classify(e)
		if want != 0 && (!ok || d.Mode != activity.ModeError) {
			t.Errorf("Decode(%q): classified as (%q, %v), want error", body, d.Mode, ok)
		}
		if want == 0 && ok {
			t.Errorf("Decode(%q): zero exit code should be ignored, got %q", body, d.Mode)
		}
	}
}

func TestDecode_TrailingWhitespace(t *testing.T) {
	if _, err := hook.Decode(strings.NewReader("{\"type\":\"Stop\"}\n")); err != nil {
		t.Errorf("trailing newline should be accepted: %v", err)
	}
}

func TestFromClaudeInput(t *testing.T) {
	in := `{"session_id":"abc","hook_event_name":"PreToolUse","tool_name":"Edit","tool_input":{"file_path":"x.go"}}`
	e, err := hook.FromClaudeInput(strings.NewReader(in), "")
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != "PreToolUse" || e.Tool != "Edit" || e.ExitCode != nil {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestFromClaudeInput_ExitCodeAndOverride(t *testing.T) {
	in := `{"hook_event_name":"PostToolUse","tool_name":"Bash","tool_response":{"exit_code":1}}`
	e, err := hook.FromClaudeInput(strings.NewReader(in), "Error")
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != "Error" {
		t.Errorf("override ignored: got %q", e.Type)
	}
	if e.ExitCode == nil || *e.ExitCode != 1 {
		t.Errorf("exit code not carried over: %+v", e.ExitCode)
	}
}

func TestFromClaudeInput_MissingEventName(t *testing.T) {
	if _, err := hook.FromClaudeInput(strings.NewReader(`{"tool_name":"Bash"}`), ""); err == nil {
		t.Error("expected error for missing hook_event_name")
	}
	if _, err := hook.FromClaudeInput(strings.NewReader(`garbage`), "Stop"); err == nil {
		t.Error("expected error for unparsable input")
	}
}
