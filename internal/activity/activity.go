package activity

import "time"

// Mode is the semantic activity the agent is currently engaged in.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeTyping    Mode = "typing"
	ModeRunning   Mode = "running"
	ModeThinking  Mode = "thinking"
	ModeCelebrate Mode = "celebrate"
	ModeError     Mode = "error"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeIdle, ModeTyping, ModeRunning, ModeThinking, ModeCelebrate, ModeError}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// Feedback reports whether m is a short-lived feedback mode that is shielded
// from silence decay while its protection window is active.
func (m Mode) Feedback() bool {
	return m == ModeCelebrate || m == ModeError
}

// StateMessage is a complete snapshot pushed to display clients.
type StateMessage struct {
	Mode      Mode  `json:"mode"`
	Timestamp int64 `json:"timestamp"`
}

// NewStateMessage builds a snapshot of mode stamped with t in unix millis.
func NewStateMessage(mode Mode, t time.Time) StateMessage {
	return StateMessage{Mode: mode, Timestamp: t.UnixMilli()}
}

// Broadcaster delivers state changes to connected clients.
type Broadcaster interface {
	Broadcast(msg StateMessage)
}
