package session

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a call session through its lifecycle. Transitions are
// monotonic: a session never moves back to an earlier status.
type Status string

const (
	StatusPending        Status = "pending"
	StatusActive         Status = "active"
	StatusCalling        Status = "calling"
	StatusInConversation Status = "in_conversation"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// statusRank orders statuses for the monotonic transition check. Terminal
// statuses share a rank so no terminal status can replace another.
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusActive:         1,
	StatusCalling:        2,
	StatusInConversation: 3,
	StatusCompleted:      4,
	StatusFailed:         4,
	StatusCancelled:      4,
}

// IsTerminal reports whether the status ends the session lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Role identifies who produced a turn.
type Role string

const (
	RoleAgent      Role = "agent"
	RoleUser       Role = "user"
	RoleToolResult Role = "tool_result"
)

// Turn is one utterance in a session transcript. Turns are append-only and
// strictly ordered by arrival.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Phase tracks where the dialogue state machine is between callbacks.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseAwaitUser  Phase = "await_user"
	PhaseTerminated Phase = "terminated"
)

// DialogueState is the engine-owned portion of a session. SystemInstructions
// is built exactly once per session and never rebuilt.
type DialogueState struct {
	Phase              Phase
	ShouldEnd          bool
	SystemInstructions string
}

// Config is the immutable snapshot of campaign, business, customer, and agent
// settings a session is created with. It is produced by the campaign
// normalizer and never mutated after session creation.
type Config struct {
	CampaignID      string
	Phone           string
	CustomerName    string
	CustomerEmail   string
	BusinessName    string
	AgentName       string
	OfferDescription string
	DiscountPercent int
	Voice           string
	Language        string
}

// Session is one end-to-end outbound conversation attempt. The registry owns
// every session; callers only ever see value snapshots.
type Session struct {
	ID             uuid.UUID
	Config         Config
	Status         Status
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	ExternalCallID string
	Turns          []Turn
	Dialogue       DialogueState
	ErrorMessage   string
}

// snapshot returns a deep copy safe to hand outside the registry lock.
func (s *Session) snapshot() Session {
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	copy(out.Turns, s.Turns)
	return out
}
