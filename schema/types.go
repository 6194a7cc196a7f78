package schema

import (
	"fmt"
	"strings"
	"time"
)

// SessionID identifies a remote shell session. It is assigned by the
// transport when a session opens.
type SessionID string

// ProfileID identifies a connection profile.
type ProfileID string

// TabID identifies a terminal tab.
type TabID string

// AuthType selects how a profile authenticates.
type AuthType string

const (
	// AuthPassword authenticates with a password stored in the vault.
	AuthPassword AuthType = "password"
	// AuthKey authenticates with a private key stored in the vault.
	AuthKey AuthType = "key"
	// AuthAgent authenticates through the local ssh-agent.
	AuthAgent AuthType = "agent"
)

// LocalHost selects the local PTY transport instead of SSH.
const LocalHost = "local"

// DefaultSSHPort is used when a profile leaves the port empty.
const DefaultSSHPort = 22

// Profile describes a saved connection target.
type Profile struct {
	ID       ProfileID
	Name     string
	Host     string
	Port     int
	User     string
	AuthType AuthType
	Group    string
}

// Addr returns host:port.
func (p Profile) Addr() string {
	port := p.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return fmt.Sprintf("%s:%d", p.Host, port)
}

// IsLocal reports whether the profile targets the local shell.
func (p Profile) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(p.Host), LocalHost)
}

// Credential carries the secret material used to open a session.
type Credential struct {
	Password   string
	PrivateKey []byte
	// TOTPSecret answers keyboard-interactive verification prompts when set.
	TOTPSecret string
}

// Empty reports whether no secret is present.
func (c Credential) Empty() bool {
	return c.Password == "" && len(c.PrivateKey) == 0
}

// Dimensions is a terminal grid size.
type Dimensions struct {
	Cols int
	Rows int
}

// Valid reports whether both sides are positive.
func (d Dimensions) Valid() bool {
	return d.Cols > 0 && d.Rows > 0
}

// LifecycleState is the state of a session.
type LifecycleState int

const (
	// StateConnecting is the initial state until the transport answers.
	StateConnecting LifecycleState = iota
	// StateConnected means the session accepts input.
	StateConnected
	// StateFailed means the open was rejected.
	StateFailed
	// StateClosed is terminal.
	StateClosed
)

func (s LifecycleState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CommandSuggestion is one ranked completion candidate.
type CommandSuggestion struct {
	Cmd       string
	Frequency int
	LastUsed  int64
}

// HistoryEntry is a stored executed command.
type HistoryEntry struct {
	ID         string
	ProfileID  ProfileID
	Cmd        string
	Timestamp  time.Time
	ExitCode   *int
	DurationMs *int64
}

// MacroSlots is the number of macro slots ("1".."10").
const MacroSlots = 10

// Macros maps a slot ("1".."10") to its command.
type Macros map[string]string

// OutputEvent is one chunk of remote output for a session.
type OutputEvent struct {
	SessionID SessionID
	Data      []byte
	// EOF is set on the last event of a session stream.
	EOF bool
}

// AssistantAnswer is a reply from the assistant with the shell commands
// found in its fenced code blocks.
type AssistantAnswer struct {
	Text     string
	Commands []string
}
