package core

import (
	"context"

	"pkt.systems/ait/schema"
)

// Transport opens and drives remote shell sessions. Output is delivered out
// of band through an EventSource keyed by the returned session id.
type Transport interface {
	Open(ctx context.Context, profile schema.Profile, cred schema.Credential, size schema.Dimensions) (schema.SessionID, error)
	Write(ctx context.Context, id schema.SessionID, data []byte) error
	Resize(ctx context.Context, id schema.SessionID, size schema.Dimensions) error
	Close(ctx context.Context, id schema.SessionID) error
	// Exec runs command out of band on the session's connection and returns
	// its combined output.
	Exec(ctx context.Context, id schema.SessionID, command string) (string, error)
}

// EventSource delivers session output. Events arrive on the first channel
// until cancel is called, which closes the second.
type EventSource interface {
	Subscribe(id schema.SessionID) (<-chan schema.OutputEvent, <-chan struct{}, func())
}

// CredentialSource resolves the secret for a profile.
type CredentialSource interface {
	Credential(ctx context.Context, profile schema.Profile) (schema.Credential, error)
}

// SuggestionSource answers ranked completion queries.
type SuggestionSource interface {
	Suggestions(ctx context.Context, profile schema.ProfileID, prefix string, limit int) ([]schema.CommandSuggestion, error)
}

// HistoryRecorder stores executed commands.
type HistoryRecorder interface {
	SaveHistory(ctx context.Context, profile schema.ProfileID, cmd string) error
}

// MacroSource returns the merged macro slots for a profile.
type MacroSource interface {
	Macros(ctx context.Context, profile schema.ProfileID) (schema.Macros, error)
}

// Assistant answers free-form questions about the shell session.
type Assistant interface {
	Ask(ctx context.Context, question, sessionContext string) (schema.AssistantAnswer, error)
}

// Surface is a session's terminal emulation surface.
type Surface interface {
	// Write feeds remote output to the emulator.
	Write(data []byte)
	// Cursor returns the zero-based cursor cell.
	Cursor() (row, col int)
	// OverlayChanged is called after every overlay state change.
	OverlayChanged(view OverlayView)
}
