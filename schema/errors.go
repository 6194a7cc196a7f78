package schema

import "errors"

var (
	// ErrConnection indicates a session could not be opened. The transport
	// message is wrapped verbatim.
	ErrConnection = errors.New("connection failed")
	// ErrIO indicates a write or resize against an open session failed.
	ErrIO = errors.New("session io failed")
	// ErrSuggestionFetch indicates the suggestion source failed.
	ErrSuggestionFetch = errors.New("suggestion fetch failed")
	// ErrAssistant indicates the assistant request failed.
	ErrAssistant = errors.New("assistant request failed")
	// ErrMissingCredential indicates a profile has no usable credential.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidProfile indicates a profile lacks host, port or user.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrProfileNotFound indicates a profile lookup failed.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileExists indicates a profile name is taken.
	ErrProfileExists = errors.New("profile already exists")
	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoTabs indicates no tabs are open.
	ErrNoTabs = errors.New("no tabs")
	// ErrInvalidMacroSlot indicates a slot outside 1..10.
	ErrInvalidMacroSlot = errors.New("invalid macro slot")
	// ErrEmptyPrompt indicates the assistant question was empty.
	ErrEmptyPrompt = errors.New("empty prompt")
)
