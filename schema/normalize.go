package schema

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NormalizeProfileName validates a profile name.
// Allowed characters: letters, digits, '.', '_', '-', '@'.
func NormalizeProfileName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidProfile)
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' || r == '@' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", fmt.Errorf("%w: name %q", ErrInvalidProfile, trimmed)
	}
	return trimmed, nil
}

// ValidateProfile checks the fields required to open a session.
func ValidateProfile(p Profile) error {
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidProfile)
	}
	if p.IsLocal() {
		return nil
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidProfile, p.Port)
	}
	if strings.TrimSpace(p.User) == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidProfile)
	}
	switch p.AuthType {
	case AuthPassword, AuthKey, AuthAgent:
	default:
		return fmt.Errorf("%w: auth type %q", ErrInvalidProfile, p.AuthType)
	}
	return nil
}

// NormalizeMacroSlot validates a macro slot and returns its canonical form.
// Slot "0" is an alias for "10".
func NormalizeMacroSlot(slot string) (string, error) {
	trimmed := strings.TrimSpace(slot)
	if trimmed == "0" {
		return "10", nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 1 || n > MacroSlots {
		return "", fmt.Errorf("%w: %q", ErrInvalidMacroSlot, slot)
	}
	return strconv.Itoa(n), nil
}
