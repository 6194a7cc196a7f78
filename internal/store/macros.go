package store

import (
	"context"
	"encoding/json"
	"fmt"

	"pkt.systems/ait/schema"
)

const (
	globalMacrosKey  = "macros_global"
	profileMacrosKey = "macros_"
)

func macrosKey(profile *schema.ProfileID) string {
	if profile == nil {
		return globalMacrosKey
	}
	return profileMacrosKey + string(*profile)
}

// MacroSet returns the macros stored for profile, or the global set when
// profile is nil.
func (s *Store) MacroSet(ctx context.Context, profile *schema.ProfileID) (schema.Macros, error) {
	key := macrosKey(profile)
	value, ok, err := s.Setting(ctx, key)
	if err != nil {
		return nil, err
	}
	macros := schema.Macros{}
	if !ok || value == "" {
		return macros, nil
	}
	if err := json.Unmarshal([]byte(value), &macros); err != nil {
		s.log.Warn("macro set unreadable", "key", key, "err", err)
		return schema.Macros{}, nil
	}
	return macros, nil
}

// Macros returns the effective macros for profile: the global set with the
// profile's own slots on top.
func (s *Store) Macros(ctx context.Context, profile schema.ProfileID) (schema.Macros, error) {
	merged, err := s.MacroSet(ctx, nil)
	if err != nil {
		return nil, err
	}
	if profile == "" {
		return merged, nil
	}
	own, err := s.MacroSet(ctx, &profile)
	if err != nil {
		return nil, err
	}
	for slot, cmd := range own {
		merged[slot] = cmd
	}
	return merged, nil
}

// SetMacro stores cmd in slot. An empty cmd clears the slot.
func (s *Store) SetMacro(ctx context.Context, profile *schema.ProfileID, slot, cmd string) error {
	slot, err := schema.NormalizeMacroSlot(slot)
	if err != nil {
		return err
	}
	macros, err := s.MacroSet(ctx, profile)
	if err != nil {
		return err
	}
	if cmd == "" {
		delete(macros, slot)
	} else {
		macros[slot] = cmd
	}
	data, err := json.Marshal(macros)
	if err != nil {
		return fmt.Errorf("encode macros: %w", err)
	}
	return s.SetSetting(ctx, macrosKey(profile), string(data))
}

// DeleteMacros removes the whole macro set of profile, or the global set
// when profile is nil.
func (s *Store) DeleteMacros(ctx context.Context, profile *schema.ProfileID) error {
	return s.DeleteSetting(ctx, macrosKey(profile))
}
