package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"pkt.systems/ait/schema"
)

// SaveHistory records an executed command for profile.
func (s *Store) SaveHistory(ctx context.Context, profile schema.ProfileID, cmd string) error {
	_, err := s.RecordHistory(ctx, schema.HistoryEntry{ProfileID: profile, Cmd: cmd})
	return err
}

// RecordHistory stores entry, filling in its id and timestamp when unset.
// Blank commands are not recorded.
func (s *Store) RecordHistory(ctx context.Context, entry schema.HistoryEntry) (schema.HistoryEntry, error) {
	entry.Cmd = strings.TrimSpace(entry.Cmd)
	if entry.Cmd == "" {
		return entry, nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	record := historyRecord{
		ID:         entry.ID,
		ProfileID:  string(entry.ProfileID),
		Cmd:        entry.Cmd,
		TS:         entry.Timestamp.Unix(),
		ExitCode:   entry.ExitCode,
		DurationMs: entry.DurationMs,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Warn("history save failed", "profile", entry.ProfileID, "err", err)
		return schema.HistoryEntry{}, err
	}
	s.log.Trace("history saved", "profile", entry.ProfileID)
	return entry, nil
}

type suggestionRow struct {
	Cmd       string
	Frequency int
	LastUsed  int64
}

// SearchHistory returns distinct commands starting with prefix, most
// frequent first and most recent among equals.
func (s *Store) SearchHistory(ctx context.Context, profile schema.ProfileID, prefix string, limit int) ([]schema.CommandSuggestion, error) {
	if limit <= 0 {
		limit = schema.DefaultDropdownLimit
	}
	var rows []suggestionRow
	err := s.db.WithContext(ctx).Model(&historyRecord{}).
		Select("cmd, COUNT(*) AS frequency, MAX(ts) AS last_used").
		Where("profile_id = ? AND instr(cmd, ?) = 1", string(profile), prefix).
		Group("cmd").
		Order("frequency DESC, last_used DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]schema.CommandSuggestion, 0, len(rows))
	for _, row := range rows {
		out = append(out, schema.CommandSuggestion{Cmd: row.Cmd, Frequency: row.Frequency, LastUsed: row.LastUsed})
	}
	return out, nil
}

// Suggestions returns history matches topped up with dictionary commands
// when history alone cannot fill limit. Dictionary entries carry frequency 0.
func (s *Store) Suggestions(ctx context.Context, profile schema.ProfileID, prefix string, limit int) ([]schema.CommandSuggestion, error) {
	if limit <= 0 {
		limit = schema.DefaultDropdownLimit
	}
	out, err := s.SearchHistory(ctx, profile, prefix, limit)
	if err != nil {
		return nil, err
	}
	if len(out) >= limit {
		return out, nil
	}
	seen := make(map[string]struct{}, len(out))
	for _, item := range out {
		seen[item.Cmd] = struct{}{}
	}
	now := s.now().Unix()
	for _, cmd := range dictionarySuggestions(prefix, (limit-len(out))*2) {
		if len(out) >= limit {
			break
		}
		if _, ok := seen[cmd]; ok {
			continue
		}
		seen[cmd] = struct{}{}
		out = append(out, schema.CommandSuggestion{Cmd: cmd, Frequency: 0, LastUsed: now})
	}
	return out, nil
}

// ClearHistory deletes the history of one profile.
func (s *Store) ClearHistory(ctx context.Context, profile schema.ProfileID) (int64, error) {
	result := s.db.WithContext(ctx).Delete(&historyRecord{}, "profile_id = ?", string(profile))
	if result.Error != nil {
		return 0, result.Error
	}
	s.log.Info("history cleared", "profile", profile, "rows", result.RowsAffected)
	return result.RowsAffected, nil
}

// ClearAllHistory deletes the history of every profile.
func (s *Store) ClearAllHistory(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("1 = 1").Delete(&historyRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	s.log.Info("history cleared", "rows", result.RowsAffected)
	return result.RowsAffected, nil
}
