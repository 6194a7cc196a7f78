package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting is one key/value pair of the settings table.
type Setting struct {
	Key   string
	Value string
}

// Setting returns the value stored under key. ok is false when unset.
func (s *Store) Setting(ctx context.Context, key string) (value string, ok bool, err error) {
	var record settingRecord
	err = s.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return record.Value, true, nil
}

// SetSetting inserts or replaces the value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	record := settingRecord{Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&record).Error
	if err != nil {
		s.log.Warn("setting save failed", "key", key, "err", err)
		return err
	}
	return nil
}

// DeleteSetting removes key.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Delete(&settingRecord{}, "key = ?", key).Error
}

// Settings lists all settings ordered by key.
func (s *Store) Settings(ctx context.Context) ([]Setting, error) {
	var records []settingRecord
	if err := s.db.WithContext(ctx).Order("key").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]Setting, 0, len(records))
	for _, record := range records {
		out = append(out, Setting{Key: record.Key, Value: record.Value})
	}
	return out, nil
}
