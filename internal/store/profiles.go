package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pkt.systems/ait/schema"
)

// CreateProfile validates and stores a new profile, assigning its id.
func (s *Store) CreateProfile(ctx context.Context, p schema.Profile) (schema.Profile, error) {
	p, err := normalizeProfile(p)
	if err != nil {
		return schema.Profile{}, err
	}
	p.ID = schema.ProfileID(uuid.NewString())
	record := toProfileRecord(p)
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return schema.Profile{}, fmt.Errorf("%w: %s", schema.ErrProfileExists, p.Name)
		}
		s.log.Warn("profile create failed", "name", p.Name, "err", err)
		return schema.Profile{}, err
	}
	s.log.Info("profile created", "profile", p.ID, "name", p.Name)
	return p, nil
}

// UpdateProfile replaces the stored fields of an existing profile.
func (s *Store) UpdateProfile(ctx context.Context, p schema.Profile) error {
	p, err := normalizeProfile(p)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&profileRecord{}).Where("id = ?", string(p.ID)).
		Select("name", "host", "port", "user", "auth_type", "profile_group").
		Updates(toProfileRecord(p))
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", schema.ErrProfileExists, p.Name)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", schema.ErrProfileNotFound, p.ID)
	}
	return nil
}

// Profile looks a profile up by id or name.
func (s *Store) Profile(ctx context.Context, ref string) (schema.Profile, error) {
	ref = strings.TrimSpace(ref)
	var record profileRecord
	err := s.db.WithContext(ctx).Where("id = ? OR name = ?", ref, ref).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return schema.Profile{}, fmt.Errorf("%w: %s", schema.ErrProfileNotFound, ref)
		}
		return schema.Profile{}, err
	}
	return record.profile(), nil
}

// Profiles lists all profiles ordered by group and name.
func (s *Store) Profiles(ctx context.Context) ([]schema.Profile, error) {
	var records []profileRecord
	if err := s.db.WithContext(ctx).Order("profile_group, name").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]schema.Profile, 0, len(records))
	for _, record := range records {
		out = append(out, record.profile())
	}
	return out, nil
}

// DeleteProfile removes a profile with its history and macros.
func (s *Store) DeleteProfile(ctx context.Context, id schema.ProfileID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&profileRecord{}, "id = ?", string(id))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", schema.ErrProfileNotFound, id)
		}
		if err := tx.Delete(&historyRecord{}, "profile_id = ?", string(id)).Error; err != nil {
			return err
		}
		return tx.Delete(&settingRecord{}, "key = ?", macrosKey(&id)).Error
	})
	if err != nil {
		return err
	}
	s.log.Info("profile deleted", "profile", id)
	return nil
}

func normalizeProfile(p schema.Profile) (schema.Profile, error) {
	name, err := schema.NormalizeProfileName(p.Name)
	if err != nil {
		return schema.Profile{}, err
	}
	p.Name = name
	p.Host = strings.TrimSpace(p.Host)
	p.User = strings.TrimSpace(p.User)
	p.Group = strings.TrimSpace(p.Group)
	if p.IsLocal() {
		p.Host = schema.LocalHost
		p.Port = 0
		if p.AuthType == "" {
			p.AuthType = schema.AuthAgent
		}
	} else if p.Port == 0 {
		p.Port = schema.DefaultSSHPort
	}
	if err := schema.ValidateProfile(p); err != nil {
		return schema.Profile{}, err
	}
	return p, nil
}

func toProfileRecord(p schema.Profile) profileRecord {
	return profileRecord{
		ID:       string(p.ID),
		Name:     p.Name,
		Host:     p.Host,
		Port:     p.Port,
		User:     p.User,
		AuthType: string(p.AuthType),
		Group:    p.Group,
	}
}
