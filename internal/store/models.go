package store

import (
	"time"

	"pkt.systems/ait/schema"
)

type profileRecord struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	Host      string    `gorm:"not null"`
	Port      int       `gorm:"not null"`
	User      string    `gorm:"not null"`
	AuthType  string    `gorm:"not null"`
	Group     string    `gorm:"column:profile_group"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (profileRecord) TableName() string { return "profiles" }

func (r profileRecord) profile() schema.Profile {
	return schema.Profile{
		ID:       schema.ProfileID(r.ID),
		Name:     r.Name,
		Host:     r.Host,
		Port:     r.Port,
		User:     r.User,
		AuthType: schema.AuthType(r.AuthType),
		Group:    r.Group,
	}
}

type historyRecord struct {
	ID         string `gorm:"primaryKey"`
	ProfileID  string `gorm:"not null;index"`
	Cmd        string `gorm:"not null"`
	TS         int64  `gorm:"column:ts;not null;index"`
	ExitCode   *int
	DurationMs *int64
}

func (historyRecord) TableName() string { return "history" }

func (r historyRecord) entry() schema.HistoryEntry {
	return schema.HistoryEntry{
		ID:         r.ID,
		ProfileID:  schema.ProfileID(r.ProfileID),
		Cmd:        r.Cmd,
		Timestamp:  time.Unix(r.TS, 0),
		ExitCode:   r.ExitCode,
		DurationMs: r.DurationMs,
	}
}

type settingRecord struct {
	Key   string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

func (settingRecord) TableName() string { return "settings" }
