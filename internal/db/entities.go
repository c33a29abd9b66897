package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// PermissionAll grants every capability.
const PermissionAll = "all"

type (
	Ban struct {
		UserID   int64     `db:"user_id"`
		ChatID   int64     `db:"chat_id"`
		BannedBy int64     `db:"banned_by"`
		BannedAt time.Time `db:"banned_at"`
		Reason   string    `db:"reason"`
	}

	Warn struct {
		ID       int64     `db:"id"`
		UserID   int64     `db:"user_id"`
		ChatID   int64     `db:"chat_id"`
		WarnedBy int64     `db:"warned_by"`
		WarnedAt time.Time `db:"warned_at"`
		Reason   string    `db:"reason"`
	}

	Mute struct {
		UserID  int64     `db:"user_id"`
		ChatID  int64     `db:"chat_id"`
		MutedBy int64     `db:"muted_by"`
		MutedAt time.Time `db:"muted_at"`
		// DurationSeconds is nil for an indefinite mute.
		DurationSeconds *int64     `db:"duration"`
		Reason          string     `db:"reason"`
		UnmutedAt       *time.Time `db:"unmuted_at"`
	}

	AdminGrant struct {
		UserID      int64       `db:"user_id"`
		AddedBy     int64       `db:"added_by"`
		AddedAt     time.Time   `db:"added_at"`
		Permissions Permissions `db:"permissions"`
	}

	Permissions []string
)

// IsActive reports whether the mute has not been closed yet.
func (m *Mute) IsActive() bool {
	return m != nil && m.UnmutedAt == nil
}

// IsExpired reports whether the mute duration has fully elapsed at now.
// Indefinite mutes never expire.
func (m *Mute) IsExpired(now time.Time) bool {
	if m == nil || m.DurationSeconds == nil {
		return false
	}
	elapsed := int64(now.Sub(m.MutedAt) / time.Second)
	return elapsed >= *m.DurationSeconds
}

// ExpiresAt returns the moment the mute lapses, or zero time when indefinite.
func (m *Mute) ExpiresAt() time.Time {
	if m == nil || m.DurationSeconds == nil {
		return time.Time{}
	}
	return m.MutedAt.Add(time.Duration(*m.DurationSeconds) * time.Second)
}

func (g *AdminGrant) Allows(capability string) bool {
	if g == nil {
		return false
	}
	return slices.Contains(g.Permissions, PermissionAll) || slices.Contains(g.Permissions, capability)
}

func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(p))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *Permissions) Scan(v interface{}) error {
	if v == nil {
		*p = nil
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), p)
	case []byte:
		return json.Unmarshal(data, p)
	default:
		return fmt.Errorf("cannot scan type %T into Permissions", v)
	}
}
