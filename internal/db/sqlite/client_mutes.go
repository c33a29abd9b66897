package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
)

// UpsertMute replaces whatever record exists for the pair, so a repeated mute
// restarts the timer instead of stacking.
func (c *sqliteClient) UpsertMute(ctx context.Context, mute *db.Mute) error {
	if mute == nil {
		return errors.ErrInvalidInput
	}
	if err := errors.RequireIDs(mute.ChatID, mute.UserID); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO mutes (chat_id, user_id, muted_by, muted_at, duration, reason, unmuted_at)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULL)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			muted_by = excluded.muted_by,
			muted_at = excluded.muted_at,
			duration = excluded.duration,
			reason = excluded.reason,
			unmuted_at = NULL
	`
	_, err := c.db.ExecContext(ctx, query,
		mute.ChatID,
		mute.UserID,
		mute.MutedBy,
		mute.MutedAt.UTC(),
		mute.DurationSeconds,
		mute.Reason,
	)
	if err != nil {
		return fmt.Errorf("upsert mute: %w", err)
	}
	return nil
}

// CloseMute stamps unmuted_at on the active mute. It reports false when there
// was nothing to close.
func (c *sqliteClient) CloseMute(ctx context.Context, chatID int64, userID int64, at time.Time) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE mutes SET unmuted_at = ?
		WHERE chat_id = ? AND user_id = ? AND unmuted_at IS NULL
	`, at.UTC(), chatID, userID)
	if err != nil {
		return false, fmt.Errorf("close mute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close mute affected rows: %w", err)
	}
	return n > 0, nil
}

func (c *sqliteClient) GetActiveMute(ctx context.Context, chatID int64, userID int64) (*db.Mute, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var mute db.Mute
	err := c.db.GetContext(ctx, &mute, `
		SELECT chat_id, user_id, muted_by, muted_at, duration, COALESCE(reason, '') AS reason, unmuted_at
		FROM mutes
		WHERE chat_id = ? AND user_id = ? AND unmuted_at IS NULL
	`, chatID, userID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active mute: %w", err)
	}
	return &mute, nil
}

func (c *sqliteClient) ListActiveMutes(ctx context.Context) ([]*db.Mute, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var mutes []*db.Mute
	err := c.db.SelectContext(ctx, &mutes, `
		SELECT chat_id, user_id, muted_by, muted_at, duration, COALESCE(reason, '') AS reason, unmuted_at
		FROM mutes
		WHERE unmuted_at IS NULL
		ORDER BY muted_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list active mutes: %w", err)
	}
	return mutes, nil
}
