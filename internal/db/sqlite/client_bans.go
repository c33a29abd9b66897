package sqlite

import (
	"context"
	"fmt"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
)

func (c *sqliteClient) UpsertBan(ctx context.Context, ban *db.Ban) error {
	if ban == nil {
		return errors.ErrInvalidInput
	}
	if err := errors.RequireIDs(ban.ChatID, ban.UserID); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO bans (chat_id, user_id, banned_by, banned_at, reason)
		VALUES (?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			banned_by = excluded.banned_by,
			banned_at = excluded.banned_at,
			reason = excluded.reason
	`
	if _, err := c.db.ExecContext(ctx, query, ban.ChatID, ban.UserID, ban.BannedBy, ban.BannedAt.UTC(), ban.Reason); err != nil {
		return fmt.Errorf("upsert ban: %w", err)
	}
	return nil
}

func (c *sqliteClient) RemoveBan(ctx context.Context, chatID int64, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.db.ExecContext(ctx, `DELETE FROM bans WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return fmt.Errorf("remove ban: %w", err)
	}
	return nil
}

func (c *sqliteClient) IsBanned(ctx context.Context, chatID int64, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM bans WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return false, fmt.Errorf("check ban: %w", err)
	}
	return count > 0, nil
}

func (c *sqliteClient) ListBans(ctx context.Context, chatID int64) ([]*db.Ban, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var bans []*db.Ban
	err := c.db.SelectContext(ctx, &bans, `
		SELECT chat_id, user_id, banned_by, banned_at, COALESCE(reason, '') AS reason
		FROM bans
		WHERE chat_id = ?
		ORDER BY banned_at, user_id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	return bans, nil
}
