package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
)

const warnColumns = `id, chat_id, user_id, warned_by, warned_at, COALESCE(reason, '') AS reason`

// AddWarn stores the warn under the next process-wide id (max existing id + 1).
func (c *sqliteClient) AddWarn(ctx context.Context, warn *db.Warn) (*db.Warn, error) {
	if warn == nil {
		return nil, errors.ErrInvalidInput
	}
	if err := errors.RequireIDs(warn.ChatID, warn.UserID); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin add warn: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !stderrors.Is(err, sql.ErrTxDone) {
			log.WithField("error", err.Error()).Warn("rollback add warn")
		}
	}()

	var nextID int64
	if err := tx.GetContext(ctx, &nextID, `SELECT COALESCE(MAX(id), 0) + 1 FROM warns`); err != nil {
		return nil, fmt.Errorf("next warn id: %w", err)
	}
	stored := *warn
	stored.ID = nextID
	stored.WarnedAt = warn.WarnedAt.UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO warns (id, chat_id, user_id, warned_by, warned_at, reason)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))
	`, stored.ID, stored.ChatID, stored.UserID, stored.WarnedBy, stored.WarnedAt, stored.Reason)
	if err != nil {
		return nil, fmt.Errorf("insert warn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add warn: %w", err)
	}
	return &stored, nil
}

func (c *sqliteClient) ListWarns(ctx context.Context, chatID int64, userID int64) ([]*db.Warn, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var warns []*db.Warn
	err := c.db.SelectContext(ctx, &warns,
		`SELECT `+warnColumns+` FROM warns WHERE chat_id = ? AND user_id = ? ORDER BY id`,
		chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("list warns: %w", err)
	}
	return warns, nil
}

func (c *sqliteClient) WarnCount(ctx context.Context, chatID int64, userID int64) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM warns WHERE chat_id = ? AND user_id = ?`, chatID, userID); err != nil {
		return 0, fmt.Errorf("count warns: %w", err)
	}
	return count, nil
}

// WarnCountWithReason counts only the warns whose reason starts with prefix.
func (c *sqliteClient) WarnCountWithReason(ctx context.Context, chatID int64, userID int64, reasonPrefix string) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM warns
		WHERE chat_id = ? AND user_id = ? AND substr(COALESCE(reason, ''), 1, length(?)) = ?
	`, chatID, userID, reasonPrefix, reasonPrefix)
	if err != nil {
		return 0, fmt.Errorf("count warns by reason: %w", err)
	}
	return count, nil
}

func (c *sqliteClient) ClearWarns(ctx context.Context, chatID int64, userID int64) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM warns WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("clear warns: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear warns affected rows: %w", err)
	}
	return int(n), nil
}

// RemoveWarn reports whether a warn with the id existed. Unknown ids are not an error.
func (c *sqliteClient) RemoveWarn(ctx context.Context, id int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM warns WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove warn %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove warn affected rows: %w", err)
	}
	return n > 0, nil
}
