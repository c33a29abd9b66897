package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
)

func (c *sqliteClient) UpsertAdmin(ctx context.Context, grant *db.AdminGrant) error {
	if grant == nil {
		return errors.ErrInvalidInput
	}
	if err := errors.RequireIDs(grant.UserID); err != nil {
		return err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO admins (user_id, added_by, added_at, permissions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			added_by = excluded.added_by,
			added_at = excluded.added_at,
			permissions = excluded.permissions
	`
	if _, err := c.db.ExecContext(ctx, query, grant.UserID, grant.AddedBy, grant.AddedAt.UTC(), grant.Permissions); err != nil {
		return fmt.Errorf("upsert admin: %w", err)
	}
	return nil
}

func (c *sqliteClient) RemoveAdmin(ctx context.Context, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("remove admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove admin affected rows: %w", err)
	}
	return n > 0, nil
}

func (c *sqliteClient) GetAdmin(ctx context.Context, userID int64) (*db.AdminGrant, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var grant db.AdminGrant
	err := c.db.GetContext(ctx, &grant, `SELECT user_id, added_by, added_at, permissions FROM admins WHERE user_id = ?`, userID)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &grant, nil
}

func (c *sqliteClient) ListAdmins(ctx context.Context) ([]*db.AdminGrant, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var grants []*db.AdminGrant
	if err := c.db.SelectContext(ctx, &grants, `SELECT user_id, added_by, added_at, permissions FROM admins ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return grants, nil
}
