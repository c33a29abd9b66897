package moderation

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
)

func (e *Engine) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	grant, err := e.store.GetAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get admin: %w", err)
	}
	return grant != nil, nil
}

// HasPermission is true when the user holds a grant with the capability or "all".
func (e *Engine) HasPermission(ctx context.Context, userID int64, capability string) (bool, error) {
	grant, err := e.store.GetAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get admin: %w", err)
	}
	return grant.Allows(capability), nil
}

// Authorize lets chat administrators through, then falls back to stored grants.
func (e *Engine) Authorize(ctx context.Context, chatID, userID int64, capability string) (bool, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return false, err
	}
	role, err := e.gw.GetMemberRole(ctx, chatID, userID)
	if err != nil {
		e.getLogEntry().WithField("error", err.Error()).Debug("cant resolve role, checking grants")
	} else if role.IsChatAdmin() {
		return true, nil
	}
	return e.HasPermission(ctx, userID, capability)
}

func (e *Engine) GrantAdmin(ctx context.Context, userID, actorID int64, permissions []string) error {
	if err := errors.RequireIDs(userID); err != nil {
		return err
	}
	if len(permissions) == 0 {
		permissions = []string{db.PermissionAll}
	}
	slices.Sort(permissions)
	permissions = slices.Compact(permissions)
	if err := e.store.UpsertAdmin(ctx, &db.AdminGrant{
		UserID:      userID,
		AddedBy:     actorID,
		AddedAt:     e.now(),
		Permissions: permissions,
	}); err != nil {
		return fmt.Errorf("store admin: %w", err)
	}
	e.audit.Info("grant_admin", zap.Int64("user_id", userID), zap.Int64("actor_id", actorID), zap.Strings("permissions", permissions))
	return nil
}

func (e *Engine) RevokeAdmin(ctx context.Context, userID, actorID int64) (bool, error) {
	removed, err := e.store.RemoveAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("remove admin: %w", err)
	}
	if removed {
		e.audit.Info("revoke_admin", zap.Int64("user_id", userID), zap.Int64("actor_id", actorID))
	}
	return removed, nil
}
