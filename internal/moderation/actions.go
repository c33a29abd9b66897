package moderation

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/errors"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/observability"
)

// Outcome reports an explicit moderation action. Recorded means the store
// changed; Enforced means the platform accepted the matching call.
type Outcome struct {
	Recorded         bool
	Enforced         bool
	PermissionDenied bool
	WarnCount        int
	// AutoBanSuggested is set when a manual warn reaches the auto-ban line.
	// Manual warns never ban on their own.
	AutoBanSuggested bool
}

func (e *Engine) Ban(ctx context.Context, chatID, userID, actorID int64, reason string) (Outcome, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return Outcome{}, err
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	if err := e.store.UpsertBan(ctx, &db.Ban{
		ChatID:   chatID,
		UserID:   userID,
		BannedBy: actorID,
		BannedAt: e.now(),
		Reason:   reason,
	}); err != nil {
		return Outcome{}, fmt.Errorf("store ban: %w", err)
	}
	e.auditAction("ban", chatID, userID, actorID, zap.String("reason", reason))
	return e.enforce(Outcome{Recorded: true}, string(ActionBan), e.gw.BanMember(ctx, chatID, userID)), nil
}

func (e *Engine) Unban(ctx context.Context, chatID, userID, actorID int64) (Outcome, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return Outcome{}, err
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	banned, err := e.store.IsBanned(ctx, chatID, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check ban: %w", err)
	}
	if err := e.store.RemoveBan(ctx, chatID, userID); err != nil {
		return Outcome{}, fmt.Errorf("remove ban: %w", err)
	}
	e.auditAction("unban", chatID, userID, actorID)
	return e.enforce(Outcome{Recorded: banned}, "unban", e.gw.UnbanMember(ctx, chatID, userID)), nil
}

func (e *Engine) Warn(ctx context.Context, chatID, userID, actorID int64, reason string) (Outcome, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return Outcome{}, err
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	warn, err := e.store.AddWarn(ctx, &db.Warn{
		ChatID:   chatID,
		UserID:   userID,
		WarnedBy: actorID,
		WarnedAt: e.now(),
		Reason:   reason,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("add warn: %w", err)
	}
	count, err := e.store.WarnCount(ctx, chatID, userID)
	if err != nil {
		return Outcome{Recorded: true}, fmt.Errorf("count warns: %w", err)
	}
	e.auditAction("warn", chatID, userID, actorID, zap.Int64("warn_id", warn.ID), zap.String("reason", reason))
	return Outcome{
		Recorded:         true,
		Enforced:         true,
		WarnCount:        count,
		AutoBanSuggested: e.cfg.AutoBanWarns > 0 && count >= e.cfg.AutoBanWarns,
	}, nil
}

func (e *Engine) ListWarns(ctx context.Context, chatID, userID int64) ([]*db.Warn, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return nil, err
	}
	return e.store.ListWarns(ctx, chatID, userID)
}

func (e *Engine) ClearWarns(ctx context.Context, chatID, userID, actorID int64) (int, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return 0, err
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	n, err := e.store.ClearWarns(ctx, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("clear warns: %w", err)
	}
	e.auditAction("clear_warns", chatID, userID, actorID, zap.Int("removed", n))
	return n, nil
}

// RemoveWarn deletes a single warn. An unknown id is not an error.
func (e *Engine) RemoveWarn(ctx context.Context, warnID, actorID int64) (bool, error) {
	removed, err := e.store.RemoveWarn(ctx, warnID)
	if err != nil {
		return false, fmt.Errorf("remove warn: %w", err)
	}
	if removed {
		e.audit.Info("remove_warn", zap.Int64("warn_id", warnID), zap.Int64("actor_id", actorID))
	}
	return removed, nil
}

// Mute replaces any active mute of the member and restricts them on the
// platform. A nil duration mutes until an explicit unmute.
func (e *Engine) Mute(ctx context.Context, chatID, userID, actorID int64, duration *time.Duration, reason string) (Outcome, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return Outcome{}, err
	}
	if duration != nil && *duration < time.Second {
		return Outcome{}, errors.ErrInvalidInput
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	mute := &db.Mute{
		ChatID:  chatID,
		UserID:  userID,
		MutedBy: actorID,
		MutedAt: e.now(),
		Reason:  reason,
	}
	if duration != nil {
		seconds := int64(*duration / time.Second)
		mute.DurationSeconds = &seconds
	}
	if err := e.store.UpsertMute(ctx, mute); err != nil {
		return Outcome{}, fmt.Errorf("store mute: %w", err)
	}
	fields := []zap.Field{zap.String("reason", reason)}
	if mute.DurationSeconds != nil {
		fields = append(fields, zap.Int64("duration_seconds", *mute.DurationSeconds))
	}
	e.auditAction("mute", chatID, userID, actorID, fields...)
	return e.enforce(Outcome{Recorded: true}, "mute", e.gw.RestrictMember(ctx, chatID, userID, false)), nil
}

// Unmute closes the active mute, if any, and lifts the restriction.
func (e *Engine) Unmute(ctx context.Context, chatID, userID, actorID int64) (Outcome, error) {
	if err := errors.RequireIDs(chatID, userID); err != nil {
		return Outcome{}, err
	}
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	closed, err := e.store.CloseMute(ctx, chatID, userID, e.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("close mute: %w", err)
	}
	e.auditAction("unmute", chatID, userID, actorID, zap.Bool("was_muted", closed))
	return e.enforce(Outcome{Recorded: closed}, "unmute", e.gw.RestrictMember(ctx, chatID, userID, true)), nil
}

// IsMuted exposes the mute check for callers outside the message path.
func (e *Engine) IsMuted(ctx context.Context, chatID, userID int64) (bool, error) {
	unlock := e.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()
	return e.mutes.IsMuted(ctx, chatID, userID)
}

func (e *Engine) enforce(out Outcome, action string, err error) Outcome {
	if err == nil {
		out.Enforced = true
		observability.RecordEnforcement(action, "ok")
		return out
	}
	kind := gateway.KindOf(err)
	observability.RecordEnforcement(action, kind.String())
	out.PermissionDenied = gateway.IsPermissionDenied(err)
	e.getLogEntry().WithFields(log.Fields{
		"action": action,
		"kind":   kind.String(),
		"error":  err.Error(),
	}).Warn("action recorded but not applied by platform")
	return out
}

func (e *Engine) auditAction(action string, chatID, userID, actorID int64, fields ...zap.Field) {
	base := []zap.Field{
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.Int64("actor_id", actorID),
	}
	e.audit.Info(action, append(base, fields...)...)
}
