package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/observability"
	"github.com/iamwavecut/chatguard/internal/protection"
)

const banConcurrency = 4

type (
	memberKey struct {
		chatID int64
		userID int64
	}

	Action string

	// Result describes what the engine did with one update.
	Result struct {
		Verdict        protection.Verdict
		Action         Action
		MessageDeleted bool
		WarnCount      int
		Banned         []int64
		// Enforced is false when a platform call behind the action failed.
		// The store still holds the record.
		Enforced         bool
		PermissionDenied bool
		Muted            bool
		Announcement     string
	}

	// Engine turns detector verdicts into stored moderation records and
	// platform actions. Work for one member is serialized.
	Engine struct {
		store    db.Client
		gw       gateway.ChatGateway
		pipeline *protection.Pipeline
		mutes    *MuteLifecycle
		locks    *protection.KeyedMutex[memberKey]
		cfg      config.Protection
		actorID  int64
		audit    *zap.Logger
		now      func() time.Time
	}
)

const (
	ActionNone   Action = "none"
	ActionDelete Action = "delete"
	ActionWarn   Action = "warn"
	ActionBan    Action = "ban"
)

// NewEngine builds the engine. actorID is recorded as the author of
// automatic actions, normally the bot's own user id.
func NewEngine(store db.Client, gw gateway.ChatGateway, pipeline *protection.Pipeline, cfg config.Protection, actorID int64, audit *zap.Logger) *Engine {
	if audit == nil {
		audit = zap.NewNop()
	}
	locks := protection.NewKeyedMutex[memberKey]()
	return &Engine{
		store:    store,
		gw:       gw,
		pipeline: pipeline,
		mutes:    NewMuteLifecycle(store, gw, locks),
		locks:    locks,
		cfg:      cfg,
		actorID:  actorID,
		audit:    audit,
		now:      time.Now,
	}
}

// WithClock replaces the time source of the engine and its mute lifecycle.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	e.mutes.now = now
	return e
}

func (e *Engine) Mutes() *MuteLifecycle {
	return e.mutes
}

// HandleMessage checks the mute first, then runs the detectors and applies
// the verdict.
func (e *Engine) HandleMessage(ctx context.Context, msg protection.Message) (Result, error) {
	unlock := e.locks.Lock(memberKey{chatID: msg.ChatID, userID: msg.UserID})
	defer unlock()

	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "moderation.HandleMessage")
	span.SetAttributes(attribute.Int64("chat_id", msg.ChatID), attribute.Int64("user_id", msg.UserID))
	defer span.End()

	if msg.At.IsZero() {
		msg.At = e.now()
	}
	entry := e.getLogEntry().WithFields(log.Fields{"chat_id": msg.ChatID, "user_id": msg.UserID})

	muted, err := e.mutes.IsMuted(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant check mute")
	}
	if muted {
		res := Result{Action: ActionDelete, Muted: true}
		res.MessageDeleted = e.deleteMessage(ctx, msg.ChatID, msg.MessageID)
		res.Enforced = res.MessageDeleted
		return res, nil
	}

	verdict := e.pipeline.EvaluateMessage(ctx, protection.NewMessageInput(msg, e.gw))
	span.SetAttributes(attribute.String("verdict", verdict.Kind.String()))
	switch verdict.Kind {
	case protection.VerdictWarnAndDelete:
		return e.warnAndDelete(ctx, msg, verdict)
	case protection.VerdictBan, protection.VerdictBanAllRecent:
		return e.banSender(ctx, msg, verdict), nil
	}
	return Result{Verdict: verdict, Action: ActionNone}, nil
}

// HandleJoins runs the membership detectors for one batch of new members.
func (e *Engine) HandleJoins(ctx context.Context, in protection.Joins) (Result, error) {
	unlock := e.locks.Lock(memberKey{chatID: in.ChatID})
	defer unlock()

	ctx, span := otel.Tracer(observability.TracerName).Start(ctx, "moderation.HandleJoins")
	span.SetAttributes(attribute.Int64("chat_id", in.ChatID), attribute.Int("members", len(in.Members)))
	defer span.End()

	if in.At.IsZero() {
		in.At = e.now()
	}
	verdict := e.pipeline.EvaluateJoins(ctx, in)
	if verdict.IsNone() {
		return Result{Verdict: verdict, Action: ActionNone}, nil
	}

	res := Result{Verdict: verdict, Action: ActionBan}
	res.Banned, res.Enforced, res.PermissionDenied = e.banMembers(ctx, in.ChatID, verdict.Targets, verdict.Reason)
	switch verdict.Kind {
	case protection.VerdictBanAllRecent:
		res.Announcement = raidText(len(res.Banned))
	default:
		res.Announcement = tplBots
	}
	e.announce(ctx, in.ChatID, res.Announcement)
	return res, nil
}

func (e *Engine) warnAndDelete(ctx context.Context, msg protection.Message, verdict protection.Verdict) (Result, error) {
	res := Result{Verdict: verdict, Action: ActionWarn}
	res.MessageDeleted = e.deleteMessage(ctx, msg.ChatID, msg.MessageID)

	warn, err := e.store.AddWarn(ctx, &db.Warn{
		ChatID:   msg.ChatID,
		UserID:   msg.UserID,
		WarnedBy: e.actorID,
		WarnedAt: msg.At,
		Reason:   verdict.Reason,
	})
	if err != nil {
		return res, fmt.Errorf("add warn: %w", err)
	}
	e.audit.Info("warn",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int64("user_id", msg.UserID),
		zap.Int64("warn_id", warn.ID),
		zap.String("reason", verdict.Reason),
		zap.Int64("actor_id", e.actorID),
	)

	count, err := e.warnCount(ctx, msg.ChatID, msg.UserID, verdict.Category)
	if err != nil {
		return res, fmt.Errorf("count warns: %w", err)
	}
	res.WarnCount = count

	if line := e.banWarns(verdict.Category); line > 0 && count >= line {
		res.Action = ActionBan
		res.Banned, res.Enforced, res.PermissionDenied = e.banMembers(ctx, msg.ChatID, []int64{msg.UserID}, verdict.Reason)
		res.Announcement = autoBanText(verdict.Category, count)
		if res.PermissionDenied {
			res.Announcement = msgNotEnoughRights
		}
		e.announce(ctx, msg.ChatID, res.Announcement)
		return res, nil
	}

	res.Enforced = res.MessageDeleted
	res.Announcement = warnText(verdict.Category, count)
	e.announce(ctx, msg.ChatID, res.Announcement)
	return res, nil
}

func (e *Engine) banSender(ctx context.Context, msg protection.Message, verdict protection.Verdict) Result {
	targets := verdict.Targets
	if len(targets) == 0 {
		targets = []int64{msg.UserID}
	}
	res := Result{Verdict: verdict, Action: ActionBan}
	res.Banned, res.Enforced, res.PermissionDenied = e.banMembers(ctx, msg.ChatID, targets, verdict.Reason)
	res.Announcement = banText(verdict.Category, verdict.Count)
	if res.PermissionDenied {
		res.Announcement = msgNotEnoughRights
	}
	e.announce(ctx, msg.ChatID, res.Announcement)
	return res
}

// banMembers stores a ban for every target, then asks the platform to apply
// them. A failed platform call does not undo the stored ban.
func (e *Engine) banMembers(ctx context.Context, chatID int64, targets []int64, reason string) (banned []int64, enforced bool, denied bool) {
	entry := e.getLogEntry().WithField("chat_id", chatID)
	now := e.now()
	for _, userID := range targets {
		err := e.store.UpsertBan(ctx, &db.Ban{
			ChatID:   chatID,
			UserID:   userID,
			BannedBy: e.actorID,
			BannedAt: now,
			Reason:   reason,
		})
		if err != nil {
			entry.WithFields(log.Fields{"user_id": userID, "error": err.Error()}).Error("cant store ban")
			continue
		}
		banned = append(banned, userID)
		e.audit.Info("ban",
			zap.Int64("chat_id", chatID),
			zap.Int64("user_id", userID),
			zap.String("reason", reason),
			zap.Int64("actor_id", e.actorID),
		)
	}

	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	g.SetLimit(banConcurrency)
	for _, userID := range banned {
		g.Go(func() error {
			err := e.gw.BanMember(ctx, chatID, userID)
			if err == nil {
				observability.RecordEnforcement(string(ActionBan), "ok")
				return nil
			}
			kind := gateway.KindOf(err)
			observability.RecordEnforcement(string(ActionBan), kind.String())
			entry.WithFields(log.Fields{
				"user_id": userID,
				"kind":    kind.String(),
				"error":   err.Error(),
			}).Warn("ban not applied by platform")
			mu.Lock()
			failed++
			if gateway.IsPermissionDenied(err) {
				denied = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return banned, len(banned) > 0 && failed == 0, denied
}

func (e *Engine) warnCount(ctx context.Context, chatID, userID int64, category protection.Category) (int, error) {
	if category == protection.CategoryCaps && e.cfg.Caps.BanPolicy != config.CapsBanPolicyCategory {
		return e.store.WarnCount(ctx, chatID, userID)
	}
	return e.store.WarnCountWithReason(ctx, chatID, userID, category.ReasonPrefix())
}

func (e *Engine) banWarns(category protection.Category) int {
	switch category {
	case protection.CategorySpam:
		return e.cfg.Spam.BanWarns
	case protection.CategoryFlood:
		return e.cfg.Flood.BanWarns
	case protection.CategoryCaps:
		return e.cfg.Caps.BanWarns
	}
	return 0
}

// deleteMessage is best effort; failures are logged and reported as false.
func (e *Engine) deleteMessage(ctx context.Context, chatID int64, messageID int) bool {
	if messageID == 0 {
		return false
	}
	if err := e.gw.DeleteMessage(ctx, chatID, messageID); err != nil {
		kind := gateway.KindOf(err)
		observability.RecordEnforcement(string(ActionDelete), kind.String())
		entry := e.getLogEntry().WithFields(log.Fields{
			"chat_id":    chatID,
			"message_id": messageID,
			"kind":       kind.String(),
		})
		if gateway.IsNotFound(err) {
			entry.Debug("message already gone")
			return false
		}
		entry.Warn("cant delete message")
		return false
	}
	observability.RecordEnforcement(string(ActionDelete), "ok")
	return true
}

func (e *Engine) announce(ctx context.Context, chatID int64, text string) {
	if text == "" {
		return
	}
	if err := e.gw.Announce(ctx, chatID, text); err != nil {
		e.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		}).Warn("cant announce")
	}
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "moderation")
}
