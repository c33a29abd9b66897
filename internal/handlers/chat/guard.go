package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/bot"
	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/moderation"
	"github.com/iamwavecut/chatguard/internal/protection"
	"github.com/iamwavecut/chatguard/internal/rates"
)

type guardEngine interface {
	HandleMessage(ctx context.Context, msg protection.Message) (moderation.Result, error)
	HandleJoins(ctx context.Context, in protection.Joins) (moderation.Result, error)

	Authorize(ctx context.Context, chatID, userID int64, capability string) (bool, error)
	HasPermission(ctx context.Context, userID int64, capability string) (bool, error)
	GrantAdmin(ctx context.Context, userID, actorID int64, permissions []string) error
	RevokeAdmin(ctx context.Context, userID, actorID int64) (bool, error)

	Ban(ctx context.Context, chatID, userID, actorID int64, reason string) (moderation.Outcome, error)
	Unban(ctx context.Context, chatID, userID, actorID int64) (moderation.Outcome, error)
	Warn(ctx context.Context, chatID, userID, actorID int64, reason string) (moderation.Outcome, error)
	ListWarns(ctx context.Context, chatID, userID int64) ([]*db.Warn, error)
	ClearWarns(ctx context.Context, chatID, userID, actorID int64) (int, error)
	RemoveWarn(ctx context.Context, warnID, actorID int64) (bool, error)
	Mute(ctx context.Context, chatID, userID, actorID int64, duration *time.Duration, reason string) (moderation.Outcome, error)
	Unmute(ctx context.Context, chatID, userID, actorID int64) (moderation.Outcome, error)
}

// Guard turns group updates into engine events and serves the moderation
// commands.
type Guard struct {
	engine guardEngine
	gw     gateway.ChatGateway
	rates  *rates.Policy
	selfID int64
}

func NewGuard(engine guardEngine, gw gateway.ChatGateway, ratePolicy *rates.Policy, selfID int64) *Guard {
	g := &Guard{
		engine: engine,
		gw:     gw,
		rates:  ratePolicy,
		selfID: selfID,
	}
	g.getLogEntry().Debug("created new guard")
	return g
}

func (g *Guard) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u == nil || u.Message == nil || chat == nil {
		return true, nil
	}
	msg := u.Message

	if !chat.IsGroup() && !chat.IsSuperGroup() {
		if msg.IsCommand() && isModerationCommand(msg.Command()) && user != nil &&
			g.rates.AllowCommand(user.ID, msg.Command(), false) {
			g.reply(ctx, chat.ID, msgGroupsOnly)
		}
		return true, nil
	}

	if len(msg.NewChatMembers) > 0 {
		return g.handleJoins(ctx, msg)
	}

	if user == nil || user.ID == g.selfID || isLinkedChannelAutoForward(msg) {
		return true, nil
	}

	if msg.IsCommand() {
		handled, proceed, err := g.handleCommand(ctx, msg, chat, user)
		if handled || err != nil {
			return proceed, err
		}
	}

	res, err := g.engine.HandleMessage(ctx, protection.Message{
		ChatID:    chat.ID,
		UserID:    user.ID,
		MessageID: msg.MessageID,
		Text:      bot.MessageText(msg),
		At:        messageTime(msg),
	})
	if err != nil {
		return false, errors.Wrap(err, "handle message")
	}
	if res.Action != moderation.ActionNone {
		g.getLogEntry().WithFields(log.Fields{
			"trace_id": bot.TraceID(ctx),
			"chat_id":  chat.ID,
			"user_id":  user.ID,
			"action":   string(res.Action),
			"verdict":  res.Verdict.Kind.String(),
		}).Info("message moderated")
		return false, nil
	}
	return true, nil
}

func (g *Guard) handleJoins(ctx context.Context, msg *api.Message) (bool, error) {
	members := make([]protection.Member, 0, len(msg.NewChatMembers))
	for _, member := range msg.NewChatMembers {
		members = append(members, protection.Member{
			UserID:   member.ID,
			IsBot:    member.IsBot,
			Username: bot.GetUN(&member),
		})
	}
	res, err := g.engine.HandleJoins(ctx, protection.Joins{
		ChatID:  msg.Chat.ID,
		SelfID:  g.selfID,
		Members: members,
		At:      messageTime(msg),
	})
	if err != nil {
		return false, errors.Wrap(err, "handle joins")
	}
	if res.Action != moderation.ActionNone {
		g.getLogEntry().WithFields(log.Fields{
			"trace_id": bot.TraceID(ctx),
			"chat_id":  msg.Chat.ID,
			"banned":   len(res.Banned),
			"verdict":  res.Verdict.Kind.String(),
		}).Warn("join batch moderated")
		return false, nil
	}
	return true, nil
}

func (g *Guard) reply(ctx context.Context, chatID int64, text string) {
	if err := g.gw.Announce(ctx, chatID, text); err != nil {
		g.getLogEntry().WithFields(log.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		}).Warn("cant reply")
	}
}

func (g *Guard) getLogEntry() *log.Entry {
	return log.WithField("object", "Guard")
}

func messageTime(msg *api.Message) time.Time {
	if msg.Date == 0 {
		return time.Time{}
	}
	return time.Unix(int64(msg.Date), 0)
}

// isLinkedChannelAutoForward matches posts the platform copies from a linked
// channel into its discussion group.
func isLinkedChannelAutoForward(msg *api.Message) bool {
	if msg == nil || !msg.IsAutomaticForward || msg.SenderChat == nil {
		return false
	}
	return msg.SenderChat.Type == "channel"
}
