package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/bot"
	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/moderation"
	"github.com/iamwavecut/chatguard/internal/policy/permissions"
)

const (
	cmdAdmin = "admin"

	msgGroupsOnly   = "This command can only be used in groups"
	msgNotAllowed   = "You are not allowed to use this command"
	msgNeedTarget   = "Reply to a message of the user or pass their numeric id"
	msgAdminUsage   = "Usage: /admin add|remove <user_id> [ban|warn|mute|all...]"
	msgUnwarnUsage  = "Usage: /unwarn <warn_id>"
	msgDeniedSuffix = "Saved, but I don't have enough rights to %s this user."
	msgNotApplied   = "Saved, but Telegram did not apply it."
	maxListedWarns  = 10
	warnTimeLayout  = "2006-01-02 15:04"
)

type command struct {
	name     string
	targetID int64
	args     []string
}

func (c command) reason() string {
	return strings.Join(c.args, " ")
}

func isModerationCommand(name string) bool {
	if name == cmdAdmin {
		return true
	}
	_, ok := permissions.CapabilityForCommand(name)
	return ok
}

// handleCommand serves moderation commands. handled is false for commands
// it does not know, so the message continues through the detectors.
func (g *Guard) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (handled bool, proceed bool, err error) {
	name := msg.Command()
	if name != cmdAdmin && !g.rates.AllowCommand(user.ID, name, true) {
		g.getLogEntry().WithFields(log.Fields{
			"trace_id": bot.TraceID(ctx),
			"user_id":  user.ID,
			"command":  name,
		}).Debug("command rate limited")
		return true, false, nil
	}
	if !isModerationCommand(name) {
		return false, true, nil
	}

	cmd := parseCommand(msg)
	entry := g.getLogEntry().WithFields(log.Fields{
		"trace_id": bot.TraceID(ctx),
		"chat_id":  chat.ID,
		"user_id":  user.ID,
		"command":  name,
	})

	if name == cmdAdmin {
		return true, false, g.adminCommand(ctx, chat, user, cmd)
	}

	capability, _ := permissions.CapabilityForCommand(name)
	allowed, err := g.engine.Authorize(ctx, chat.ID, user.ID, capability)
	if err != nil {
		return true, false, errors.Wrap(err, "authorize")
	}
	if !allowed {
		entry.Debug("command refused")
		g.reply(ctx, chat.ID, msgNotAllowed)
		return true, false, nil
	}

	if name == "unwarn" {
		return true, false, g.unwarnCommand(ctx, chat, user, cmd)
	}
	if cmd.targetID == 0 {
		g.reply(ctx, chat.ID, msgNeedTarget)
		return true, false, nil
	}

	var text string
	switch name {
	case "ban":
		text, err = g.banCommand(ctx, chat, user, cmd)
	case "unban":
		text, err = g.unbanCommand(ctx, chat, user, cmd)
	case "warn":
		text, err = g.warnCommand(ctx, chat, user, cmd)
	case "warns":
		text, err = g.warnsCommand(ctx, chat, cmd)
	case "clearwarns":
		text, err = g.clearWarnsCommand(ctx, chat, user, cmd)
	case "mute":
		text, err = g.muteCommand(ctx, chat, user, cmd)
	case "unmute":
		text, err = g.unmuteCommand(ctx, chat, user, cmd)
	}
	if err != nil {
		return true, false, errors.WithMessage(err, name)
	}
	entry.WithField("target_id", cmd.targetID).Info("command executed")
	g.reply(ctx, chat.ID, text)
	return true, false, nil
}

func (g *Guard) banCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	out, err := g.engine.Ban(ctx, chat.ID, cmd.targetID, user.ID, cmd.reason())
	if err != nil {
		return "", err
	}
	return outcomeText(out, "User banned.", "ban"), nil
}

func (g *Guard) unbanCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	out, err := g.engine.Unban(ctx, chat.ID, cmd.targetID, user.ID)
	if err != nil {
		return "", err
	}
	if !out.Recorded {
		return "User was not banned.", nil
	}
	return outcomeText(out, "User unbanned.", "unban"), nil
}

func (g *Guard) warnCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	out, err := g.engine.Warn(ctx, chat.ID, cmd.targetID, user.ID, cmd.reason())
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Warning recorded. Total warnings: %d", out.WarnCount)
	if out.AutoBanSuggested {
		text += fmt.Sprintf("\nThe user has %d warnings, consider /ban.", out.WarnCount)
	}
	return text, nil
}

func (g *Guard) warnsCommand(ctx context.Context, chat *api.Chat, cmd command) (string, error) {
	warns, err := g.engine.ListWarns(ctx, chat.ID, cmd.targetID)
	if err != nil {
		return "", err
	}
	if len(warns) == 0 {
		return "No warnings.", nil
	}
	lines := []string{fmt.Sprintf("Warnings: %d", len(warns))}
	for i, warn := range warns {
		if i == maxListedWarns {
			lines = append(lines, fmt.Sprintf("...and %d more", len(warns)-maxListedWarns))
			break
		}
		lines = append(lines, formatWarn(warn))
	}
	return strings.Join(lines, "\n"), nil
}

func (g *Guard) clearWarnsCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	n, err := g.engine.ClearWarns(ctx, chat.ID, cmd.targetID, user.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %d warnings.", n), nil
}

func (g *Guard) unwarnCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) error {
	if len(cmd.args) == 0 {
		g.reply(ctx, chat.ID, msgUnwarnUsage)
		return nil
	}
	warnID, err := strconv.ParseInt(cmd.args[0], 10, 64)
	if err != nil || warnID <= 0 {
		g.reply(ctx, chat.ID, msgUnwarnUsage)
		return nil
	}
	removed, err := g.engine.RemoveWarn(ctx, warnID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "unwarn")
	}
	if !removed {
		g.reply(ctx, chat.ID, fmt.Sprintf("Warning #%d not found.", warnID))
		return nil
	}
	g.reply(ctx, chat.ID, fmt.Sprintf("Warning #%d removed.", warnID))
	return nil
}

func (g *Guard) muteCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	var duration *time.Duration
	if len(cmd.args) > 0 {
		if d, ok := moderation.ParseMuteDuration(cmd.args[0]); ok {
			duration = &d
			cmd.args = cmd.args[1:]
		}
	}
	out, err := g.engine.Mute(ctx, chat.ID, cmd.targetID, user.ID, duration, cmd.reason())
	if err != nil {
		return "", err
	}
	done := "User muted until /unmute."
	if duration != nil {
		done = fmt.Sprintf("User muted for %s.", *duration)
	}
	return outcomeText(out, done, "restrict"), nil
}

func (g *Guard) unmuteCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) (string, error) {
	out, err := g.engine.Unmute(ctx, chat.ID, cmd.targetID, user.ID)
	if err != nil {
		return "", err
	}
	if !out.Recorded {
		return "User was not muted.", nil
	}
	return outcomeText(out, "User unmuted.", "restrict"), nil
}

// adminCommand manages bot-level grants. Only holders of "all" and the chat
// creator may use it.
func (g *Guard) adminCommand(ctx context.Context, chat *api.Chat, user *api.User, cmd command) error {
	allowed, err := g.canManageAdmins(ctx, chat.ID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "admin")
	}
	if !allowed {
		g.reply(ctx, chat.ID, msgNotAllowed)
		return nil
	}

	if len(cmd.args) < 2 || !tool.In(cmd.args[0], "add", "remove") {
		g.reply(ctx, chat.ID, msgAdminUsage)
		return nil
	}
	targetID, err := strconv.ParseInt(cmd.args[1], 10, 64)
	if err != nil || targetID == 0 {
		g.reply(ctx, chat.ID, msgAdminUsage)
		return nil
	}

	if cmd.args[0] == "remove" {
		removed, err := g.engine.RevokeAdmin(ctx, targetID, user.ID)
		if err != nil {
			return errors.WithMessage(err, "admin remove")
		}
		if !removed {
			g.reply(ctx, chat.ID, "No grant to remove.")
			return nil
		}
		g.reply(ctx, chat.ID, "Admin grant removed.")
		return nil
	}

	perms := cmd.args[2:]
	for _, perm := range perms {
		if !tool.In(perm, permissions.CapabilityBan, permissions.CapabilityWarn, permissions.CapabilityMute, db.PermissionAll) {
			g.reply(ctx, chat.ID, msgAdminUsage)
			return nil
		}
	}
	if err := g.engine.GrantAdmin(ctx, targetID, user.ID, perms); err != nil {
		return errors.WithMessage(err, "admin add")
	}
	g.reply(ctx, chat.ID, "Admin grant saved.")
	return nil
}

func (g *Guard) canManageAdmins(ctx context.Context, chatID, userID int64) (bool, error) {
	ok, err := g.engine.HasPermission(ctx, userID, db.PermissionAll)
	if err != nil || ok {
		return ok, err
	}
	role, err := g.gw.GetMemberRole(ctx, chatID, userID)
	if err != nil {
		g.getLogEntry().WithField("error", err.Error()).Debug("cant resolve role for admin command")
		return false, nil
	}
	return role == gateway.RoleCreator, nil
}

// parseCommand takes the target from the replied-to message, or from a
// leading numeric argument.
func parseCommand(msg *api.Message) command {
	cmd := command{name: msg.Command(), args: strings.Fields(msg.CommandArguments())}
	if cmd.name == cmdAdmin || cmd.name == "unwarn" {
		return cmd
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		cmd.targetID = msg.ReplyToMessage.From.ID
		return cmd
	}
	if len(cmd.args) > 0 {
		if id, err := strconv.ParseInt(cmd.args[0], 10, 64); err == nil && id != 0 {
			cmd.targetID = id
			cmd.args = cmd.args[1:]
		}
	}
	return cmd
}

func outcomeText(out moderation.Outcome, done, verb string) string {
	switch {
	case out.Enforced:
		return done
	case out.PermissionDenied:
		return fmt.Sprintf(msgDeniedSuffix, verb)
	default:
		return msgNotApplied
	}
}

func formatWarn(warn *db.Warn) string {
	line := fmt.Sprintf("#%d %s", warn.ID, warn.WarnedAt.Format(warnTimeLayout))
	if warn.Reason != "" {
		line += " " + warn.Reason
	}
	return line
}
