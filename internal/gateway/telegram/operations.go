package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/policy/permissions"
)

// BotAPI is the subset of *api.BotAPI the gateway talks to.
type BotAPI interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

// Operations implements gateway.ChatGateway on top of the Bot API. Outgoing
// calls share one token bucket so a raid ban burst stays under flood limits.
type Operations struct {
	bot     BotAPI
	limiter *rate.Limiter
}

var _ gateway.ChatGateway = (*Operations)(nil)

func NewOperations(bot BotAPI, limiter *rate.Limiter) *Operations {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(25), 5)
	}
	return &Operations{bot: bot, limiter: limiter}
}

func (o *Operations) BanMember(ctx context.Context, chatID int64, userID int64) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Op: "ban member", Kind: gateway.KindTransport, Err: err}
	}
	_, err := o.bot.Request(api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		RevokeMessages: true,
	})
	return classify("ban member", err)
}

func (o *Operations) UnbanMember(ctx context.Context, chatID int64, userID int64) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Op: "unban member", Kind: gateway.KindTransport, Err: err}
	}
	_, err := o.bot.Request(api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		OnlyIfBanned: true,
	})
	return classify("unban member", err)
}

func (o *Operations) RestrictMember(ctx context.Context, chatID int64, userID int64, canSend bool) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Op: "restrict member", Kind: gateway.KindTransport, Err: err}
	}
	_, err := o.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UseIndependentChatPermissions: true,
		Permissions: &api.ChatPermissions{
			CanSendMessages:       canSend,
			CanSendAudios:         canSend,
			CanSendDocuments:      canSend,
			CanSendPhotos:         canSend,
			CanSendVideos:         canSend,
			CanSendVideoNotes:     canSend,
			CanSendVoiceNotes:     canSend,
			CanSendPolls:          canSend,
			CanSendOtherMessages:  canSend,
			CanAddWebPagePreviews: canSend,
		},
	})
	return classify("restrict member", err)
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Op: "delete message", Kind: gateway.KindTransport, Err: err}
	}
	_, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID))
	return classify("delete message", err)
}

func (o *Operations) GetMemberRole(ctx context.Context, chatID int64, userID int64) (gateway.Role, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", &gateway.Error{Op: "get member", Kind: gateway.KindTransport, Err: err}
	}
	member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
	})
	if err != nil {
		return "", classify("get member", err)
	}
	return permissions.RoleOf(&member), nil
}

func (o *Operations) Announce(ctx context.Context, chatID int64, text string) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return &gateway.Error{Op: "announce", Kind: gateway.KindTransport, Err: err}
	}
	msg := api.NewMessage(chatID, text)
	msg.DisableNotification = true
	_, err := o.bot.Send(msg)
	return classify("announce", err)
}

// classify turns a Bot API failure into a typed gateway error. This is the
// only place that looks at Telegram's error descriptions.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := gateway.KindTransport

	var code int
	var description string
	var ptrErr *api.Error
	var valErr api.Error
	switch {
	case errors.As(err, &ptrErr):
		code, description = ptrErr.Code, ptrErr.Message
	case errors.As(err, &valErr):
		code, description = valErr.Code, valErr.Message
	}
	description = strings.ToLower(description)

	switch {
	case code == http.StatusForbidden:
		kind = gateway.KindPermissionDenied
	case code == http.StatusBadRequest && isRightsDescription(description):
		kind = gateway.KindPermissionDenied
	case code == http.StatusBadRequest && strings.Contains(description, "not found"):
		kind = gateway.KindNotFound
	}

	log.WithFields(log.Fields{
		"object": "telegram",
		"op":     op,
		"kind":   kind.String(),
		"code":   code,
	}).Debug("gateway call failed")
	return &gateway.Error{Op: op, Kind: kind, Err: err}
}

func isRightsDescription(description string) bool {
	for _, marker := range []string{
		"not enough rights",
		"chat_admin_required",
		"can't remove chat owner",
		"user is an administrator",
		"method is available only for supergroups",
	} {
		if strings.Contains(description, marker) {
			return true
		}
	}
	return false
}
