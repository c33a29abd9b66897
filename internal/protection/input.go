package protection

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/gateway"
)

type (
	Message struct {
		ChatID    int64
		UserID    int64
		MessageID int
		Text      string
		At        time.Time
	}

	Member struct {
		UserID   int64
		IsBot    bool
		Username string
	}

	Joins struct {
		ChatID int64
		// SelfID is the bot's own account, never counted or banned.
		SelfID  int64
		Members []Member
		At      time.Time
	}

	RoleFetcher interface {
		GetMemberRole(ctx context.Context, chatID int64, userID int64) (gateway.Role, error)
	}

	// MessageInput carries a message through the detectors and looks up the
	// sender's chat role at most once.
	MessageInput struct {
		Message
		roles RoleFetcher

		once    sync.Once
		isAdmin bool
	}
)

func NewMessageInput(msg Message, roles RoleFetcher) *MessageInput {
	return &MessageInput{Message: msg, roles: roles}
}

// IsChatAdmin reports whether the sender is an administrator or creator of
// the chat. A failed lookup counts as a regular member.
func (in *MessageInput) IsChatAdmin(ctx context.Context) bool {
	in.once.Do(func() {
		if in.roles == nil {
			return
		}
		role, err := in.roles.GetMemberRole(ctx, in.ChatID, in.UserID)
		if err != nil {
			log.WithFields(log.Fields{
				"object":  "protection",
				"chat_id": in.ChatID,
				"user_id": in.UserID,
				"error":   err.Error(),
			}).Warn("cant resolve member role")
			return
		}
		in.isAdmin = role.IsChatAdmin()
	})
	return in.isAdmin
}
