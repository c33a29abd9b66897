package protection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iamwavecut/chatguard/internal/gateway"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubRoles struct {
	mu    sync.Mutex
	roles map[int64]gateway.Role
	fail  bool
	calls int
}

func (s *stubRoles) GetMemberRole(_ context.Context, _ int64, userID int64) (gateway.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return "", &gateway.Error{Op: "get member", Kind: gateway.KindTransport, Err: errors.New("timeout")}
	}
	if role, ok := s.roles[userID]; ok {
		return role, nil
	}
	return gateway.RoleMember, nil
}

func msgAt(userID int64, text string, at time.Time) *MessageInput {
	return NewMessageInput(Message{ChatID: -1001, UserID: userID, MessageID: 1, Text: text, At: at}, &stubRoles{})
}

func msgWithRoles(roles *stubRoles, userID int64, text string, at time.Time) *MessageInput {
	return NewMessageInput(Message{ChatID: -1001, UserID: userID, MessageID: 1, Text: text, At: at}, roles)
}
