package gateway

import (
	"context"
	"errors"
	"fmt"
)

// ChatGateway is the outbound side of the chat platform.
type ChatGateway interface {
	BanMember(ctx context.Context, chatID int64, userID int64) error
	UnbanMember(ctx context.Context, chatID int64, userID int64) error
	RestrictMember(ctx context.Context, chatID int64, userID int64, canSend bool) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	GetMemberRole(ctx context.Context, chatID int64, userID int64) (Role, error)
	Announce(ctx context.Context, chatID int64, text string) error
}

type Role string

const (
	RoleMember        Role = "member"
	RoleAdministrator Role = "administrator"
	RoleCreator       Role = "creator"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

func (r Role) IsChatAdmin() bool {
	return r == RoleAdministrator || r == RoleCreator
}

type Kind int

const (
	KindTransport Kind = iota
	KindPermissionDenied
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// Error is returned by every ChatGateway implementation so callers can branch
// on Kind instead of on message text.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a gateway failure. Errors that did not come from
// a gateway count as transport failures.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindTransport
}

func IsPermissionDenied(err error) bool {
	return err != nil && KindOf(err) == KindPermissionDenied
}

func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}
