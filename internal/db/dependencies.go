package db

import (
	"context"
	"time"
)

type Client interface {
	Close() error

	UpsertBan(ctx context.Context, ban *Ban) error
	RemoveBan(ctx context.Context, chatID int64, userID int64) error
	IsBanned(ctx context.Context, chatID int64, userID int64) (bool, error)
	ListBans(ctx context.Context, chatID int64) ([]*Ban, error)

	AddWarn(ctx context.Context, warn *Warn) (*Warn, error)
	ListWarns(ctx context.Context, chatID int64, userID int64) ([]*Warn, error)
	WarnCount(ctx context.Context, chatID int64, userID int64) (int, error)
	WarnCountWithReason(ctx context.Context, chatID int64, userID int64, reasonPrefix string) (int, error)
	ClearWarns(ctx context.Context, chatID int64, userID int64) (int, error)
	RemoveWarn(ctx context.Context, id int64) (bool, error)

	UpsertMute(ctx context.Context, mute *Mute) error
	CloseMute(ctx context.Context, chatID int64, userID int64, at time.Time) (bool, error)
	GetActiveMute(ctx context.Context, chatID int64, userID int64) (*Mute, error)
	ListActiveMutes(ctx context.Context) ([]*Mute, error)

	UpsertAdmin(ctx context.Context, grant *AdminGrant) error
	RemoveAdmin(ctx context.Context, userID int64) (bool, error)
	GetAdmin(ctx context.Context, userID int64) (*AdminGrant, error)
	ListAdmins(ctx context.Context) ([]*AdminGrant, error)
}
