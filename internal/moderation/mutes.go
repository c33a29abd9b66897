package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/protection"
)

type muteStore interface {
	GetActiveMute(ctx context.Context, chatID int64, userID int64) (*db.Mute, error)
	ListActiveMutes(ctx context.Context) ([]*db.Mute, error)
	CloseMute(ctx context.Context, chatID int64, userID int64, at time.Time) (bool, error)
}

// MuteLifecycle expires timed mutes. Reads go through IsMuted, which closes
// an expired record on the spot; the background sweep catches users who
// stay silent and lifts their platform restriction.
type MuteLifecycle struct {
	store muteStore
	gw    gateway.ChatGateway
	locks *protection.KeyedMutex[memberKey]
	now   func() time.Time

	sweepInterval time.Duration
	runCancel     context.CancelFunc
	wg            sync.WaitGroup
}

func NewMuteLifecycle(store muteStore, gw gateway.ChatGateway, locks *protection.KeyedMutex[memberKey]) *MuteLifecycle {
	return &MuteLifecycle{
		store:         store,
		gw:            gw,
		locks:         locks,
		now:           time.Now,
		sweepInterval: 30 * time.Second,
	}
}

// IsExpired is the side-effect free check.
func (m *MuteLifecycle) IsExpired(mute *db.Mute, now time.Time) bool {
	return mute.IsExpired(now)
}

// CloseIfExpired closes the mute when its duration has elapsed and reports
// whether it did.
func (m *MuteLifecycle) CloseIfExpired(ctx context.Context, mute *db.Mute) (bool, error) {
	now := m.now()
	if !mute.IsActive() || !m.IsExpired(mute, now) {
		return false, nil
	}
	if _, err := m.store.CloseMute(ctx, mute.ChatID, mute.UserID, now); err != nil {
		return false, fmt.Errorf("close expired mute: %w", err)
	}
	return true, nil
}

// IsMuted reports whether the user is muted right now, closing an expired
// mute as a side effect. Callers hold the member lock.
func (m *MuteLifecycle) IsMuted(ctx context.Context, chatID int64, userID int64) (bool, error) {
	mute, err := m.store.GetActiveMute(ctx, chatID, userID)
	if err != nil {
		return false, fmt.Errorf("get active mute: %w", err)
	}
	if mute == nil {
		return false, nil
	}
	closed, err := m.CloseIfExpired(ctx, mute)
	if err != nil {
		return false, err
	}
	return !closed, nil
}

// Sweep closes every expired mute and asks the platform to let the user
// speak again. It returns the number of mutes closed.
func (m *MuteLifecycle) Sweep(ctx context.Context) (int, error) {
	mutes, err := m.store.ListActiveMutes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active mutes: %w", err)
	}
	entry := m.getLogEntry()
	closed := 0
	for _, listed := range mutes {
		if !m.IsExpired(listed, m.now()) {
			continue
		}
		ok, err := m.expire(ctx, listed.ChatID, listed.UserID)
		if err != nil {
			entry.WithField("error", err.Error()).Warn("cant expire mute")
			continue
		}
		if !ok {
			continue
		}
		closed++
		if err := m.gw.RestrictMember(ctx, listed.ChatID, listed.UserID, true); err != nil {
			entry.WithFields(log.Fields{
				"chat_id": listed.ChatID,
				"user_id": listed.UserID,
				"kind":    gateway.KindOf(err).String(),
			}).Warn("cant lift restriction of expired mute")
		}
	}
	return closed, nil
}

// expire re-reads the mute under the member lock so a fresh mute issued
// since the listing is left alone.
func (m *MuteLifecycle) expire(ctx context.Context, chatID, userID int64) (bool, error) {
	unlock := m.locks.Lock(memberKey{chatID: chatID, userID: userID})
	defer unlock()

	mute, err := m.store.GetActiveMute(ctx, chatID, userID)
	if err != nil || mute == nil {
		return false, err
	}
	return m.CloseIfExpired(ctx, mute)
}

func (m *MuteLifecycle) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	m.runCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		t := time.NewTicker(m.sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
				if n, err := m.Sweep(runCtx); err != nil {
					m.getLogEntry().WithField("error", err.Error()).Error("mute sweep failed")
				} else if n > 0 {
					m.getLogEntry().WithField("closed", n).Debug("expired mutes closed")
				}
			}
		}
	}()
	return nil
}

func (m *MuteLifecycle) Stop(ctx context.Context) error {
	if m.runCancel != nil {
		m.runCancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MuteLifecycle) getLogEntry() *log.Entry {
	return log.WithField("object", "mute_lifecycle")
}
