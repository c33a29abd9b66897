package moderation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/db/sqlite"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/protection"
)

const (
	chatID = int64(-1001)
	botID  = int64(100)
)

type restriction struct {
	userID  int64
	canSend bool
}

type fakeGateway struct {
	mu           sync.Mutex
	roles        map[int64]gateway.Role
	banErr       error
	deleteErr    error
	restrictErr  error
	banned       []int64
	unbanned     []int64
	deleted      []int
	restrictions []restriction
	announced    []string
}

func (g *fakeGateway) BanMember(_ context.Context, _ int64, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.banErr != nil {
		return g.banErr
	}
	g.banned = append(g.banned, userID)
	return nil
}

func (g *fakeGateway) UnbanMember(_ context.Context, _ int64, userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unbanned = append(g.unbanned, userID)
	return nil
}

func (g *fakeGateway) RestrictMember(_ context.Context, _ int64, userID int64, canSend bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restrictErr != nil {
		return g.restrictErr
	}
	g.restrictions = append(g.restrictions, restriction{userID: userID, canSend: canSend})
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	g.deleted = append(g.deleted, messageID)
	return nil
}

func (g *fakeGateway) GetMemberRole(_ context.Context, _ int64, userID int64) (gateway.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if role, ok := g.roles[userID]; ok {
		return role, nil
	}
	return gateway.RoleMember, nil
}

func (g *fakeGateway) Announce(_ context.Context, _ int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.announced = append(g.announced, text)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	engine *Engine
	store  db.Client
	gw     *fakeGateway
	clock  *testClock
}

func newHarness(t *testing.T, cfg config.Protection) *harness {
	t.Helper()
	store, err := sqlite.NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	gw := &fakeGateway{roles: map[int64]gateway.Role{}}
	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	pipeline := protection.NewDefaultPipeline(cfg, protection.NewWindows(protection.RetentionFor(cfg)))
	engine := NewEngine(store, gw, pipeline, cfg, botID, nil).WithClock(clock.Now)
	return &harness{engine: engine, store: store, gw: gw, clock: clock}
}

func (h *harness) message(userID int64, messageID int, text string) protection.Message {
	return protection.Message{ChatID: chatID, UserID: userID, MessageID: messageID, Text: text, At: h.clock.Now()}
}
