package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/db"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/protection"
)

var shout = strings.Repeat("STOP SHOUTING ", 3)

func capsOnly() config.Protection {
	cfg := config.DefaultProtection()
	cfg.Caps.Threshold = 0.7
	return cfg
}

func TestCapsWarnsThenBansOnThirdWarn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())

	for i := 1; i <= 2; i++ {
		res, err := h.engine.HandleMessage(ctx, h.message(42, i, shout))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		if res.Action != ActionWarn || res.WarnCount != i || !res.MessageDeleted {
			t.Fatalf("message %d: unexpected result %#v", i, res)
		}
		if !strings.Contains(res.Announcement, "Total warnings: ") {
			t.Fatalf("unexpected warn announcement %q", res.Announcement)
		}
	}

	res, err := h.engine.HandleMessage(ctx, h.message(42, 3, shout))
	if err != nil {
		t.Fatalf("third message: %v", err)
	}
	if res.Action != ActionBan || res.WarnCount != 3 || !res.Enforced || len(res.Banned) != 1 {
		t.Fatalf("expected ban on third warn, got %#v", res)
	}
	banned, _ := h.store.IsBanned(ctx, chatID, 42)
	if !banned {
		t.Fatal("ban not stored")
	}
	bans, _ := h.store.ListBans(ctx, chatID)
	if bans[0].BannedBy != botID || !strings.HasPrefix(bans[0].Reason, "[caps]") {
		t.Fatalf("unexpected ban record %#v", bans[0])
	}
	if len(h.gw.banned) != 1 || len(h.gw.deleted) != 3 {
		t.Fatalf("unexpected gateway calls: banned %v deleted %v", h.gw.banned, h.gw.deleted)
	}
}

func TestCapsBanPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  string
		wantBan bool
	}{
		{name: "global counts unrelated warns", policy: config.CapsBanPolicyGlobal, wantBan: true},
		{name: "category ignores unrelated warns", policy: config.CapsBanPolicyCategory, wantBan: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			cfg := capsOnly()
			cfg.Caps.BanPolicy = tt.policy
			h := newHarness(t, cfg)

			for i := 0; i < 2; i++ {
				if _, err := h.store.AddWarn(ctx, &db.Warn{ChatID: chatID, UserID: 42, WarnedBy: 1, WarnedAt: h.clock.Now(), Reason: "[flood] earlier"}); err != nil {
					t.Fatalf("seed warn: %v", err)
				}
			}
			res, err := h.engine.HandleMessage(ctx, h.message(42, 1, shout))
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if got := res.Action == ActionBan; got != tt.wantBan {
				t.Fatalf("ban = %v, want %v (%#v)", got, tt.wantBan, res)
			}
		})
	}
}

func TestRepeatDetectorsEscalateOnOwnCategoryWarns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category protection.Category
		other    protection.Category
		text     func(i int) string
		enable   func(cfg *config.Protection)
	}{
		{
			name:     "spam",
			category: protection.CategorySpam,
			other:    protection.CategoryFlood,
			text:     func(int) string { return "buy cheap followers" },
			enable: func(cfg *config.Protection) {
				cfg.Spam = config.Spam{Enabled: true, Threshold: 2, BanThreshold: 100, Window: time.Minute, BanWarns: 3}
			},
		},
		{
			name:     "flood",
			category: protection.CategoryFlood,
			other:    protection.CategorySpam,
			text:     func(i int) string { return fmt.Sprintf("message number %d", i) },
			enable: func(cfg *config.Protection) {
				cfg.Flood = config.Flood{Enabled: true, Threshold: 2, BanThreshold: 100, Window: time.Minute, BanWarns: 3}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			cfg := config.DefaultProtection()
			cfg.Caps.Enabled = false
			cfg.Spam.Enabled = false
			cfg.Flood.Enabled = false
			tt.enable(&cfg)
			h := newHarness(t, cfg)

			for _, reason := range []string{
				tt.other.ReasonPrefix() + " earlier",
				protection.CategoryCaps.ReasonPrefix() + " earlier",
				"manual",
			} {
				if _, err := h.store.AddWarn(ctx, &db.Warn{ChatID: chatID, UserID: 42, WarnedBy: 1, WarnedAt: h.clock.Now(), Reason: reason}); err != nil {
					t.Fatalf("seed warn: %v", err)
				}
			}

			send := func(i int) Result {
				t.Helper()
				h.clock.Set(h.clock.Now().Add(time.Second))
				res, err := h.engine.HandleMessage(ctx, h.message(42, i, tt.text(i)))
				if err != nil {
					t.Fatalf("message %d: %v", i, err)
				}
				return res
			}

			if res := send(1); res.Action != ActionNone {
				t.Fatalf("first message acted on: %#v", res)
			}
			for i := 2; i <= 3; i++ {
				res := send(i)
				if res.Action != ActionWarn || res.Verdict.Category != tt.category {
					t.Fatalf("message %d: expected %s warn, got %#v", i, tt.category, res)
				}
				if want := i - 1; res.WarnCount != want || !strings.Contains(res.Announcement, fmt.Sprintf("Total warnings: %d", want)) {
					t.Fatalf("message %d: other categories counted, got %d %q", i, res.WarnCount, res.Announcement)
				}
			}

			res := send(4)
			if res.Action != ActionBan || res.WarnCount != 3 || !res.Enforced {
				t.Fatalf("expected auto-ban on third %s warn, got %#v", tt.category, res)
			}
			bans, err := h.store.ListBans(ctx, chatID)
			if err != nil || len(bans) != 1 {
				t.Fatalf("list bans: %#v %v", bans, err)
			}
			if !strings.HasPrefix(bans[0].Reason, tt.category.ReasonPrefix()) {
				t.Fatalf("unexpected ban reason %q", bans[0].Reason)
			}
			if total, _ := h.store.WarnCount(ctx, chatID, 42); total != 6 {
				t.Fatalf("expected 6 stored warns, got %d", total)
			}
			if len(h.gw.banned) != 1 || len(h.gw.deleted) != 3 {
				t.Fatalf("unexpected gateway calls: banned %v deleted %v", h.gw.banned, h.gw.deleted)
			}
		})
	}
}

func TestBanPermissionDeniedKeepsRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := config.DefaultProtection()
	cfg.Caps.Enabled = false
	cfg.Flood.Enabled = true
	cfg.Flood.Threshold = 2
	cfg.Flood.BanThreshold = 3
	h := newHarness(t, cfg)
	h.gw.banErr = &gateway.Error{Op: "ban member", Kind: gateway.KindPermissionDenied, Err: errors.New("not enough rights")}

	var res Result
	for i := 1; i <= 3; i++ {
		var err error
		res, err = h.engine.HandleMessage(ctx, h.message(42, i, "message"))
		if err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if res.Action != ActionBan || res.Enforced || !res.PermissionDenied {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.Announcement != msgNotEnoughRights {
		t.Fatalf("unexpected announcement %q", res.Announcement)
	}
	if banned, _ := h.store.IsBanned(ctx, chatID, 42); !banned {
		t.Fatal("ban record must survive the platform failure")
	}
}

func TestDeleteFailureStillWarns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	h.gw.deleteErr = &gateway.Error{Op: "delete message", Kind: gateway.KindNotFound}

	res, err := h.engine.HandleMessage(ctx, h.message(42, 1, shout))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.Action != ActionWarn || res.MessageDeleted || res.WarnCount != 1 {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestAdminMessagesPassThrough(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	h.gw.roles[42] = gateway.RoleAdministrator

	for i := 1; i <= 5; i++ {
		res, err := h.engine.HandleMessage(ctx, h.message(42, i, shout))
		if err != nil || res.Action != ActionNone {
			t.Fatalf("admin message %d acted on: %#v %v", i, res, err)
		}
	}
	if count, _ := h.store.WarnCount(ctx, chatID, 42); count != 0 {
		t.Fatalf("admin got %d warns", count)
	}
}

func TestMutedUserMessageDeletedWithoutDetectors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	if _, err := h.engine.Mute(ctx, chatID, 42, 7, nil, "cool down"); err != nil {
		t.Fatalf("mute: %v", err)
	}

	res, err := h.engine.HandleMessage(ctx, h.message(42, 9, shout))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.Muted || res.Action != ActionDelete || !res.MessageDeleted {
		t.Fatalf("unexpected result %#v", res)
	}
	if count, _ := h.store.WarnCount(ctx, chatID, 42); count != 0 {
		t.Fatal("detectors ran for a muted user")
	}
}

func TestMuteExpiresAtDuration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	t0 := h.clock.Now()
	five := 5 * time.Second
	if _, err := h.engine.Mute(ctx, chatID, 42, 7, &five, ""); err != nil {
		t.Fatalf("mute: %v", err)
	}

	for _, offset := range []time.Duration{0, time.Second, 5*time.Second - time.Millisecond} {
		h.clock.Set(t0.Add(offset))
		muted, err := h.engine.IsMuted(ctx, chatID, 42)
		if err != nil || !muted {
			t.Fatalf("at +%s expected muted, got %v err %v", offset, muted, err)
		}
	}

	h.clock.Set(t0.Add(5 * time.Second))
	muted, err := h.engine.IsMuted(ctx, chatID, 42)
	if err != nil || muted {
		t.Fatalf("at +5s expected unmuted, got %v err %v", muted, err)
	}
	if mute, _ := h.store.GetActiveMute(ctx, chatID, 42); mute != nil {
		t.Fatalf("expired mute left active: %#v", mute)
	}
}

func TestMuteIsExpiredIsPure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	t0 := h.clock.Now()
	one := time.Second
	if _, err := h.engine.Mute(ctx, chatID, 42, 7, &one, ""); err != nil {
		t.Fatalf("mute: %v", err)
	}
	mute, _ := h.store.GetActiveMute(ctx, chatID, 42)
	if !h.engine.Mutes().IsExpired(mute, t0.Add(time.Minute)) {
		t.Fatal("expected expired")
	}
	if still, _ := h.store.GetActiveMute(ctx, chatID, 42); still == nil {
		t.Fatal("IsExpired must not close the mute")
	}
}

func TestSweepClosesExpiredMutesAndLiftsRestriction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, capsOnly())
	t0 := h.clock.Now()
	short, long := time.Minute, time.Hour
	if _, err := h.engine.Mute(ctx, chatID, 42, 7, &short, ""); err != nil {
		t.Fatalf("mute 42: %v", err)
	}
	if _, err := h.engine.Mute(ctx, chatID, 43, 7, &long, ""); err != nil {
		t.Fatalf("mute 43: %v", err)
	}

	h.clock.Set(t0.Add(2 * time.Minute))
	n, err := h.engine.Mutes().Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep closed %d err %v", n, err)
	}
	last := h.gw.restrictions[len(h.gw.restrictions)-1]
	if last.userID != 42 || !last.canSend {
		t.Fatalf("restriction not lifted: %#v", h.gw.restrictions)
	}
	if muted, _ := h.engine.IsMuted(ctx, chatID, 43); !muted {
		t.Fatal("long mute closed too early")
	}
}

func TestRaidBansEveryRecentJoin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	var res Result
	for i := 1; i <= 10; i++ {
		var err error
		res, err = h.engine.HandleJoins(ctx, protection.Joins{
			ChatID:  chatID,
			SelfID:  botID,
			Members: []protection.Member{{UserID: int64(i)}},
			At:      h.clock.Now().Add(time.Duration(i) * 100 * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if i < 10 && res.Action != ActionNone {
			t.Fatalf("join %d triggered %#v", i, res)
		}
	}
	if res.Action != ActionBan || len(res.Banned) != 10 || !res.Enforced {
		t.Fatalf("unexpected raid result %#v", res)
	}
	if !strings.Contains(res.Announcement, "10 suspicious users") {
		t.Fatalf("unexpected announcement %q", res.Announcement)
	}
	bans, _ := h.store.ListBans(ctx, chatID)
	if len(bans) != 10 || len(h.gw.banned) != 10 {
		t.Fatalf("expected 10 bans, stored %d applied %d", len(bans), len(h.gw.banned))
	}
}

func TestBotJoinBanned(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	res, err := h.engine.HandleJoins(ctx, protection.Joins{
		ChatID:  chatID,
		SelfID:  botID,
		Members: []protection.Member{{UserID: botID, IsBot: true}, {UserID: 55, IsBot: true, Username: "other_bot"}},
	})
	if err != nil {
		t.Fatalf("joins: %v", err)
	}
	if res.Action != ActionBan || len(res.Banned) != 1 || res.Banned[0] != 55 {
		t.Fatalf("unexpected result %#v", res)
	}
	if banned, _ := h.store.IsBanned(ctx, chatID, botID); banned {
		t.Fatal("guard banned itself")
	}
}
