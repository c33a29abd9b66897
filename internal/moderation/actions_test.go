package moderation

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/errors"
	"github.com/iamwavecut/chatguard/internal/gateway"
	"github.com/iamwavecut/chatguard/internal/policy/permissions"
)

func TestManualWarnOnlySuggestsBan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	var out Outcome
	for i := 1; i <= 4; i++ {
		var err error
		out, err = h.engine.Warn(ctx, chatID, 42, 7, "rude")
		if err != nil {
			t.Fatalf("warn %d: %v", i, err)
		}
		if out.WarnCount != i || out.AutoBanSuggested != (i >= 3) {
			t.Fatalf("warn %d: unexpected outcome %#v", i, out)
		}
	}
	if banned, _ := h.store.IsBanned(ctx, chatID, 42); banned || len(h.gw.banned) != 0 {
		t.Fatal("manual warns must not ban")
	}

	n, err := h.engine.ClearWarns(ctx, chatID, 42, 7)
	if err != nil || n != 4 {
		t.Fatalf("clear warns: %d %v", n, err)
	}
}

func TestIdempotentRemovals(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	out, err := h.engine.Unmute(ctx, chatID, 42, 7)
	if err != nil {
		t.Fatalf("unmute without mute: %v", err)
	}
	if out.Recorded {
		t.Fatalf("nothing should have been recorded: %#v", out)
	}
	removed, err := h.engine.RemoveWarn(ctx, 999, 7)
	if err != nil || removed {
		t.Fatalf("remove unknown warn: %v %v", removed, err)
	}
}

func TestActionsRejectMissingIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	if _, err := h.engine.Ban(ctx, 0, 42, 7, ""); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := h.engine.Mute(ctx, chatID, 0, 7, nil, ""); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	negative := -time.Hour
	if _, err := h.engine.Mute(ctx, chatID, 42, 7, &negative, ""); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative duration, got %v", err)
	}
	if mute, _ := h.store.GetActiveMute(ctx, chatID, 42); mute != nil {
		t.Fatalf("negative duration stored a mute: %#v", mute)
	}
	if len(h.gw.banned) != 0 || len(h.gw.restrictions) != 0 {
		t.Fatal("gateway called despite invalid input")
	}
}

func TestBanAndUnban(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())

	out, err := h.engine.Ban(ctx, chatID, 42, 7, "manual")
	if err != nil || !out.Recorded || !out.Enforced {
		t.Fatalf("ban: %#v %v", out, err)
	}
	out, err = h.engine.Unban(ctx, chatID, 42, 7)
	if err != nil || !out.Recorded || !out.Enforced {
		t.Fatalf("unban: %#v %v", out, err)
	}
	if banned, _ := h.store.IsBanned(ctx, chatID, 42); banned {
		t.Fatal("ban still stored")
	}
	if len(h.gw.unbanned) != 1 {
		t.Fatalf("platform unban not called: %v", h.gw.unbanned)
	}
}

func TestMuteRestrictDenied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())
	h.gw.restrictErr = &gateway.Error{Op: "restrict member", Kind: gateway.KindPermissionDenied}

	d := 10 * time.Minute
	out, err := h.engine.Mute(ctx, chatID, 42, 7, &d, "")
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	if !out.Recorded || out.Enforced || !out.PermissionDenied {
		t.Fatalf("unexpected outcome %#v", out)
	}
	mute, _ := h.store.GetActiveMute(ctx, chatID, 42)
	if mute == nil || mute.DurationSeconds == nil || *mute.DurationSeconds != 600 {
		t.Fatalf("unexpected stored mute %#v", mute)
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t, config.DefaultProtection())
	h.gw.roles[1] = gateway.RoleCreator

	if ok, _ := h.engine.Authorize(ctx, chatID, 1, permissions.CapabilityBan); !ok {
		t.Fatal("chat creator must be authorized")
	}
	if ok, _ := h.engine.Authorize(ctx, chatID, 2, permissions.CapabilityBan); ok {
		t.Fatal("plain member must not be authorized")
	}

	if err := h.engine.GrantAdmin(ctx, 2, 1, []string{permissions.CapabilityWarn, permissions.CapabilityWarn}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if ok, _ := h.engine.Authorize(ctx, chatID, 2, permissions.CapabilityWarn); !ok {
		t.Fatal("granted capability refused")
	}
	if ok, _ := h.engine.Authorize(ctx, chatID, 2, permissions.CapabilityBan); ok {
		t.Fatal("ungranted capability allowed")
	}
	if ok, _ := h.engine.IsAdmin(ctx, 2); !ok {
		t.Fatal("grant holder must be admin")
	}

	removed, err := h.engine.RevokeAdmin(ctx, 2, 1)
	if err != nil || !removed {
		t.Fatalf("revoke: %v %v", removed, err)
	}
	if ok, _ := h.engine.HasPermission(ctx, 2, permissions.CapabilityWarn); ok {
		t.Fatal("revoked admin kept permission")
	}
}

func TestParseMuteDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arg  string
		want time.Duration
		ok   bool
	}{
		{arg: "30s", want: 30 * time.Second, ok: true},
		{arg: "5m", want: 5 * time.Minute, ok: true},
		{arg: "1h", want: time.Hour, ok: true},
		{arg: "2d", want: 48 * time.Hour, ok: true},
		{arg: "106751d", want: 106751 * 24 * time.Hour, ok: true},
		{arg: "106752d"},
		{arg: "9999999999999d"},
		{arg: "99999999999999999999s"},
		{arg: "0m"},
		{arg: "5w"},
		{arg: "spam"},
		{arg: ""},
	}
	for _, tt := range tests {
		got, ok := ParseMuteDuration(tt.arg)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseMuteDuration(%q) = %s %v, want %s %v", tt.arg, got, ok, tt.want, tt.ok)
		}
	}
}
