package protection

import (
	"context"

	"github.com/iamwavecut/chatguard/internal/config"
)

// RaidDetector watches join bursts per chat. Once the burst reaches the
// threshold every join still inside the window becomes a target and the
// window starts over.
type RaidDetector struct {
	cfg     config.Raid
	windows *Windows
}

func NewRaidDetector(cfg config.Raid, windows *Windows) *RaidDetector {
	return &RaidDetector{cfg: cfg, windows: windows}
}

func (d *RaidDetector) Category() Category { return CategoryRaid }
func (d *RaidDetector) Enabled() bool      { return d.cfg.Enabled }

func (d *RaidDetector) CheckJoins(_ context.Context, in Joins) (Verdict, error) {
	w := d.windows.Joins(in.ChatID)
	for _, m := range in.Members {
		if m.IsBot || m.UserID == in.SelfID {
			continue
		}
		w.joins = append(w.joins, join{userID: m.UserID, at: in.At})
	}

	// Rejoins count as separate joins; targets list every account once.
	recent := 0
	var targets []int64
	seen := make(map[int64]struct{}, len(w.joins))
	for _, j := range w.joins {
		if !within(in.At, j.at, d.cfg.Window) {
			continue
		}
		recent++
		if _, dup := seen[j.userID]; dup {
			continue
		}
		seen[j.userID] = struct{}{}
		targets = append(targets, j.userID)
	}

	if recent >= d.cfg.Threshold {
		w.joins = nil
		v := newVerdict(VerdictBanAllRecent, CategoryRaid, "suspicious join burst")
		v.Targets = targets
		v.Count = recent
		return v, nil
	}

	kept := w.joins[:0]
	for _, j := range w.joins {
		if within(in.At, j.at, 2*d.cfg.Window) {
			kept = append(kept, j)
		}
	}
	w.joins = kept
	return None(), nil
}
