package protection

import (
	"context"

	"github.com/iamwavecut/chatguard/internal/config"
)

// BotDetector rejects bot accounts added to the chat, except the guard itself.
type BotDetector struct {
	cfg config.Bots
}

func NewBotDetector(cfg config.Bots) *BotDetector {
	return &BotDetector{cfg: cfg}
}

func (d *BotDetector) Category() Category { return CategoryBot }
func (d *BotDetector) Enabled() bool      { return d.cfg.Enabled }

func (d *BotDetector) CheckJoins(_ context.Context, in Joins) (Verdict, error) {
	var targets []int64
	for _, m := range in.Members {
		if m.IsBot && m.UserID != in.SelfID {
			targets = append(targets, m.UserID)
		}
	}
	if len(targets) == 0 {
		return None(), nil
	}
	v := newVerdict(VerdictBan, CategoryBot, "adding bots is not allowed")
	v.Targets = targets
	v.Count = len(targets)
	return v, nil
}
