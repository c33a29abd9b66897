package protection

import (
	"context"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/utils/text"
)

// SpamDetector counts consecutive identical messages. A run is anchored at
// its first message, so the window measures how long the run has lasted.
type SpamDetector struct {
	cfg     config.Spam
	windows *Windows
}

func NewSpamDetector(cfg config.Spam, windows *Windows) *SpamDetector {
	return &SpamDetector{cfg: cfg, windows: windows}
}

func (d *SpamDetector) Category() Category { return CategorySpam }
func (d *SpamDetector) Enabled() bool      { return d.cfg.Enabled }

func (d *SpamDetector) CheckMessage(ctx context.Context, in *MessageInput) (Verdict, error) {
	if in.Text == "" || text.IsCommand(in.Text) {
		return None(), nil
	}
	if in.IsChatAdmin(ctx) {
		return None(), nil
	}

	h := d.windows.History(in.ChatID, in.UserID)
	normalized := text.Normalize(in.Text)
	if h.repeatCount > 0 && normalized == h.lastText && within(in.At, h.lastRepeatAt, d.cfg.Window) {
		h.repeatCount++
	} else {
		h.lastText = normalized
		h.repeatCount = 1
		h.lastRepeatAt = in.At
	}

	return thresholdVerdict(CategorySpam, h.repeatCount, d.cfg.Threshold, d.cfg.BanThreshold, "same message sent repeatedly"), nil
}
