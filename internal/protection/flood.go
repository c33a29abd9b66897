package protection

import (
	"context"

	"github.com/iamwavecut/chatguard/internal/config"
)

// FloodDetector counts every message of the sender inside the window,
// regardless of content. Entries older than twice the window are dropped.
type FloodDetector struct {
	cfg     config.Flood
	windows *Windows
}

func NewFloodDetector(cfg config.Flood, windows *Windows) *FloodDetector {
	return &FloodDetector{cfg: cfg, windows: windows}
}

func (d *FloodDetector) Category() Category { return CategoryFlood }
func (d *FloodDetector) Enabled() bool      { return d.cfg.Enabled }

func (d *FloodDetector) CheckMessage(ctx context.Context, in *MessageInput) (Verdict, error) {
	if in.IsChatAdmin(ctx) {
		return None(), nil
	}

	h := d.windows.History(in.ChatID, in.UserID)
	h.messages = append(pruneTimes(h.messages, in.At, 2*d.cfg.Window), in.At)
	count := countTimes(h.messages, in.At, d.cfg.Window)

	return thresholdVerdict(CategoryFlood, count, d.cfg.Threshold, d.cfg.BanThreshold, "too many messages too fast"), nil
}
