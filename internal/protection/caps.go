package protection

import (
	"context"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/utils/text"
)

// CapsDetector flags shouting. Escalation to a ban is left to the warn count
// kept in the store.
type CapsDetector struct {
	cfg config.Caps
}

func NewCapsDetector(cfg config.Caps) *CapsDetector {
	return &CapsDetector{cfg: cfg}
}

func (d *CapsDetector) Category() Category { return CategoryCaps }
func (d *CapsDetector) Enabled() bool      { return d.cfg.Enabled }

func (d *CapsDetector) CheckMessage(ctx context.Context, in *MessageInput) (Verdict, error) {
	if in.Text == "" || text.IsCommand(in.Text) {
		return None(), nil
	}
	if in.IsChatAdmin(ctx) {
		return None(), nil
	}
	if text.Length(in.Text) < d.cfg.MinLength {
		return None(), nil
	}

	ratio := text.UppercaseRatio(in.Text)
	if ratio < d.cfg.Threshold {
		return None(), nil
	}
	v := newVerdict(VerdictWarnAndDelete, CategoryCaps, "too many capital letters")
	v.Ratio = ratio
	return v, nil
}
