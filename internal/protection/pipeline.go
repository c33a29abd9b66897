package protection

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/chatguard/internal/config"
	"github.com/iamwavecut/chatguard/internal/observability"
)

// Pipeline runs detectors in a fixed priority order and stops at the first
// verdict that is not none. A failing detector is logged and skipped.
type Pipeline struct {
	joinDetectors    []JoinDetector
	messageDetectors []MessageDetector
}

func NewPipeline(joinDetectors []JoinDetector, messageDetectors []MessageDetector) *Pipeline {
	return &Pipeline{joinDetectors: joinDetectors, messageDetectors: messageDetectors}
}

// NewDefaultPipeline wires raid and bot checks for joins, then spam, flood
// and caps for text.
func NewDefaultPipeline(cfg config.Protection, windows *Windows) *Pipeline {
	return NewPipeline(
		[]JoinDetector{
			NewRaidDetector(cfg.Raid, windows),
			NewBotDetector(cfg.Bots),
		},
		[]MessageDetector{
			NewSpamDetector(cfg.Spam, windows),
			NewFloodDetector(cfg.Flood, windows),
			NewCapsDetector(cfg.Caps),
		},
	)
}

func (p *Pipeline) EvaluateJoins(ctx context.Context, in Joins) Verdict {
	if len(in.Members) == 0 {
		return None()
	}
	for _, d := range p.joinDetectors {
		if !d.Enabled() {
			continue
		}
		v, err := d.CheckJoins(ctx, in)
		if err != nil {
			p.getLogEntry().WithFields(log.Fields{
				"detector": d.Category(),
				"chat_id":  in.ChatID,
				"error":    err.Error(),
			}).Error("join detector failed")
			continue
		}
		if !v.IsNone() {
			observability.RecordVerdict(string(v.Category), v.Kind.String())
			return v
		}
	}
	return None()
}

func (p *Pipeline) EvaluateMessage(ctx context.Context, in *MessageInput) Verdict {
	for _, d := range p.messageDetectors {
		if !d.Enabled() {
			continue
		}
		v, err := d.CheckMessage(ctx, in)
		if err != nil {
			p.getLogEntry().WithFields(log.Fields{
				"detector": d.Category(),
				"chat_id":  in.ChatID,
				"user_id":  in.UserID,
				"error":    err.Error(),
			}).Error("message detector failed")
			continue
		}
		if !v.IsNone() {
			observability.RecordVerdict(string(v.Category), v.Kind.String())
			return v
		}
	}
	return None()
}

func (p *Pipeline) getLogEntry() *log.Entry {
	return log.WithField("object", "pipeline")
}
