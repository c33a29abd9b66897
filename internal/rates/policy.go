package rates

import (
	"time"

	"github.com/iamwavecut/chatguard/internal/config"
)

// Policy scales the base limits by chat kind: groups get three times the
// base command limit, private chats twice. Every command has its own bucket.
type Policy struct {
	limiter *Limiter
	cfg     config.RateLimits
}

func NewPolicy(limiter *Limiter, cfg config.RateLimits) *Policy {
	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}
	return &Policy{limiter: limiter, cfg: cfg}
}

func (p *Policy) CommandLimit(isGroup bool) int {
	if isGroup {
		return p.cfg.CommandLimit * 3
	}
	return p.cfg.CommandLimit * 2
}

func (p *Policy) AllowCommand(userID int64, command string, isGroup bool) bool {
	return p.limiter.Allow(userID, CommandAction(command), p.CommandLimit(isGroup), p.cfg.Period)
}

// CommandAction is the limiter action a command is counted under.
func CommandAction(command string) string {
	return ActionCommand + ":" + command
}
