package permissions

import (
	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/chatguard/internal/gateway"
)

// Capabilities an AdminGrant can carry.
const (
	CapabilityBan  = "ban"
	CapabilityWarn = "warn"
	CapabilityMute = "mute"
)

func RoleOf(member *api.ChatMember) gateway.Role {
	if member == nil {
		return gateway.RoleLeft
	}
	switch {
	case member.IsCreator():
		return gateway.RoleCreator
	case member.IsAdministrator():
		return gateway.RoleAdministrator
	}
	switch gateway.Role(member.Status) {
	case gateway.RoleRestricted, gateway.RoleLeft, gateway.RoleKicked:
		return gateway.Role(member.Status)
	}
	return gateway.RoleMember
}

// CapabilityForCommand maps a moderation command to the grant capability it needs.
func CapabilityForCommand(command string) (string, bool) {
	switch command {
	case "ban", "unban":
		return CapabilityBan, true
	case "warn", "warns", "clearwarns", "unwarn":
		return CapabilityWarn, true
	case "mute", "unmute":
		return CapabilityMute, true
	}
	return "", false
}
