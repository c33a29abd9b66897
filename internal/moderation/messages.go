package moderation

import (
	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/chatguard/internal/protection"
)

const (
	tplWarn = `Warning: {{ .reason }}.

Total warnings: {{ .count }}`
	tplAutoBan = `User banned: {{ .reason }} ({{ .count }} warnings).`
	tplBan     = `User banned: {{ .reason }}{{ if .count }} ({{ .count }}){{ end }}.`
	tplRaid    = `Anti-raid protection engaged: {{ .count }} suspicious users banned.`
	tplBots    = `Bot banned: adding bots is not allowed.`

	msgNotEnoughRights = "I don't have enough rights to ban this user"
)

var categoryReasons = map[protection.Category]string{
	protection.CategorySpam:  "the same message was sent repeatedly",
	protection.CategoryFlood: "messages are sent too fast",
	protection.CategoryCaps:  "too many capital letters",
	protection.CategoryRaid:  "suspicious join burst",
	protection.CategoryBot:   "adding bots is not allowed",
}

func warnText(category protection.Category, count int) string {
	return tool.ExecTemplate(tplWarn, map[string]any{
		"reason": categoryReasons[category],
		"count":  count,
	})
}

func autoBanText(category protection.Category, count int) string {
	return tool.ExecTemplate(tplAutoBan, map[string]any{
		"reason": categoryReasons[category],
		"count":  count,
	})
}

func banText(category protection.Category, count int) string {
	return tool.ExecTemplate(tplBan, map[string]any{
		"reason": categoryReasons[category],
		"count":  count,
	})
}

func raidText(count int) string {
	return tool.ExecTemplate(tplRaid, map[string]any{"count": count})
}
