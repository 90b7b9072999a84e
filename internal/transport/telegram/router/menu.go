package router

import (
	"strings"
	"unicode"

	kit "remindbot/internal/transport"
)

// sanitizeTelegramCommand converts a command name into Telegram's
// [a-z0-9_]{1,32} form. It returns "" when nothing usable is left.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		return ""
	}
	return out
}

// menuCommands lists the public commands for the platform menu, in
// registration order. Owner-only commands stay out of the menu.
func menuCommands(cmds []Command) []kit.BotCommand {
	seen := map[string]bool{}
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Access == AccessOwnerOnly || c.Hidden {
			continue
		}
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = name
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: name, Description: desc})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
