// Package tgui provides small Telegram UI helpers: inline keyboard
// builders, "scope:action:payload" callback data and HTML escaping for
// ParseMode="HTML".
package tgui
