package adapter

import "strings"

const telegramTextLimit = 4000

// splitTelegramText cuts s into chunks of at most limit runes. It prefers
// newline boundaries and, for HTML parse mode, avoids cutting inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	html := strings.EqualFold(parseMode, "HTML")
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			end = newlineCut(rs, start, end, limit)
			if html {
				end = tagCut(rs, start, end)
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// newlineCut moves end back to just after the last newline in the window,
// unless that would leave a chunk shorter than a third of limit.
func newlineCut(rs []rune, start, end, limit int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] == '\n' {
			if i-start >= limit/3 {
				return i + 1
			}
			break
		}
	}
	return end
}

// tagCut moves end back to the start of a tag left open in the window.
func tagCut(rs []rune, start, end int) int {
	lastOpen, lastClose := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			lastOpen = i
		case '>':
			lastClose = i
		}
	}
	if lastOpen > lastClose && lastOpen > start+1 {
		return lastOpen
	}
	return end
}
