package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestSplitShortTextUnchanged(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"hi"}, splitTelegramText("hi", 10, ""))
	assert.Equal(t, []string{""}, splitTelegramText("", 10, ""))
}

func TestSplitPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, got)
}

func TestSplitHardCutWithoutNewline(t *testing.T) {
	t.Parallel()
	got := splitTelegramText(strings.Repeat("x", 25), 10, "")
	require.Len(t, got, 3)
	assert.Len(t, got[2], 5)
}

func TestSplitAvoidsOpenTag(t *testing.T) {
	t.Parallel()
	s := "abcdef<b>bold</b>"
	got := splitTelegramText(s, 8, "HTML")
	require.NotEmpty(t, got)
	assert.Equal(t, "abcdef", got[0], "cut before the dangling tag")
	assert.Equal(t, s, strings.Join(got, ""))
}

func TestMenuHashChangesWithContent(t *testing.T) {
	t.Parallel()
	a := []kit.BotCommand{{Command: "remind", Description: "Set a reminder"}}
	b := []kit.BotCommand{{Command: "remind", Description: "Set a new reminder"}}
	assert.Equal(t, menuHash(a), menuHash(a))
	assert.NotEqual(t, menuHash(a), menuHash(b))
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}
