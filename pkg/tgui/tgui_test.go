package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	d := Data("remind", "hour", "7:00 AM")
	assert.Equal(t, "remind:hour:7:00 AM", d)

	scope, action, payload, ok := SplitData(d)
	require.True(t, ok)
	assert.Equal(t, "remind", scope)
	assert.Equal(t, "hour", action)
	assert.Equal(t, "7:00 AM", payload, "payload keeps its own colons")

	_, _, payload, ok = SplitData(Data("settings", "list", ""))
	require.True(t, ok)
	assert.Empty(t, payload)

	_, _, _, ok = SplitData("garbage")
	assert.False(t, ok)
}

func TestCheckedDataLimit(t *testing.T) {
	t.Parallel()
	_, err := CheckedData("settings", "del", strings.Repeat("x", 60))
	assert.ErrorIs(t, err, ErrCallbackDataTooLong)

	d, err := CheckedData("settings", "del", "42")
	require.NoError(t, err)
	assert.Equal(t, "settings:del:42", d)
}

func TestInlineGrid(t *testing.T) {
	t.Parallel()
	kb := NewInline().Grid(4, Btn("a", "1"), Btn("b", "2"), Btn("c", "3"), Btn("d", "4"), Btn("e", "5"))
	assert.Equal(t, 2, kb.Rows())
	kb.Row()
	assert.Equal(t, 2, kb.Rows(), "empty rows are skipped")
	require.Len(t, kb.Markup().InlineKeyboard, 2)
	assert.Len(t, kb.Markup().InlineKeyboard[1], 1)
}

func TestHTMLHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, H("<b>a&lt;b</b>"), B("a<b"))
	assert.Equal(t, H("x\ny"), JoinH("\n", "x", " ", "y"))
}
