package reminder

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekdayStdRoundTrip(t *testing.T) {
	t.Parallel()
	require.Equal(t, time.Monday, Monday.Std())
	require.Equal(t, time.Sunday, Sunday.Std())
	for d := Monday; d <= Sunday; d++ {
		assert.Equal(t, d, FromStd(d.Std()), "weekday %d", d)
	}
}

func TestNewDaySetNormalizes(t *testing.T) {
	t.Parallel()
	s, err := NewDaySet(Friday, Monday, Wednesday, Monday)
	require.NoError(t, err)
	assert.Equal(t, DaySet{Monday, Wednesday, Friday}, s)
	assert.Equal(t, []string{"0", "2", "4"}, s.Strings())
	assert.Equal(t, "Mon, Wed, Fri", s.String())
	assert.True(t, s.ContainsStd(time.Wednesday))
	assert.False(t, s.ContainsStd(time.Sunday))
}

func TestNewDaySetRejects(t *testing.T) {
	t.Parallel()
	_, err := NewDaySet()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindValidation))

	_, err = NewDaySet(Weekday(7))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidChoice))
}

func TestParseClockLabel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		label string
		want  TimeOfDay
	}{
		{"4:00 AM", TimeOfDay{Hour: 4}},
		{"11:00 AM", TimeOfDay{Hour: 11}},
		{"12:00 PM", TimeOfDay{Hour: 12}},
		{"1:00 PM", TimeOfDay{Hour: 13}},
		{"11:00 PM", TimeOfDay{Hour: 23}},
		{"12:00 AM", TimeOfDay{Hour: 0}},
		{"2:30 pm", TimeOfDay{Hour: 14, Minute: 30}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParseClockLabel(tt.label)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "13:00 PM", "7:00", "0:00 AM", "7:61 AM", "seven AM"} {
		_, err := ParseClockLabel(bad)
		assert.Error(t, err, "label %q", bad)
	}
}

func TestTimeOfDayFormats(t *testing.T) {
	t.Parallel()
	tod := TimeOfDay{Hour: 14, Minute: 30}
	assert.Equal(t, "14:30:00", tod.String())
	assert.Equal(t, "02:30 PM", tod.Label())
	assert.Equal(t, "12:00 AM", TimeOfDay{}.Label())
	assert.Equal(t, "12:05 PM", TimeOfDay{Hour: 12, Minute: 5}.Label())

	got, err := ParseTimeOfDay("14:30:00")
	require.NoError(t, err)
	assert.Equal(t, tod, got)
	got, err = ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, got)

	_, err = ParseTimeOfDay("24:00:00")
	assert.Error(t, err)
}

func TestSpecMessageOr(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Study now", Spec{Message: "Study now"}.MessageOr("x"))
	assert.Equal(t, "x", Spec{Message: "  "}.MessageOr("x"))
	assert.Equal(t, DefaultMessage, Spec{}.MessageOr(""))
}
