package civil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOfUsesUTCComponents(t *testing.T) {
	// 23:30 on May 31st in UTC-5 is already June 1st in UTC.
	zone := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2024, time.May, 31, 23, 30, 0, 0, zone)

	d := DateOf(local)
	assert.Equal(t, "2024-06-01", d.String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2024, Month: time.June, Day: 1}, d)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), d.Time())

	for _, bad := range []string{"", "2024-6-1", "2024-02-30", "01/06/2024"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"09:00", "09:00:00"},
		{"09:30:15", "09:30:15"},
		{"23:59", "23:59:00"},
		{"00:00:00", "00:00:00"},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String())
	}

	for _, bad := range []string{"", "24:00", "9am", "12:60"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayFromDuration(t *testing.T) {
	tod, err := TimeOfDayFromDuration(9*time.Hour + 30*time.Minute + 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "09:30:00", tod.String())

	_, err = TimeOfDayFromDuration(24 * time.Hour)
	assert.Error(t, err)
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	at := func(s string) TimeOfDay {
		v, err := ParseTimeOfDay(s)
		require.NoError(t, err)
		return v
	}

	assert.True(t, Overlaps(at("09:00"), at("10:00"), at("09:30"), at("10:30")))
	assert.True(t, Overlaps(at("09:00"), at("12:00"), at("10:00"), at("11:00")))
	assert.False(t, Overlaps(at("09:00"), at("10:00"), at("10:00"), at("11:00")))
	assert.False(t, Overlaps(at("11:00"), at("12:00"), at("09:00"), at("10:00")))
}

func TestJSONRoundTripFormats(t *testing.T) {
	var payload struct {
		Date  Date      `json:"date"`
		Start TimeOfDay `json:"start_time"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-06-01","start_time":"09:00"}`), &payload))

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-06-01","start_time":"09:00:00"}`, string(out))
}
