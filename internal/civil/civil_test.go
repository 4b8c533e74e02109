package civil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const ntpUnixOffset = 2208988800

func ntpSeconds(t time.Time) uint32 {
	return uint32(t.Unix() + ntpUnixOffset)
}

func fromTime(t time.Time) DateTime {
	return DateTime{
		Year:    t.Year(),
		Month:   t.Month(),
		Date:    t.Day(),
		Weekday: t.Weekday(),
		Hour:    t.Hour(),
		Min:     t.Minute(),
		Sec:     t.Second(),
		YearDay: t.YearDay() - 1,
		Leap:    isLeap(t.Year()),
	}
}

func TestConvert_KnownInstants(t *testing.T) {
	tests := []struct {
		name  string
		at    time.Time
		month string
		day   string
	}{
		{"non-leap year", time.Date(2023, 7, 14, 9, 26, 53, 0, time.UTC), "July", "Friday"},
		{"leap day", time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), "February", "Thursday"},
		{"march after leap day", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "March", "Friday"},
		{"new year's eve", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), "December", "Sunday"},
		{"new year", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "January", "Monday"},
		{"origin", time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC), "March", "Wednesday"},
		{"day before origin", time.Date(2000, 2, 29, 12, 0, 0, 0, time.UTC), "February", "Tuesday"},
		{"century non-leap", time.Date(1900, 2, 28, 6, 0, 0, 0, time.UTC), "February", "Wednesday"},
		{"century march", time.Date(1900, 3, 1, 0, 0, 0, 0, time.UTC), "March", "Thursday"},
		{"unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), "January", "Thursday"},
		{"end of era 0", time.Date(2036, 2, 7, 6, 28, 15, 0, time.UTC), "February", "Thursday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(ntpSeconds(tt.at), 0, 0)
			assert.Equal(t, fromTime(tt.at), got)
			assert.Equal(t, tt.month, got.MonthName())
			assert.Equal(t, tt.day, got.DayName())
		})
	}
}

func TestConvert_EpochPlusOneSecond(t *testing.T) {
	got := Convert(1, 0, 0)
	assert.Equal(t, DateTime{
		Year: 1900, Month: time.January, Date: 1, Weekday: time.Monday,
		Hour: 0, Min: 0, Sec: 1, YearDay: 0, Leap: false,
	}, got)
}

func TestConvert_MaxValue(t *testing.T) {
	got := Convert(^uint32(0), 0, 0)
	assert.Equal(t, 2036, got.Year)
	assert.Equal(t, time.February, got.Month)
	assert.Equal(t, 7, got.Date)
	assert.Equal(t, 6, got.Hour)
	assert.Equal(t, 28, got.Min)
	assert.Equal(t, 15, got.Sec)
}

func TestConvert_Timezone(t *testing.T) {
	tests := []struct {
		name    string
		utc     time.Time
		hours   int8
		minutes uint8
		want    time.Time
	}{
		{
			name: "forward across midnight and year",
			utc:  time.Date(2023, 12, 31, 22, 15, 0, 0, time.UTC),
			hours: 5, minutes: 30,
			want: time.Date(2024, 1, 1, 3, 45, 0, 0, time.UTC),
		},
		{
			name: "backward across midnight",
			utc:  time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC),
			hours: -8,
			want: time.Date(2024, 2, 29, 18, 0, 0, 0, time.UTC),
		},
		{
			name: "minutes are additive with negative hours",
			utc:  time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
			hours: -3, minutes: 30,
			want: time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			name: "backward across year",
			utc:  time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC),
			hours: -1,
			want: time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Convert(ntpSeconds(tt.utc), tt.hours, tt.minutes)
			assert.Equal(t, fromTime(tt.want), got)
		})
	}
}

func TestConvert_MidnightHasZeroTime(t *testing.T) {
	for days := int64(-36584); days <= 13000; days += 997 {
		raw := uint32(int64(leapoch) + days*secsPerDay)
		got := Convert(raw, 0, 0)
		assert.Zero(t, got.Hour, "days=%d", days)
		assert.Zero(t, got.Min, "days=%d", days)
		assert.Zero(t, got.Sec, "days=%d", days)
	}
}

func TestConvert_Idempotent(t *testing.T) {
	raw := ntpSeconds(time.Date(2031, 10, 5, 17, 3, 9, 0, time.UTC))
	assert.Equal(t, Convert(raw, 3, 15), Convert(raw, 3, 15))
}

// Сверка с пакетом time по всему диапазону эры 0 с шагом, не кратным суткам.
func TestConvert_MatchesTimePackage(t *testing.T) {
	const step = 86400*13 + 3607
	for raw := uint64(0); raw <= uint64(^uint32(0)); raw += step {
		want := time.Unix(int64(raw)-ntpUnixOffset, 0).UTC()
		got := Convert(uint32(raw), 0, 0)
		if got != fromTime(want) {
			t.Fatalf("raw=%d: got %+v, want %v", raw, got, want)
		}
	}
}
