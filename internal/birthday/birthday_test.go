package birthday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextFor(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		birthday  time.Time
		wantStart time.Time
		wantAge   int
	}{
		{
			name:      "upcoming this year",
			now:       date(2026, time.March, 10),
			birthday:  date(1990, time.May, 15),
			wantStart: date(2026, time.May, 15),
			wantAge:   36,
		},
		{
			name:      "already passed rolls to next year",
			now:       date(2026, time.June, 1),
			birthday:  date(1990, time.May, 15),
			wantStart: date(2027, time.May, 15),
			wantAge:   37,
		},
		{
			name:      "today counts as upcoming",
			now:       date(2026, time.May, 15),
			birthday:  date(1990, time.May, 15),
			wantStart: date(2026, time.May, 15),
			wantAge:   36,
		},
		{
			name:      "yesterday rolls over",
			now:       date(2026, time.May, 16),
			birthday:  date(1990, time.May, 15),
			wantStart: date(2027, time.May, 15),
			wantAge:   37,
		},
		{
			name:      "december birthday in january",
			now:       date(2026, time.January, 2),
			birthday:  date(2000, time.December, 31),
			wantStart: date(2026, time.December, 31),
			wantAge:   26,
		},
		{
			name:      "non-midnight now still compares by date",
			now:       time.Date(2026, time.May, 15, 23, 59, 0, 0, time.UTC),
			birthday:  date(1990, time.May, 15),
			wantStart: date(2026, time.May, 15),
			wantAge:   36,
		},
		{
			name:      "feb 29 normalizes in non-leap years",
			now:       date(2026, time.January, 10),
			birthday:  date(2000, time.February, 29),
			wantStart: date(2026, time.March, 1),
			wantAge:   26,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occ := NextFor(tt.now, Contact{ID: "c1", Name: "John Doe", Birthday: tt.birthday})
			assert.Equal(t, tt.wantStart, occ.Start)
			assert.Equal(t, tt.wantAge, occ.Age)
			assert.Equal(t, tt.wantStart.AddDate(0, 0, 1), occ.End())
		})
	}
}

func TestSameMonthDay(t *testing.T) {
	bday := date(1990, time.May, 15)

	tests := []struct {
		name  string
		start string
		want  bool
	}{
		{"same month and day", "2026-05-15", true},
		{"year difference ignored", "2031-05-15", true},
		{"different day", "2026-05-14", false},
		{"different month", "2026-06-15", false},
		{"datetime prefix accepted", "2026-05-15T00:00:00", true},
		{"empty", "", false},
		{"garbage", "not-a-date", false},
		{"too short", "2026-05", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameMonthDay(tt.start, bday))
		})
	}

	t.Run("feb 29 stored as mar 1 matches in non-leap year", func(t *testing.T) {
		leapling := date(2000, time.February, 29)
		assert.True(t, SameMonthDay("2026-03-01", leapling))
		assert.True(t, SameMonthDay("2028-02-29", leapling))
		assert.False(t, SameMonthDay("2026-03-02", leapling))
	})
}
