package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, date(2024, time.February, 29), EndOfMonth(2024, 2))
	assert.Equal(t, date(2023, time.February, 28), EndOfMonth(2023, 2))
	assert.Equal(t, date(2023, time.December, 31), EndOfMonth(2023, 12))
	assert.Equal(t, date(2023, time.April, 30), EndOfMonth(2023, 4))
}

func TestResolveStart_Boundaries(t *testing.T) {
	cases := []struct {
		name        string
		end         time.Time
		periodicity int
		want        time.Time
	}{
		{"monthly", date(2023, time.May, 31), 1, date(2023, time.May, 1)},
		{"bimonthly", date(2023, time.April, 30), 2, date(2023, time.March, 1)},
		{"quarterly", date(2023, time.June, 30), 3, date(2023, time.April, 1)},
		{"quarterly q1", date(2023, time.March, 31), 3, date(2023, time.January, 1)},
		{"four months august", date(2023, time.August, 31), 4, date(2023, time.April, 1)},
		{"four months december", date(2023, time.December, 31), 4, date(2023, time.August, 1)},
		{"four months april rolls back a year", date(2023, time.April, 30), 4, date(2022, time.December, 1)},
		{"semester june", date(2023, time.June, 30), 6, date(2023, time.January, 1)},
		{"semester december", date(2023, time.December, 31), 6, date(2023, time.July, 1)},
		{"yearly", date(2023, time.December, 31), 12, date(2023, time.January, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ResolveStart(tc.end, tc.periodicity)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveStart_NotOnBoundary(t *testing.T) {
	boundary := map[int]func(month int) bool{
		2:  func(m int) bool { return m%2 == 0 },
		3:  func(m int) bool { return m%3 == 0 },
		4:  func(m int) bool { return m%4 == 0 },
		6:  func(m int) bool { return m%6 == 0 },
		12: func(m int) bool { return m == 12 },
	}
	for periodicity, fires := range boundary {
		for month := 1; month <= 12; month++ {
			_, ok := ResolveStart(EndOfMonth(2023, month), periodicity)
			assert.Equal(t, fires(month), ok, "periodicity=%d month=%d", periodicity, month)
		}
	}
}

func TestResolveStart_UnknownPeriodicity(t *testing.T) {
	for _, periodicity := range []int{0, 5, 7, 24, -1} {
		_, ok := ResolveStart(date(2023, time.December, 31), periodicity)
		assert.False(t, ok, "periodicity=%d", periodicity)
	}
}

func TestPeriodOf(t *testing.T) {
	cases := []struct {
		start, end time.Time
		wantType   PeriodType
		wantID     int
	}{
		{date(2023, time.May, 1), date(2023, time.May, 31), PeriodMonthly, 5},
		{date(2023, time.April, 1), date(2023, time.June, 30), PeriodQuarterly, 2},
		{date(2023, time.January, 1), date(2023, time.June, 30), PeriodSemester, 1},
		{date(2023, time.July, 1), date(2023, time.December, 31), PeriodSemester, 2},
		{date(2023, time.January, 1), date(2023, time.December, 31), PeriodYearly, 1},
		{date(2023, time.March, 1), date(2023, time.April, 30), PeriodNone, 0},
		{date(2023, time.January, 1), date(2023, time.September, 30), PeriodNone, 0},
	}
	for _, tc := range cases {
		gotType, gotID := PeriodOf(tc.start, tc.end)
		assert.Equal(t, tc.wantType, gotType, "%s..%s", DateKey(tc.start), DateKey(tc.end))
		assert.Equal(t, tc.wantID, gotID, "%s..%s", DateKey(tc.start), DateKey(tc.end))
	}
}

func TestPeriodOf_ResolvedWindows(t *testing.T) {
	cases := []struct {
		end         time.Time
		periodicity int
		wantType    PeriodType
		wantID      int
	}{
		{date(2023, time.May, 31), 1, PeriodMonthly, 5},
		{date(2023, time.September, 30), 3, PeriodQuarterly, 3},
		{date(2023, time.June, 30), 6, PeriodSemester, 1},
		{date(2023, time.December, 31), 6, PeriodSemester, 2},
		{date(2023, time.December, 31), 12, PeriodYearly, 1},
		{date(2023, time.August, 31), 4, PeriodNone, 0},
	}
	for _, tc := range cases {
		start, ok := ResolveStart(tc.end, tc.periodicity)
		require.True(t, ok, "periodicity=%d", tc.periodicity)
		gotType, gotID := PeriodOf(start, tc.end)
		assert.Equal(t, tc.wantType, gotType, "periodicity=%d", tc.periodicity)
		assert.Equal(t, tc.wantID, gotID, "periodicity=%d", tc.periodicity)
	}
}

func TestRunKey(t *testing.T) {
	sentinel := NoLocation
	key := NewRunKey(2023, 5, &sentinel)
	assert.Nil(t, key.LocationID)
	assert.Equal(t, NoLocation, key.LocationOrSentinel())

	loc := int64(17)
	key = NewRunKey(2023, 5, &loc)
	k1, k2 := key.LockKey()
	assert.Equal(t, int32(202305), k1)
	assert.Equal(t, int32(17), k2)
	assert.Equal(t, date(2023, time.May, 31), key.EndDate())

	assert.ErrorIs(t, NewRunKey(2023, 13, nil).Validate(), ErrInvalidCommand)
	assert.ErrorIs(t, NewRunKey(0, 1, nil).Validate(), ErrInvalidCommand)
}
