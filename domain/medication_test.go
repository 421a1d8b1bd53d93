package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleContains_ExactMatchOnly(t *testing.T) {
	s := Schedule{"09:00", "21:00"}

	assert.True(t, s.Contains("09:00"))
	assert.True(t, s.Contains("21:00"))
	assert.False(t, s.Contains("9:00"), "matching is exact string equality")
	assert.False(t, s.Contains("19:00"))
	assert.False(t, s.Contains(""))
}

func TestScheduleRoundTrip(t *testing.T) {
	s := Schedule{"08:30", "20:30"}

	v, err := s.Value()
	require.NoError(t, err)

	var got Schedule
	require.NoError(t, got.Scan(v))
	assert.Equal(t, s, got)
}

func TestScheduleValue_NilBecomesEmptyArray(t *testing.T) {
	var s Schedule
	v, err := s.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestScheduleScan_RejectsUnsupportedType(t *testing.T) {
	var s Schedule
	assert.Error(t, s.Scan(42))
}

func TestDaysRemaining(t *testing.T) {
	tests := []struct {
		name     string
		stock    int64
		schedule Schedule
		want     int64
	}{
		{"two doses per day", 30, Schedule{"09:00", "21:00"}, 15},
		{"rounds down", 7, Schedule{"09:00", "15:00", "21:00"}, 2},
		{"empty schedule", 30, Schedule{}, 0},
		{"zero stock", 0, Schedule{"09:00"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			med := Medication{CurrentStock: tt.stock, Schedule: tt.schedule}
			assert.Equal(t, tt.want, med.DaysRemaining())
		})
	}
}
