package events

import (
	"math"
	"testing"
	"time"
)

func TestTimerPenalty_Penalty(t *testing.T) {
	cases := []struct {
		amount int
		want   time.Duration
	}{
		{0, 0},
		{10, 10 * time.Second},
		{-5, -5 * time.Second},
		{int(math.MaxInt64/int64(time.Second)) + 1, math.MaxInt64},
		{math.MaxInt, math.MaxInt64},
		{math.MinInt, math.MinInt64},
	}
	for _, c := range cases {
		if got := (TimerPenaltyPayload{Amount: c.amount}).Penalty(); got != c.want {
			t.Errorf("Expected %v for amount %d, got %v", c.want, c.amount, got)
		}
	}
}
