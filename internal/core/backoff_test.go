package core

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute}, // capped
		{10, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := Backoff(tc.retryCount, base, max); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.retryCount, got, tc.want)
		}
	}
}

func TestBackoffZeroBase(t *testing.T) {
	if got := Backoff(3, 0, time.Minute); got != 0 {
		t.Errorf("Backoff with zero base = %v, want 0", got)
	}
}
