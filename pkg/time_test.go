package pkg

import (
	"testing"
	"time"
)

func TestFormatLatency(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0"},
		{-time.Second, "0"},
		{900 * time.Nanosecond, "900ns"},
		{85 * time.Microsecond, "85μs"},
		{250*time.Millisecond + 400*time.Microsecond, "250ms"},
		{1500 * time.Millisecond, "1s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute + 7*time.Second, "2h5m"},
		{time.Hour + 3*time.Second, "1h"},
	}
	for _, tc := range cases {
		if got := FormatLatency(tc.in); got != tc.want {
			t.Fatalf("FormatLatency(%s)=%q want %q", tc.in, got, tc.want)
		}
	}
}
