// Package pkg holds small helpers shared across the HTTP layer.
package pkg

import (
	"strconv"
	"strings"
	"time"
)

var latencyUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// FormatLatency renders d compactly for response headers and logs.
// Sub-second values use a single unit ("250ms", "85μs", "900ns"); longer
// ones keep the two largest units ("1m30s", "2h5m").
func FormatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "0"
	case d < time.Microsecond:
		return strconv.FormatInt(d.Nanoseconds(), 10) + "ns"
	case d < time.Millisecond:
		return strconv.FormatInt(d.Microseconds(), 10) + "μs"
	case d < time.Second:
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}

	var b strings.Builder
	parts := 0
	for _, u := range latencyUnits {
		if d < u.size {
			if parts > 0 {
				break
			}
			continue
		}
		b.WriteString(strconv.FormatInt(int64(d/u.size), 10))
		b.WriteString(u.suffix)
		d %= u.size
		if parts++; parts == 2 || d < time.Second {
			break
		}
	}
	return b.String()
}
