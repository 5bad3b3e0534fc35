package formattools

import (
	"fmt"
	"strings"
	"time"
)

// Duration renders d as a human readable span, e.g. "1 hour 5 minutes" or
// "4 minutes 10 seconds". Sub-second precision is dropped. Zero-valued
// units are omitted; a span under one second is "0 seconds".
func Duration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int64(d / time.Second)
	if total == 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	var parts []string
	for _, u := range units {
		n := total / u.size
		total %= u.size
		if n == 0 {
			continue
		}
		parts = append(parts, plural(n, u.name))
	}

	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
