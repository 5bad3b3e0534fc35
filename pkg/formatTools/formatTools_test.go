package formattools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "zero", in: 0, want: "0 seconds"},
		{name: "sub second", in: 900 * time.Millisecond, want: "0 seconds"},
		{name: "one second", in: time.Second, want: "1 second"},
		{name: "minutes and seconds", in: 250 * time.Second, want: "4 minutes 10 seconds"},
		{name: "hour and minutes", in: time.Hour + 5*time.Minute, want: "1 hour 5 minutes"},
		{name: "days", in: 49 * time.Hour, want: "2 days 1 hour"},
		{name: "negative", in: -90 * time.Second, want: "1 minute 30 seconds"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Duration(tt.in))
		})
	}
}
