package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-03T09:00:00Z", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
		{"2024-06-03T09:00:00+02:00", time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)},
		{"2024-06-03T09:00:00", time.Date(2024, 6, 3, 3, 30, 0, 0, time.UTC)},
		{"2024-06-03T09:00", time.Date(2024, 6, 3, 3, 30, 0, 0, time.UTC)},
		{" 2024-06-03 09:00 ", time.Date(2024, 6, 3, 3, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := ParseTime(tc.in, loc)
		require.NoError(t, err, tc.in)
		assert.Truef(t, tc.want.Equal(got), "%s: got %s", tc.in, got)
	}

	for _, bad := range []string{"", "tomorrow", "2024-13-01T00:00:00"} {
		_, err := ParseTime(bad, loc)
		assert.Error(t, err, bad)
	}
}
