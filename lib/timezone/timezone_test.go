package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsIST(t *testing.T) {
	now := Now()
	_, offset := now.Zone()
	// IST is UTC+5:30 year round, no DST
	require.Equal(t, 5*3600+30*60, offset)
}

func TestTodayFormat(t *testing.T) {
	today := Today()
	parsed, err := time.ParseInLocation("02-01-2006", today, Location)
	require.NoError(t, err)
	require.Equal(t, Now().Year(), parsed.Year())
}
