package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateBound(t *testing.T) {
	start, err := ParseDateBound("2024-03-10", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local), start)

	end, err := ParseDateBound("2024-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 23, 59, 59, 999999999, time.Local), end)

	exact, err := ParseDateBound("2024-03-10T08:30:00Z", true)
	require.NoError(t, err)
	assert.True(t, exact.Equal(time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)))

	zero, err := ParseDateBound("  ", false)
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ParseDateBound("last tuesday", false)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{".jpg", "png"}, SplitList(" .jpg, ,png,"))
	assert.Nil(t, SplitList(""))
}
