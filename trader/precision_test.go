package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecimalsOf(t *testing.T) {
	tests := []struct {
		step string
		want int
	}{
		{"0.00100000", 3},
		{"0.00010000", 4},
		{"1.00000000", 0},
		{"0.10000000", 1},
		{"100", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decimalsOf(tt.step), "decimalsOf(%q)", tt.step)
	}
}

func TestTrimTrailingZeros(t *testing.T) {
	assert.Equal(t, "0.001", trimTrailingZeros("0.00100000"))
	assert.Equal(t, "1", trimTrailingZeros("1.00000000"))
	assert.Equal(t, "100", trimTrailingZeros("100"))
}

func TestFormatQuantity_FallsBackOnExchangeInfoFailure(t *testing.T) {
	c := newTestClientAgainstServer(t, "")
	qtyStr, err := c.FormatQuantity("BTCUSDT", 1.23456)
	assert.NoError(t, err, "formatting falls back to a default precision rather than erroring")
	assert.Equal(t, "1.235", qtyStr)
}
