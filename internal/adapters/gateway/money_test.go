package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMajorUnitConversion(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{1250, "USD", "12.50"},
		{1, "usd", "0.01"},
		{0, "EUR", "0.00"},
		{1250, "JPY", "1250"},
		{1250, "KWD", "1.250"},
		{150000, "KES", "1500.00"},
	}

	for _, tt := range tests {
		t.Run(tt.currency+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMajorUnits(tt.amount, tt.currency))

			back, err := FromMajorUnits(tt.want, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.amount, back)
		})
	}
}

func TestFromMajorUnits_RejectsExcessPrecision(t *testing.T) {
	_, err := FromMajorUnits("12.345", "USD")
	assert.Error(t, err)

	_, err = FromMajorUnits("10.5", "JPY")
	assert.Error(t, err)

	_, err = FromMajorUnits("ten", "USD")
	assert.Error(t, err)
}
