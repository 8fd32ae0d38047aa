package gateway

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ISO-4217 currencies whose minor unit is not 1/100
var (
	zeroDecimalCurrencies = map[string]bool{
		"BIF": true, "CLP": true, "DJF": true, "GNF": true, "ISK": true,
		"JPY": true, "KMF": true, "KRW": true, "PYG": true, "RWF": true,
		"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
		"XPF": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"BHD": true, "IQD": true, "JOD": true, "KWD": true, "LYD": true,
		"OMR": true, "TND": true,
	}
)

// currencyExponent returns the number of minor-unit digits of currency
func currencyExponent(currency string) int32 {
	code := strings.ToUpper(currency)
	switch {
	case zeroDecimalCurrencies[code]:
		return 0
	case threeDecimalCurrencies[code]:
		return 3
	default:
		return 2
	}
}

// ToMajorUnits converts integer minor units into a decimal amount in major units
func ToMajorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -currencyExponent(currency))
}

// FormatMajorUnits renders amount with the currency's fixed number of decimals
func FormatMajorUnits(amount int64, currency string) string {
	return ToMajorUnits(amount, currency).StringFixed(currencyExponent(currency))
}

// FromMajorUnits parses a provider amount string back into minor units.
// Values with more precision than the currency allows are rejected.
func FromMajorUnits(value, currency string) (int64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	minor := d.Shift(currencyExponent(currency))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", value, strings.ToUpper(currency))
	}
	return minor.IntPart(), nil
}
