package wire

import "math"

// Fixed is the 24.8 signed fixed-point number of the wire protocol.
type Fixed int32

// FixedFromInt converts an integer without loss.
func FixedFromInt(v int) Fixed {
	return Fixed(int32(v) << 8)
}

// FixedFromFloat converts v, rounding to the nearest 1/256.
func FixedFromFloat(v float64) Fixed {
	return Fixed(int32(math.Round(v * 256.0)))
}

// Float returns the value as raw/256.
func (f Fixed) Float() float64 {
	return float64(f) / 256.0
}

// Int returns the integer part, rounded towards negative infinity.
func (f Fixed) Int() int {
	return int(f >> 8)
}
