package codec

import (
	"math"
	"strconv"
)

// RoundingMode selects how AppendFloat settles the last fractional digit.
type RoundingMode uint8

const (
	// RoundHalfUp rounds ties away from zero.
	RoundHalfUp RoundingMode = iota
	RoundHalfEven
	// RoundDown truncates toward zero.
	RoundDown
	// RoundUp rounds away from zero.
	RoundUp
	RoundFloor
	RoundCeiling
)

// MaxPrecision bounds the fractional digits of an encoded decimal.
const MaxPrecision = 15

var pow10f = [...]float64{
	1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9,
	1e10, 1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18,
	1e19, 1e20, 1e21, 1e22,
}

var pow10i = [...]int64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000,
	10000000000, 100000000000, 1000000000000, 10000000000000, 100000000000000,
	1000000000000000,
}

// AppendFloat appends value as a fixed-point decimal with exactly precision
// fractional digits.
func AppendFloat(dst []byte, value float64, precision int, mode RoundingMode) []byte {
	if precision < 0 {
		precision = 0
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	scaled := value * pow10f[precision]
	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || math.Abs(scaled) >= 1<<62 {
		return strconv.AppendFloat(dst, value, 'f', precision, 64)
	}

	n := roundScaled(scaled, mode)
	if n < 0 {
		dst = append(dst, '-')
		n = -n
	}
	scale := pow10i[precision]
	dst = strconv.AppendInt(dst, n/scale, 10)
	if precision == 0 {
		return dst
	}
	dst = append(dst, '.')
	frac := n % scale
	for div := scale / 10; div > 0; div /= 10 {
		dst = append(dst, byte('0'+(frac/div)%10))
	}
	return dst
}

// roundScaled rounds x to an integer. Values within a relative epsilon of an
// integer or of a tie are snapped first so binary representation noise (1.43
// scales to 142.99999999999997) does not leak into the result.
func roundScaled(x float64, mode RoundingMode) int64 {
	eps := 1e-9 * math.Max(1, math.Abs(x))
	if r := math.Round(x); math.Abs(x-r) < eps {
		return int64(r)
	}
	if half := math.Floor(x) + 0.5; math.Abs(x-half) < eps {
		x = half
	}

	switch mode {
	case RoundHalfEven:
		return int64(math.RoundToEven(x))
	case RoundDown:
		return int64(math.Trunc(x))
	case RoundUp:
		if x > 0 {
			return int64(math.Ceil(x))
		}
		return int64(math.Floor(x))
	case RoundFloor:
		return int64(math.Floor(x))
	case RoundCeiling:
		return int64(math.Ceil(x))
	default:
		return int64(math.Round(x))
	}
}

// parseFloat decodes a FIX decimal. Converting the fixed-point text to a
// float64 can lose precision beyond 15-16 significant digits.
func parseFloat(tag int, v []byte) (float64, error) {
	if len(v) == 0 {
		return 0, formatError(tag, "decimal", v)
	}
	i := 0
	neg := false
	switch v[0] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}

	var mantissa uint64
	digits := 0
	fracDigits := 0
	seenPoint := false
	for ; i < len(v); i++ {
		c := v[i]
		if c == '.' {
			if seenPoint {
				return 0, formatError(tag, "decimal", v)
			}
			seenPoint = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, formatError(tag, "decimal", v)
		}
		if digits >= 18 {
			return parseFloatSlow(tag, v)
		}
		mantissa = mantissa*10 + uint64(c-'0')
		digits++
		if seenPoint {
			fracDigits++
		}
	}
	if digits == 0 {
		return 0, formatError(tag, "decimal", v)
	}

	f := float64(mantissa) / pow10f[fracDigits]
	if neg {
		f = -f
	}
	return f, nil
}

func parseFloatSlow(tag int, v []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0, formatError(tag, "decimal", v)
	}
	return f, nil
}
