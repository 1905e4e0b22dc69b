// Package geocode turns a latitude/longitude pair into a fixed-length,
// prefix-searchable location code. Coordinates are quantized to 15 bits each
// and bit-interleaved into a 30-bit Morton value, which is then read out in
// 5-bit groups through a 32-symbol alphabet. Codes sharing a prefix are
// geographically close, so the code doubles as a proximity index key.
package geocode

import "math"

// Alphabet is the 32-symbol base of the code: digits then lowercase letters
// excluding a, i, l, o.
const Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// DefaultPrecision is the code length used for indexing. At 6 characters the
// full 30 bits are consumed, so any shorter code is an exact prefix of the
// longer one.
const DefaultPrecision = 6

// Encode returns the location code of length precision for the given
// coordinates. Out-of-range inputs are clamped, never rejected, and the
// function always succeeds.
//
// Precision above 6 reads bit positions past the 30 populated ones; those
// groups come out as leading zero characters. Callers wanting the usual
// prefix relation should stay at precision 6 or below.
func Encode(lat, lon float64, precision int) string {
	if precision <= 0 {
		return ""
	}

	lat = clamp(lat, -90.0, 90.0)
	lon = clamp(lon, -180.0, 180.0)

	latQ := uint32(math.Round((lat + 90.0) / 180.0 * 32767.0))
	lonQ := uint32(math.Round((lon + 180.0) / 360.0 * 32767.0))

	code := uint64(part1by1(lonQ))<<1 | uint64(part1by1(latQ))

	out := make([]byte, 0, precision)
	for i := 5*precision - 5; i >= 0; i -= 5 {
		out = append(out, Alphabet[(code>>uint(i))&0x1f])
	}
	return string(out)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// part1by1 spreads the low 16 bits of n, inserting a zero bit between each.
func part1by1(n uint32) uint32 {
	n = (n | n<<8) & 0x00FF00FF
	n = (n | n<<4) & 0x0F0F0F0F
	n = (n | n<<2) & 0x33333333
	n = (n | n<<1) & 0x55555555
	return n
}
