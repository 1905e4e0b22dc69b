package geocode

import (
	"strings"
	"testing"
)

func TestEncodeCorners(t *testing.T) {
	if got := Encode(-90.0, -180.0, 6); got != "000000" {
		t.Fatalf("south-west corner: got %q", got)
	}
	if got := Encode(90.0, 180.0, 6); got != "zzzzzz" {
		t.Fatalf("north-east corner: got %q", got)
	}
}

func TestEncodeClampsOutOfRange(t *testing.T) {
	if got, want := Encode(1000.0, 1000.0, 6), Encode(90.0, 180.0, 6); got != want {
		t.Fatalf("clamped high: got %q want %q", got, want)
	}
	if got, want := Encode(-1000.0, -1000.0, 6), Encode(-90.0, -180.0, 6); got != want {
		t.Fatalf("clamped low: got %q want %q", got, want)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	for _, c := range []struct{ lat, lon float64 }{
		{35.6812, 139.7671},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9999, -0.0001},
	} {
		a := Encode(c.lat, c.lon, 6)
		b := Encode(c.lat, c.lon, 6)
		if a != b {
			t.Fatalf("encode(%v,%v) not deterministic: %q vs %q", c.lat, c.lon, a, b)
		}
		if len(a) != 6 {
			t.Fatalf("encode(%v,%v) length %d", c.lat, c.lon, len(a))
		}
		for i := 0; i < len(a); i++ {
			if !strings.ContainsRune(Alphabet, rune(a[i])) {
				t.Fatalf("encode(%v,%v) emitted %q outside alphabet", c.lat, c.lon, a[i])
			}
		}
	}
}

func TestEncodePrefixLaw(t *testing.T) {
	for _, c := range []struct{ lat, lon float64 }{
		{35.6812, 139.7671},
		{-45.0, 30.0},
		{12.34, -56.78},
	} {
		full := Encode(c.lat, c.lon, 6)
		for p := 1; p <= 6; p++ {
			if got := Encode(c.lat, c.lon, p); got != full[:p] {
				t.Fatalf("precision %d of (%v,%v): got %q want %q", p, c.lat, c.lon, got, full[:p])
			}
		}
	}
}

func TestEncodeBeyondSixZeroPads(t *testing.T) {
	// Positions past the 30 populated bits read as zero, so the extra leading
	// characters are zeros and the six-character code moves to the tail.
	six := Encode(35.6812, 139.7671, 6)
	eight := Encode(35.6812, 139.7671, 8)
	if eight != "00"+six {
		t.Fatalf("precision 8: got %q want %q", eight, "00"+six)
	}
}

func TestEncodeZeroPrecision(t *testing.T) {
	if got := Encode(1, 2, 0); got != "" {
		t.Fatalf("precision 0: got %q", got)
	}
}
