package floralog

import (
	"encoding/json"
	"strings"
)

// Payload is the raw free-form observation document submitted by a client.
// The store only ever reads three well-known fields out of it; everything
// else is kept verbatim.
type Payload map[string]any

// ObservedAt returns payload.observed_at as whole seconds since epoch.
func (p Payload) ObservedAt() (uint64, bool) {
	switch v := p["observed_at"].(type) {
	case float64:
		if v < 0 || v != float64(uint64(v)) {
			return 0, false
		}
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case uint64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil || n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

// Species returns the raw species label, taken from a plain string or from an
// object's scientific (preferred) or name field.
func (p Payload) Species() (string, bool) {
	switch v := p["species"].(type) {
	case string:
		return v, true
	case map[string]any:
		if s, ok := v["scientific"].(string); ok {
			return s, true
		}
		if s, ok := v["name"].(string); ok {
			return s, true
		}
	}
	return "", false
}

// LatLon returns payload.place.{lat,lon} when both are numeric.
func (p Payload) LatLon() (float64, float64, bool) {
	place, ok := p["place"].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	lat, ok := asFloat(place["lat"])
	if !ok {
		return 0, 0, false
	}
	lon, ok := asFloat(place["lon"])
	if !ok {
		return 0, 0, false
	}
	return lat, lon, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// NormalizeSpecies trims and ASCII-lowercases a species label. Index keys and
// species filters always go through this.
func NormalizeSpecies(s string) string {
	s = strings.TrimSpace(s)
	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
