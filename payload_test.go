package floralog

import (
	"encoding/json"
	"testing"
)

func TestPayloadObservedAt(t *testing.T) {
	cases := []struct {
		value any
		want  uint64
		ok    bool
	}{
		{float64(1700000000), 1700000000, true},
		{int(42), 42, true},
		{int64(42), 42, true},
		{uint64(42), 42, true},
		{json.Number("42"), 42, true},
		{float64(0), 0, true},
		{float64(-1), 0, false},
		{1.5, 0, false},
		{"1700000000", 0, false},
		{json.Number("1.5"), 0, false},
		{nil, 0, false},
	}
	for _, tc := range cases {
		p := Payload{"observed_at": tc.value}
		got, ok := p.ObservedAt()
		if got != tc.want || ok != tc.ok {
			t.Errorf("observed_at=%v: got (%d, %v), want (%d, %v)", tc.value, got, ok, tc.want, tc.ok)
		}
	}

	if _, ok := (Payload{}).ObservedAt(); ok {
		t.Errorf("missing observed_at reported ok")
	}
}

func TestPayloadSpecies(t *testing.T) {
	p := Payload{"species": "Quercus alba"}
	if s, ok := p.Species(); !ok || s != "Quercus alba" {
		t.Errorf("plain string: got (%q, %v)", s, ok)
	}

	p = Payload{"species": map[string]any{"scientific": "Quercus alba", "name": "white oak"}}
	if s, ok := p.Species(); !ok || s != "Quercus alba" {
		t.Errorf("scientific preferred: got (%q, %v)", s, ok)
	}

	p = Payload{"species": map[string]any{"name": "white oak"}}
	if s, ok := p.Species(); !ok || s != "white oak" {
		t.Errorf("name fallback: got (%q, %v)", s, ok)
	}

	p = Payload{"species": map[string]any{"rank": "species"}}
	if _, ok := p.Species(); ok {
		t.Errorf("object without usable field reported ok")
	}

	p = Payload{"species": 42}
	if _, ok := p.Species(); ok {
		t.Errorf("numeric species reported ok")
	}
}

func TestPayloadLatLon(t *testing.T) {
	p := Payload{"place": map[string]any{"lat": 52.5, "lon": 13.4}}
	lat, lon, ok := p.LatLon()
	if !ok || lat != 52.5 || lon != 13.4 {
		t.Errorf("got (%v, %v, %v)", lat, lon, ok)
	}

	p = Payload{"place": map[string]any{"lat": json.Number("52.5"), "lon": 13}}
	lat, lon, ok = p.LatLon()
	if !ok || lat != 52.5 || lon != 13 {
		t.Errorf("mixed numerics: got (%v, %v, %v)", lat, lon, ok)
	}

	for _, p := range []Payload{
		{},
		{"place": "Berlin"},
		{"place": map[string]any{"lat": 52.5}},
		{"place": map[string]any{"lat": 52.5, "lon": "east"}},
	} {
		if _, _, ok := p.LatLon(); ok {
			t.Errorf("payload %v reported ok", p)
		}
	}
}

func TestNormalizeSpecies(t *testing.T) {
	cases := map[string]string{
		"  Quercus Alba  ": "quercus alba",
		"QUERCUS":          "quercus",
		"quercus":          "quercus",
		"":                 "",
		"   ":              "",
		"Ægir":             "Ægir", // non-ASCII left alone
	}
	for in, want := range cases {
		if got := NormalizeSpecies(in); got != want {
			t.Errorf("NormalizeSpecies(%q) = %q, want %q", in, got, want)
		}
	}
}
