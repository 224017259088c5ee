package core

import "testing"

func TestPreferredName(t *testing.T) {
	cases := []struct {
		desc string
		want string
	}{
		{"azel, 10, 10", "azel"},
		{"radec, 19:59:28.36, 40:44:02.1", "radec"},
		{"Cygnus A | *Cyg A | 3C405, radec, 19:59:28.36, 40:44:02.1", "Cyg A"},
		{"Sun, special", "Sun"},
		{"Taurus A | Crab, radec J2000, 5:34:31.94, 22:00:52.2", "Taurus A"},
		{"radec bfcal, 1:00, -30:00", "radec"},
		{"xephem, ISS (ZARYA)~E~9/3/2024", "ISS (ZARYA)"},
		{"xephem sat, GPS BIIR-2 | PRN 13~E~1/1/2010", "GPS BIIR-2"},
	}
	for _, c := range cases {
		if got := PreferredName(c.desc); got != c.want {
			t.Errorf("PreferredName(%q) = %q, want %q", c.desc, got, c.want)
		}
	}
}

func TestNewTargetTrims(t *testing.T) {
	tgt := NewTarget("  azel, 10, 10 ")
	if tgt.Description != "azel, 10, 10" {
		t.Errorf("unexpected description %q", tgt.Description)
	}
	if tgt.String() != "azel" {
		t.Errorf("unexpected name %q", tgt.String())
	}
}
