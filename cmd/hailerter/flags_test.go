package main

import (
	"testing"
	"time"
)

func TestDurationValueSet(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"", 0, true},
		{"0", 0, true},
		{"-5s", 0, true},
		{"abc", 0, true},
	}
	for _, c := range cases {
		var d time.Duration
		v := &durationValue{d: &d}
		err := v.Set(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Set(%q): expected error, got nil", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q): unexpected error: %v", c.in, err)
			continue
		}
		if d != c.want {
			t.Errorf("Set(%q) = %v, want %v", c.in, d, c.want)
		}
	}
}

func TestFractionValueSet(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0", 0, false},
		{"1", 1, false},
		{"0.5", 0.5, false},
		{"-0.1", 0, true},
		{"1.1", 0, true},
		{"abc", 0, true},
	}
	for _, c := range cases {
		var f float64
		v := &fractionValue{f: &f}
		err := v.Set(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Set(%q): expected error, got nil", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q): unexpected error: %v", c.in, err)
			continue
		}
		if f != c.want {
			t.Errorf("Set(%q) = %v, want %v", c.in, f, c.want)
		}
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := parseLocation(`{"host":"h1","aspect":"cpu"}`)
	if err != nil {
		t.Fatalf("parseLocation: %v", err)
	}
	if loc["host"] != "h1" || loc["aspect"] != "cpu" {
		t.Fatalf("unexpected location: %#v", loc)
	}

	if _, err := parseLocation("not json"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
