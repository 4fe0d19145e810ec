package language

import (
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"de", "de"},
		{"DE", "de"},
		{"deu", "de"},
		{"ger", "de"},
		{"eng", "en"},
		{"fre", "fr"},
		{"pt-BR", "pt"},
		{"zh_CN", "zh"},
		{"jpn", "ja"},
		{"", "und"},
		{"und", "und"},
		{"xx", "xx"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.in); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("ger", "de") {
		t.Error("Equal(ger, de) = false")
	}
	if !Equal("eng", "EN") {
		t.Error("Equal(eng, EN) = false")
	}
	if Equal("de", "en") {
		t.Error("Equal(de, en) = true")
	}
}

func TestVariants(t *testing.T) {
	variants := Variants("de")

	want := map[string]bool{"de": false, "deu": false, "ger": false}
	for _, v := range variants {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for v, seen := range want {
		if !seen {
			t.Errorf("Variants(de) missing %q (got %v)", v, variants)
		}
	}
}

func TestKnown(t *testing.T) {
	for _, code := range []string{"de", "ger", "eng", "ja"} {
		if !Known(code) {
			t.Errorf("Known(%q) = false", code)
		}
	}
	for _, code := range []string{"", "1080p", "x265"} {
		if Known(code) {
			t.Errorf("Known(%q) = true", code)
		}
	}
}
