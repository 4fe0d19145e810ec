// Package language canonicalizes subtitle language tags. Providers, arr
// instances, and on-disk filenames mix ISO-639-1 and ISO-639-2 spellings;
// everything internal speaks the canonical form returned by Canonical.
package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ISO-639-2/B codes that x/text does not parse; mapped to their 639-1 form.
var bibliographic = map[string]string{
	"alb": "sq",
	"arm": "hy",
	"baq": "eu",
	"bur": "my",
	"chi": "zh",
	"cze": "cs",
	"dut": "nl",
	"fre": "fr",
	"geo": "ka",
	"ger": "de",
	"gre": "el",
	"ice": "is",
	"mac": "mk",
	"may": "ms",
	"per": "fa",
	"rum": "ro",
	"slo": "sk",
	"tib": "bo",
	"wel": "cy",
}

// Canonical normalizes a language code to its shortest ISO form,
// preferring the two-letter 639-1 code where one exists.
// Unknown input is returned lowercased rather than dropped.
func Canonical(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == "und" || code == "unknown" {
		return "und"
	}

	// Strip region subtags like pt-BR down to the base language
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}

	if mapped, ok := bibliographic[code]; ok {
		code = mapped
	}

	tag, err := language.Parse(code)
	if err != nil {
		return code
	}

	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	return base.String()
}

// Equal reports whether two codes refer to the same language,
// matching across 639-1 and 639-2 spellings.
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Known reports whether the code parses as a real language tag.
func Known(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	if _, ok := bibliographic[code]; ok {
		return true
	}
	tag, err := language.Parse(code)
	if err != nil {
		return false
	}
	_, conf := tag.Base()
	return conf != language.No
}

// Variants returns the spellings under which a language may appear in
// filenames: the 639-1 form plus the 639-3 and bibliographic forms.
func Variants(code string) []string {
	canonical := Canonical(code)
	seen := map[string]bool{canonical: true}
	variants := []string{canonical}

	if tag, err := language.Parse(canonical); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			if iso3 := base.ISO3(); iso3 != "" && !seen[iso3] {
				seen[iso3] = true
				variants = append(variants, iso3)
			}
		}
	}

	for b, one := range bibliographic {
		if one == canonical && !seen[b] {
			seen[b] = true
			variants = append(variants, b)
		}
	}

	return variants
}

// Display returns the English display name for a language code.
func Display(code string) string {
	tag, err := language.Parse(Canonical(code))
	if err != nil {
		return code
	}
	return display.English.Languages().Name(tag)
}
