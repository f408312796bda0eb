package validation_test

import (
	"testing"

	"github.com/username/collectr/backend/src/security/validation"
)

func TestSanitizeText_StripsHTML(t *testing.T) {
	got := validation.SanitizeText(`Charizard <script>alert("x")</script>Holo`)
	if got != "Charizard Holo" {
		t.Errorf("expected tags removed, got %q", got)
	}
}

func TestSanitizeText_StripsControlCharacters(t *testing.T) {
	got := validation.SanitizeText("First Edition\x00\x08 PSA 10")
	if got != "First Edition PSA 10" {
		t.Errorf("expected control characters removed, got %q", got)
	}
}

func TestStripUnprintable_KeepsCommonWhitespace(t *testing.T) {
	got := validation.StripUnprintable("line one\n\tline two\r\x1b[31m")
	if got != "line one\n\tline two\r[31m" {
		t.Errorf("expected escape byte removed and whitespace kept, got %q", got)
	}
}
