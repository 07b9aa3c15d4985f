package tui

import "testing"

func TestGlyphs_FromEnv(t *testing.T) {
	t.Setenv("DCJ_TUI_GLYPHS", "")
	setGlyphs(glyphSetASCII)
	applyGlyphPreference()
	if got := glyphs(); got != glyphSetUnicode {
		t.Fatalf("expected unicode glyphs by default; got %v", got)
	}

	t.Setenv("DCJ_TUI_GLYPHS", "ascii")
	applyGlyphPreference()
	if got := glyphTwistyExpanded(); got != "v" {
		t.Fatalf("expected ascii twisty; got %q", got)
	}

	// Unknown values keep the current set.
	t.Setenv("DCJ_TUI_GLYPHS", "bogus")
	applyGlyphPreference()
	if got := glyphs(); got != glyphSetASCII {
		t.Fatalf("expected unknown to be ignored; got %v", got)
	}
}
