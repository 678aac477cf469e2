package overlay

import (
	"unicode"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/language"
)

// direction returns the HTML dir value for text, "" when it is left to right.
func direction(text string) string {
	if scriptDirection(detectScript(text)) == di.DirectionRTL {
		return "rtl"
	}
	return ""
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// detectScript returns the most frequent script among the letters of text.
func detectScript(text string) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	best := language.Latin
	for _, r := range text {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}

// scriptFromRune only distinguishes the scripts found in the collections:
// Arabic, Hebrew, Tifinagh and Latin.
func scriptFromRune(r rune) language.Script {
	switch {
	case unicode.Is(unicode.Arabic, r):
		return language.Arabic
	case unicode.Is(unicode.Hebrew, r):
		return language.Hebrew
	case unicode.Is(unicode.Syriac, r):
		return language.Syriac
	case unicode.Is(unicode.Tifinagh, r):
		return language.Tifinagh
	case unicode.Is(unicode.Latin, r):
		return language.Latin
	}
	return language.Unknown
}

// IsRTL reports whether text is mostly written in a right-to-left script.
func IsRTL(text string) bool { return direction(text) == "rtl" }
