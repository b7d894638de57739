package session

import (
	"strconv"
	"strings"
	"unicode"

	"callbot/internal/domain"
)

// Extractor derives an updated profile from one user utterance.
type Extractor func(profile domain.UserProfile, text string) domain.UserProfile

// ApplyHeuristics runs the keyword rules on text. The rules are independent:
//
//   - "name is" anywhere (any case): name becomes the lowercased, trimmed
//     text after the last occurrence.
//   - "contact" (any case) plus at least one digit: contact becomes every
//     digit of the text, in order.
//   - "am" or "pm" (any case), or any of "1".."12": preferred time becomes
//     the raw text.
//
// A rule that fires overwrites the previous value of its field.
func ApplyHeuristics(profile domain.UserProfile, text string) domain.UserProfile {
	lower := strings.ToLower(text)

	if i := strings.LastIndex(lower, "name is"); i >= 0 {
		profile.Name = strings.TrimSpace(lower[i+len("name is"):])
	}

	if strings.Contains(lower, "contact") {
		var digits strings.Builder
		for _, r := range text {
			if isDigit(r) {
				digits.WriteRune(r)
			}
		}
		if digits.Len() > 0 {
			profile.Contact = digits.String()
		}
	}

	if mentionsTime(lower, text) {
		profile.PreferredTime = text
	}
	return profile
}

// digitNumbers are the No runes that carry a single digit value: superscripts,
// subscripts and the circled, parenthesized and dotted forms.
var digitNumbers = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00b2, Hi: 0x00b3, Stride: 1},
		{Lo: 0x00b9, Hi: 0x00b9, Stride: 1},
		{Lo: 0x1369, Hi: 0x1371, Stride: 1},
		{Lo: 0x19da, Hi: 0x19da, Stride: 1},
		{Lo: 0x2070, Hi: 0x2070, Stride: 1},
		{Lo: 0x2074, Hi: 0x2079, Stride: 1},
		{Lo: 0x2080, Hi: 0x2089, Stride: 1},
		{Lo: 0x2460, Hi: 0x2468, Stride: 1},
		{Lo: 0x2474, Hi: 0x247c, Stride: 1},
		{Lo: 0x2488, Hi: 0x2490, Stride: 1},
		{Lo: 0x24ea, Hi: 0x24ea, Stride: 1},
		{Lo: 0x24f5, Hi: 0x24fd, Stride: 1},
		{Lo: 0x24ff, Hi: 0x24ff, Stride: 1},
		{Lo: 0x2776, Hi: 0x277e, Stride: 1},
		{Lo: 0x2780, Hi: 0x2788, Stride: 1},
		{Lo: 0x278a, Hi: 0x2792, Stride: 1},
	},
	R32: []unicode.Range32{
		{Lo: 0x10a40, Hi: 0x10a43, Stride: 1},
		{Lo: 0x1f100, Hi: 0x1f10a, Stride: 1},
	},
}

// isDigit accepts decimal digits and digit-valued numbers such as "²" or "①".
func isDigit(r rune) bool {
	return unicode.IsDigit(r) || unicode.Is(digitNumbers, r)
}

func mentionsTime(lower, raw string) bool {
	if strings.Contains(lower, "am") || strings.Contains(lower, "pm") {
		return true
	}
	for hour := 1; hour <= 12; hour++ {
		if strings.Contains(raw, strconv.Itoa(hour)) {
			return true
		}
	}
	return false
}
