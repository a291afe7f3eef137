package textmeasure

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// wrapParagraph breaks a newline-free paragraph at the last whitespace that
// fits in maxWidth. A word wider than maxWidth is split between runes, and
// every line holds at least one rune.
func wrapParagraph(text string, maxWidth float64, measure func(string) float64, preserveWhitespace bool) []string {
	var lines []string
	for start := 0; start < len(text); {
		fit, brk := fitPrefix(text, start, maxWidth, measure)
		end := fit
		if fit < len(text) && brk > start && brk < fit {
			end = brk
		}

		line := text[start:end]
		if !preserveWhitespace {
			line = strings.TrimRightFunc(line, unicode.IsSpace)
		}
		lines = append(lines, line)

		start = end
		if !preserveWhitespace {
			start = skipSpace(text, start)
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// fitPrefix returns the end of the longest prefix of text[start:] that fits
// and the end of the last whitespace rune inside it, or -1.
func fitPrefix(text string, start int, maxWidth float64, measure func(string) float64) (fit, brk int) {
	fit, brk = -1, -1
	for i := start; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size
		if measure(text[start:next]) > maxWidth {
			break
		}
		fit = next
		if unicode.IsSpace(r) {
			brk = next
		}
		i = next
	}
	if fit == -1 {
		_, size := utf8.DecodeRuneInString(text[start:])
		fit = start + size
	}
	return fit, brk
}

func skipSpace(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}
