// Package extract converts raw rendered portal text into typed account data.
// Everything here is pure: input is a captured page-text string, output is
// typed optional fields. No browser types cross the boundary, so the parsers
// are unit-testable against literal fixtures.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`([\d.]+)`)
	egpRe    = regexp.MustCompile(`([\d.,]+)\s*EGP`)
)

// NumFromText pulls the first decimal number out of a text fragment.
// Commas are treated as decimal separators (the portal renders "1,5 GB" in
// some locales) and non-breaking spaces are normalized first. Returns nil
// when no number is present, never zero.
func NumFromText(t string) *float64 {
	s := strings.ReplaceAll(t, " ", " ")
	s = strings.ReplaceAll(s, ",", ".")
	m := numberRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Trim(m[1], "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

// NormalizeText collapses the rendered body text into a stable form for the
// regex parsers: NBSP to space, runs of spaces/tabs collapsed, CR stripped.
func NormalizeText(t string) string {
	s := strings.ReplaceAll(t, " ", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = regexp.MustCompile(`[ \t]+`).ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// EGPValues returns every "<number> EGP" occurrence in the text, in document
// order. Duplicates are preserved; the price resolver decides what to do
// with them.
func EGPValues(t string) []float64 {
	var out []float64
	for _, m := range egpRe.FindAllStringSubmatch(NormalizeText(t), -1) {
		if v := NumFromText(m[1]); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
