package models

import (
	"regexp"
	"strconv"
	"strings"
)

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// ISINPattern finds ISIN-shaped tokens in free text.
var ISINPattern = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)

// NormalizeISIN upper-cases and strips whitespace.
func NormalizeISIN(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ValidISIN checks the format and the check digit.
func ValidISIN(s string) bool {
	s = NormalizeISIN(s)
	if !isinPattern.MatchString(s) {
		return false
	}

	// letters expand to two digits (A=10 .. Z=35)
	var digits strings.Builder
	for _, r := range s[:11] {
		if r >= 'A' && r <= 'Z' {
			digits.WriteString(strconv.Itoa(int(r-'A') + 10))
		} else {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	sum := 0
	double := true
	for i := len(d) - 1; i >= 0; i-- {
		n := int(d[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	check := (10 - sum%10) % 10
	return int(s[11]-'0') == check
}

// ISINCountry returns the two-letter prefix of a valid-looking ISIN.
func ISINCountry(s string) string {
	s = NormalizeISIN(s)
	if len(s) < 2 {
		return ""
	}
	return s[:2]
}
