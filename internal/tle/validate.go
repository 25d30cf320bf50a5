package tle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is wrapped by every input and validation failure.
var ErrMalformed = errors.New("malformed TLE")

const lineLength = 69

// SplitInput splits free text into the two element lines. Lines are trimmed
// and blank lines dropped; exactly two must remain.
func SplitInput(text string) (string, string, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) != 2 {
		return "", "", fmt.Errorf("%w: expected 2 lines, got %d", ErrMalformed, len(lines))
	}
	return lines[0], lines[1], nil
}

// Validate checks the structure of both lines: length, line numbers, checksums,
// matching catalog numbers, and every numeric field SGP4 initialization parses.
func Validate(line1, line2 string) error {
	_, err := ParseElements(line1, line2)
	return err
}

// ParseElements validates the two lines and extracts the orbital elements.
func ParseElements(line1, line2 string) (Elements, error) {
	if err := checkLine(line1, '1'); err != nil {
		return Elements{}, err
	}
	if err := checkLine(line2, '2'); err != nil {
		return Elements{}, err
	}

	if line1[2:7] != line2[2:7] {
		return Elements{}, fmt.Errorf("%w: catalog numbers differ (%q, %q)", ErrMalformed, line1[2:7], line2[2:7])
	}
	catnum, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return Elements{}, fmt.Errorf("%w: catalog number %q", ErrMalformed, line1[2:7])
	}

	if _, err := strconv.Atoi(line1[18:20]); err != nil {
		return Elements{}, fmt.Errorf("%w: epoch year %q", ErrMalformed, line1[18:20])
	}
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return Elements{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Derivative and drag terms use the implied-decimal exponent notation.
	for name, field := range map[string]string{
		"first derivative of mean motion":  line1[33:43],
		"second derivative of mean motion": line1[44:45] + "." + line1[45:50] + "e" + line1[50:52],
		"bstar":                            line1[53:54] + "." + line1[54:59] + "e" + line1[59:61],
	} {
		if _, err := parseField(field); err != nil {
			return Elements{}, fmt.Errorf("%w: %s %q", ErrMalformed, name, field)
		}
	}

	e := Elements{
		CatalogNumber: catnum,
		Epoch:         epoch,
		Line1:         line1,
		Line2:         line2,
	}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"inclination", line2[8:16], &e.Inclination},
		{"right ascension", line2[17:25], &e.RAAN},
		{"eccentricity", "." + line2[26:33], &e.Eccentricity},
		{"argument of perigee", line2[34:42], &e.ArgPerigee},
		{"mean anomaly", line2[43:51], &e.MeanAnomaly},
		{"mean motion", line2[52:63], &e.MeanMotion},
	}
	for _, f := range fields {
		v, err := parseField(f.raw)
		if err != nil {
			return Elements{}, fmt.Errorf("%w: %s %q", ErrMalformed, f.name, f.raw)
		}
		*f.dst = v
	}

	if e.MeanMotion <= 0 {
		return Elements{}, fmt.Errorf("%w: mean motion must be positive, got %v", ErrMalformed, e.MeanMotion)
	}
	if e.Inclination < 0 || e.Inclination > 180 {
		return Elements{}, fmt.Errorf("%w: inclination %v out of range", ErrMalformed, e.Inclination)
	}
	return e, nil
}

func checkLine(line string, number byte) error {
	if len(line) != lineLength {
		return fmt.Errorf("%w: line %c length %d, expected %d", ErrMalformed, number, len(line), lineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("%w: line %c must start with %q", ErrMalformed, number, string(number)+" ")
	}
	want := int(line[lineLength-1] - '0')
	if want < 0 || want > 9 {
		return fmt.Errorf("%w: line %c checksum %q is not a digit", ErrMalformed, number, line[lineLength-1])
	}
	if got := Checksum(line); got != want {
		return fmt.Errorf("%w: line %c checksum %d, computed %d", ErrMalformed, number, want, got)
	}
	return nil
}

// Checksum computes the modulo-10 checksum over the first 68 columns: digits
// count their value, minus signs count one, everything else zero.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < lineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// parseField mirrors how the SGP4 initializer reads numeric columns: up to two
// blanks are removed before parsing.
func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, " ", "", 2), 64)
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
