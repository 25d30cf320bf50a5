package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Parse reads a catalog in 3-line NORAD format (name, line 1, line 2) from r.
// Entries that fail validation are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Elements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Elements
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resynchronize on the next candidate triplet.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			i++
			continue
		}

		e, err := ParseElements(line1, line2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", strings.TrimSpace(name), "error", err)
			i += 3
			continue
		}
		e.Name = strings.TrimSpace(name)
		entries = append(entries, e)
		i += 3
	}

	return entries, nil
}
