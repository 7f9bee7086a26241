package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseRotationLog extracts the logged angle of each projection index from a
// rotation log. Only lines of the form
//
//	Projection <idx>: <angle>° at t=<time>s
//
// are considered; leading whitespace is allowed and any other line is
// ignored. A line that looks like a projection entry but does not parse is
// skipped.
func ParseRotationLog(r io.Reader) (map[int]float64, error) {
	angles := make(map[int]float64)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Projection") {
			continue
		}

		idx, angle, ok := parseProjectionLine(line)
		if !ok {
			continue
		}
		angles[idx] = angle
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading rotation log: %w", err)
	}
	return angles, nil
}

func parseProjectionLine(line string) (int, float64, bool) {
	head, rest, found := strings.Cut(line, ":")
	if !found {
		return 0, 0, false
	}

	fields := strings.Fields(head)
	if len(fields) != 2 {
		return 0, 0, false
	}
	idx, err := strconv.Atoi(fields[1])
	if err != nil || idx < 0 {
		return 0, 0, false
	}

	angleText, _, found := strings.Cut(rest, "°")
	if !found {
		return 0, 0, false
	}
	angle, err := strconv.ParseFloat(strings.TrimSpace(angleText), 64)
	if err != nil {
		return 0, 0, false
	}

	return idx, angle, true
}
