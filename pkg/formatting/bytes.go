// Package formatting parses loosely formatted values: model responses that
// wrap JSON in prose or code fences, and human-readable byte sizes.
package formatting

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

var sizePattern = regexp.MustCompile(`^(\d+\.?\d*)\s*([A-Za-z]*)$`)

// ParseBytes converts a size such as "10MB" to a byte count (base 1024).
// A bare number is bytes.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size number: %w", err)
	}

	unit := strings.ToUpper(m[2])
	if unit == "" {
		return int64(value), nil
	}

	idx := slices.Index(sizeUnits, unit)
	if idx == -1 {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}

	return int64(value * math.Pow(1024, float64(idx))), nil
}
