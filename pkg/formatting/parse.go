package formatting

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParseFailed is returned when model output holds no decodable JSON object.
var ErrParseFailed = errors.New("failed to parse response")

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

const excerptLimit = 200

// Parse decodes model output into T. It tries the raw content, then the body
// of a markdown code fence, then the outermost {...} span, in that order.
func Parse[T any](content string) (T, error) {
	var result T
	content = strings.TrimSpace(content)

	for _, candidate := range candidates(content) {
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return result, nil
		}
	}

	return result, fmt.Errorf("%w: %s", ErrParseFailed, excerpt(content))
}

func candidates(content string) []string {
	out := []string{content}

	if m := fencePattern.FindStringSubmatch(content); len(m) >= 2 {
		out = append(out, strings.TrimSpace(m[1]))
	}

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		out = append(out, content[start:end+1])
	}

	return out
}

func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "..."
}
