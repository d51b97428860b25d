package toolconfig

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameAttempts = 100

var (
	nonNameChars    = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnders  = regexp.MustCompile(`_+`)
	maxBaseNameSize = 56
)

// NormalizeName lowers a human label into a machine-safe token:
// lowercase, underscores for separators, no leading/trailing underscores.
func NormalizeName(label string) string {
	name := strings.ToLower(strings.TrimSpace(label))
	name = nonNameChars.ReplaceAllString(name, "_")
	name = repeatedUnders.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "tool"
	}
	if len(name) > maxBaseNameSize {
		name = strings.Trim(name[:maxBaseNameSize], "_")
	}
	return name
}

// GenerateToolName derives a unique machine-safe name from a label. The
// taken callback reports whether a candidate already exists for the
// organization (excluding the tool's own row on update). On collision an
// incrementing numeric suffix is appended until the name is free.
func GenerateToolName(label string, taken func(name string) (bool, error)) (string, error) {
	base := NormalizeName(label)

	candidate := base
	for attempt := 2; ; attempt++ {
		inUse, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check tool name %q: %w", candidate, err)
		}
		if !inUse {
			return candidate, nil
		}
		if attempt > maxNameAttempts {
			return "", fmt.Errorf("could not find a free name for label %q after %d attempts", label, maxNameAttempts)
		}
		candidate = fmt.Sprintf("%s_%d", base, attempt)
	}
}
