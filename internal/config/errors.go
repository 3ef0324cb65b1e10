package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports required settings that are absent or invalid.
// It is fatal and is raised before any network activity.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Missing, ", ")))
	}
	parts = append(parts, e.Invalid...)
	return "configuration error: " + strings.Join(parts, "; ")
}
