package environ

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// String returns the trimmed value of [key] and whether it was set to something other than blanks.
func String(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// Int returns [key] parsed as an integer, or [current] when it is not set.
func Int(key string, current int) (int, error) {
	value, ok := String(key)
	if !ok {
		return current, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return parsed, nil
}
