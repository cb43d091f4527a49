package cryptography

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"
)

// StableKeySeparator joins business fields before hashing.
const StableKeySeparator = "|"

// HashValue - Hashes a value using SHA256
func HashValue(value any) any {
	if value == nil {
		return nil
	}

	hash := sha256.New()
	// hash.Hash.Write never returns an error, so we can safely ignore the error from fmt.Fprint.
	_, _ = fmt.Fprint(hash, value)
	return hex.EncodeToString(hash.Sum(nil))
}

// StableKey returns a hex SHA256 digest of the fields' string representations joined by [StableKeySeparator].
// Missing and null fields contribute an empty string.
func StableKey(fields []any) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = stringify(field)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, StableKeySeparator)))
	return hex.EncodeToString(sum[:])
}

// stringify renders a value the same way regardless of which driver produced it, so the same business row read
// from two different databases hashes identically.
func stringify(value any) string {
	switch castedValue := value.(type) {
	case nil:
		return ""
	case string:
		return castedValue
	case []byte:
		return string(castedValue)
	case bool:
		return strconv.FormatBool(castedValue)
	case int:
		return strconv.FormatInt(int64(castedValue), 10)
	case int8:
		return strconv.FormatInt(int64(castedValue), 10)
	case int16:
		return strconv.FormatInt(int64(castedValue), 10)
	case int32:
		return strconv.FormatInt(int64(castedValue), 10)
	case int64:
		return strconv.FormatInt(castedValue, 10)
	case uint8:
		return strconv.FormatUint(uint64(castedValue), 10)
	case uint16:
		return strconv.FormatUint(uint64(castedValue), 10)
	case uint32:
		return strconv.FormatUint(uint64(castedValue), 10)
	case uint64:
		return strconv.FormatUint(castedValue, 10)
	case float32:
		return strconv.FormatFloat(float64(castedValue), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(castedValue, 'f', -1, 64)
	case civil.Date:
		return castedValue.String()
	case civil.DateTime:
		return castedValue.String()
	case time.Time:
		return castedValue.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(castedValue)
	}
}
