package cursor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-sql/civil"
)

const (
	dateLayout    = "2006-01-02"
	naiveLayout   = "2006-01-02T15:04:05.999999999"
	instantLayout = time.RFC3339Nano
)

// Encode serializes a checkpoint value so it can be persisted and round-tripped with [Decode].
func Encode(value any) (Kind, string, error) {
	value = deref(value)
	switch castedValue := value.(type) {
	case civil.Date:
		return Date, castedValue.String(), nil
	case civil.DateTime:
		return Naive, castedValue.In(time.UTC).Format(naiveLayout), nil
	case time.Time:
		return Instant, castedValue.Format(instantLayout), nil
	case string:
		return String, castedValue, nil
	}

	if intValue, ok := toInt64(value); ok {
		return Integer, strconv.FormatInt(intValue, 10), nil
	}

	return Invalid, "", fmt.Errorf("unsupported checkpoint value %T", value)
}

// Decode parses a value produced by [Encode]. It is also used to parse the initial values declared by resources,
// where a date may be written for a timestamp kind.
func Decode(kind Kind, value string) (any, error) {
	switch kind {
	case Date:
		date, err := civil.ParseDate(value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %q: %w", value, err)
		}
		return date, nil
	case Naive:
		for _, layout := range []string{naiveLayout, "2006-01-02 15:04:05.999999999", dateLayout} {
			if ts, err := time.Parse(layout, value); err == nil {
				return civil.DateTimeOf(ts), nil
			}
		}
		return nil, fmt.Errorf("failed to parse timestamp %q", value)
	case Instant:
		for _, layout := range []string{instantLayout, "2006-01-02 15:04:05.999999999Z07:00", dateLayout} {
			if ts, err := time.Parse(layout, value); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("failed to parse timestamptz %q", value)
	case Integer:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse integer %q: %w", value, err)
		}
		return intValue, nil
	case String:
		return value, nil
	default:
		return nil, fmt.Errorf("unsupported cursor kind: %q", kind)
	}
}

// BindValue converts a checkpoint into something every database/sql driver accepts as a query argument.
func BindValue(value any) any {
	value = deref(value)
	switch castedValue := value.(type) {
	case civil.Date:
		return castedValue.In(time.UTC)
	case civil.DateTime:
		return castedValue.In(time.UTC)
	}

	if intValue, ok := toInt64(value); ok {
		return intValue
	}

	return value
}
