package cursor

import (
	"time"

	"github.com/golang-sql/civil"
)

// Kind is the temporal (or scalar) representation of a checkpoint value.
// Go's [time.Time] cannot express a date without a time, or a wall-clock time without a zone, so
// date-only values are [civil.Date] and naive instants are [civil.DateTime].
type Kind string

const (
	Invalid Kind = "invalid"
	Date    Kind = "date"
	// Naive is a timestamp without a time zone.
	Naive Kind = "timestamp"
	// Instant is a timezone-aware timestamp.
	Instant Kind = "timestamptz"
	Integer Kind = "integer"
	String  Kind = "string"
)

func (k Kind) IsValid() bool {
	switch k {
	case Date, Naive, Instant, Integer, String:
		return true
	default:
		return false
	}
}

func (k Kind) IsTemporal() bool {
	return k == Date || k == Naive || k == Instant
}

// KindOf returns the [Kind] for a value, [Invalid] if the value cannot act as a checkpoint.
func KindOf(value any) Kind {
	switch value.(type) {
	case civil.Date, *civil.Date:
		return Date
	case civil.DateTime, *civil.DateTime:
		return Naive
	case time.Time, *time.Time:
		return Instant
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return Integer
	case string:
		return String
	default:
		return Invalid
	}
}

// deref unwraps pointers to the temporal types so callers never have to care how a driver handed us a value.
func deref(value any) any {
	switch castedValue := value.(type) {
	case *civil.Date:
		if castedValue == nil {
			return nil
		}
		return *castedValue
	case *civil.DateTime:
		if castedValue == nil {
			return nil
		}
		return *castedValue
	case *time.Time:
		if castedValue == nil {
			return nil
		}
		return *castedValue
	default:
		return value
	}
}

func toInt64(value any) (int64, bool) {
	switch castedValue := value.(type) {
	case int:
		return int64(castedValue), true
	case int8:
		return int64(castedValue), true
	case int16:
		return int64(castedValue), true
	case int32:
		return int64(castedValue), true
	case int64:
		return castedValue, true
	case uint8:
		return int64(castedValue), true
	case uint16:
		return int64(castedValue), true
	case uint32:
		return int64(castedValue), true
	default:
		return 0, false
	}
}
