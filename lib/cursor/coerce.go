package cursor

import (
	"time"

	"github.com/golang-sql/civil"
)

// Coerce returns [value] in the same [Kind] as [checkpoint] so the two can always be compared:
//   - date checkpoint, finer input: truncate to the date.
//   - instant checkpoint, date input: midnight in the checkpoint's location.
//   - instant checkpoint, naive input: attach the checkpoint's location.
//   - naive checkpoint, date input: midnight; instant input: wall clock in UTC.
//
// The naive checkpoint rules go beyond the usual date/instant coercions: without them a date or an aware value
// could never be compared with a naive checkpoint. Anything else is returned unchanged. Coerce never fails and is
// idempotent.
func Coerce(value, checkpoint any) any {
	value = deref(value)
	checkpoint = deref(checkpoint)
	if value == nil || checkpoint == nil {
		return value
	}

	switch castedCheckpoint := checkpoint.(type) {
	case civil.Date:
		switch castedValue := value.(type) {
		case time.Time:
			return civil.DateOf(castedValue)
		case civil.DateTime:
			return castedValue.Date
		}
	case time.Time:
		loc := castedCheckpoint.Location()
		switch castedValue := value.(type) {
		case civil.Date:
			return castedValue.In(loc)
		case civil.DateTime:
			return castedValue.In(loc)
		}
	case civil.DateTime:
		switch castedValue := value.(type) {
		case civil.Date:
			return civil.DateTime{Date: castedValue}
		case time.Time:
			return civil.DateTimeOf(castedValue.UTC())
		}
	}

	return value
}

// CoerceToKind is [Coerce] against a zero value of [kind]; used when no checkpoint has been persisted yet but the
// resource declares which kind its cursor is.
func CoerceToKind(value any, kind Kind) any {
	switch kind {
	case Date:
		return Coerce(value, civil.Date{})
	case Naive:
		return Coerce(value, civil.DateTime{})
	case Instant:
		return Coerce(value, time.Time{}.UTC())
	default:
		return deref(value)
	}
}
