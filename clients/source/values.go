package source

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/golang-sql/civil"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/padm/dwh/models"
)

var naiveLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.DateOnly,
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
}

func parseNaive(value string) (civil.DateTime, error) {
	for _, layout := range naiveLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return civil.DateTimeOf(ts), nil
		}
	}
	return civil.DateTime{}, fmt.Errorf("failed to parse %q as a timestamp", value)
}

func parseInstant(value string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}

	// No offset, treat it as UTC.
	naive, err := parseNaive(value)
	if err != nil {
		return time.Time{}, err
	}
	return naive.In(time.UTC), nil
}

func parseDate(value string) (civil.Date, error) {
	if date, err := civil.ParseDate(value); err == nil {
		return date, nil
	}

	naive, err := parseNaive(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("failed to parse %q as a date", value)
	}
	return naive.Date, nil
}

// convertValue maps a scanned value to the Go type of its column kind:
// date → [civil.Date], timestamp → [civil.DateTime], timestamptz → [time.Time]. Byte slices become strings unless the
// column holds binary data.
func convertValue(value any, col column) (any, error) {
	if value == nil {
		return nil, nil
	}

	if b, ok := value.([]byte); ok {
		switch {
		case col.databaseType == "UNIQUEIDENTIFIER":
			var uid mssql.UniqueIdentifier
			if err := uid.Scan(b); err != nil {
				return nil, fmt.Errorf("failed to scan uniqueidentifier: %w", err)
			}
			return uid.String(), nil
		case col.kind == models.KindBytes:
			return bytes.Clone(b), nil
		default:
			value = string(b)
		}
	}

	switch col.kind {
	case models.KindDate:
		switch castedValue := value.(type) {
		case time.Time:
			return civil.DateOf(castedValue), nil
		case string:
			return parseDate(strings.TrimSpace(castedValue))
		}
	case models.KindTimestamp:
		switch castedValue := value.(type) {
		case time.Time:
			return civil.DateTimeOf(castedValue), nil
		case string:
			return parseNaive(strings.TrimSpace(castedValue))
		}
	case models.KindTimestampTZ:
		switch castedValue := value.(type) {
		case time.Time:
			return castedValue, nil
		case string:
			return parseInstant(strings.TrimSpace(castedValue))
		}
	}

	return value, nil
}
