package stagefile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-sql/civil"

	"github.com/padm/dwh/models"
)

const (
	DateTimeLayout = "2006-01-02 15:04:05.999999999"
	TimeLayout     = "15:04:05.999999"
)

// FormatValue returns the text form of a value as the destination parses it. Nil means NULL.
func FormatValue(value any, kind models.ColumnKind) (*string, error) {
	text, ok, err := formatValue(value, kind)
	if err != nil || !ok {
		return nil, err
	}
	return &text, nil
}

func formatValue(value any, kind models.ColumnKind) (string, bool, error) {
	switch castedValue := value.(type) {
	case nil:
		return "", false, nil
	case string:
		return castedValue, true, nil
	case []byte:
		if castedValue == nil {
			return "", false, nil
		}
		if kind == models.KindBytes {
			return EscapeBytes(castedValue), true, nil
		}
		return string(castedValue), true, nil
	case bool:
		return strconv.FormatBool(castedValue), true, nil
	case int:
		return strconv.Itoa(castedValue), true, nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(castedValue), true, nil
	case float32:
		return strconv.FormatFloat(float64(castedValue), 'g', -1, 32), true, nil
	case float64:
		return strconv.FormatFloat(castedValue, 'g', -1, 64), true, nil
	case civil.Date:
		return castedValue.String(), true, nil
	case civil.DateTime:
		return castedValue.In(time.UTC).Format(DateTimeLayout), true, nil
	case civil.Time:
		return castedValue.String(), true, nil
	case time.Time:
		switch kind {
		case models.KindDate:
			return civil.DateOf(castedValue).String(), true, nil
		case models.KindTimestamp:
			return castedValue.Format(DateTimeLayout), true, nil
		case models.KindTime:
			return castedValue.Format(TimeLayout), true, nil
		default:
			return castedValue.Format(time.RFC3339Nano), true, nil
		}
	case fmt.Stringer:
		return castedValue.String(), true, nil
	case map[string]any, []any:
		out, err := json.MarshalToString(castedValue)
		if err != nil {
			return "", false, fmt.Errorf("failed to marshal %T: %w", castedValue, err)
		}
		return out, true, nil
	default:
		out, err := json.MarshalToString(castedValue)
		if err != nil {
			return "", false, fmt.Errorf("unsupported value %T: %w", castedValue, err)
		}
		return out, true, nil
	}
}

// EscapeBytes renders every byte as \xHH, the text form DuckDB casts to BLOB.
func EscapeBytes(value []byte) string {
	var sb strings.Builder
	sb.Grow(len(value) * 4)
	for _, b := range value {
		fmt.Fprintf(&sb, `\x%02X`, b)
	}
	return sb.String()
}
