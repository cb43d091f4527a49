package models

import (
	"fmt"
	"strings"
)

// ColumnKind is the logical type of a column in the bronze layer.
type ColumnKind string

const (
	KindUnknown     ColumnKind = ""
	KindString      ColumnKind = "string"
	KindInteger     ColumnKind = "integer"
	KindFloat       ColumnKind = "float"
	KindDecimal     ColumnKind = "decimal"
	KindBoolean     ColumnKind = "boolean"
	KindDate        ColumnKind = "date"
	KindTimestamp   ColumnKind = "timestamp"
	KindTimestampTZ ColumnKind = "timestamptz"
	KindTime        ColumnKind = "time"
	KindBytes       ColumnKind = "bytes"
	KindJSON        ColumnKind = "json"
)

var validKinds = []ColumnKind{
	KindString, KindInteger, KindFloat, KindDecimal, KindBoolean, KindDate,
	KindTimestamp, KindTimestampTZ, KindTime, KindBytes, KindJSON,
}

func ParseColumnKind(value string) (ColumnKind, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, kind := range validKinds {
		if string(kind) == value {
			return kind, nil
		}
	}

	return KindUnknown, fmt.Errorf("unsupported column kind: %q", value)
}

func (c ColumnKind) isNumeric() bool {
	return c == KindInteger || c == KindFloat || c == KindDecimal
}

func (c ColumnKind) isTemporal() bool {
	return c == KindDate || c == KindTimestamp || c == KindTimestampTZ
}

func temporalRank(kind ColumnKind) int {
	switch kind {
	case KindDate:
		return 0
	case KindTimestamp:
		return 1
	default:
		return 2
	}
}

func numericRank(kind ColumnKind) int {
	switch kind {
	case KindInteger:
		return 0
	case KindDecimal:
		return 1
	default:
		return 2
	}
}

// Widen returns a kind that can hold values of both [a] and [b]. It is used when two source databases disagree on a
// column's type. Numbers widen integer → decimal → float, temporals widen date → timestamp → timestamptz, and
// anything else falls back to string.
func Widen(a, b ColumnKind) ColumnKind {
	switch {
	case a == b:
		return a
	case a == KindUnknown:
		return b
	case b == KindUnknown:
		return a
	case a.isNumeric() && b.isNumeric():
		if numericRank(a) >= numericRank(b) {
			return a
		}
		return b
	case a.isTemporal() && b.isTemporal():
		if temporalRank(a) >= temporalRank(b) {
			return a
		}
		return b
	default:
		return KindString
	}
}
