package maputil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetKeyFromMap(t *testing.T) {
	var obj map[string]any
	assert.Equal(t, "dusty", GetKeyFromMap(obj, "invalid", "dusty"))

	obj = map[string]any{"foo": "bar"}
	assert.Equal(t, "bar", GetKeyFromMap(obj, "foo", "robin"))
	assert.Equal(t, "robin", GetKeyFromMap(obj, "foo#1", "robin"))
}
