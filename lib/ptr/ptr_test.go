package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTo(t *testing.T) {
	value := To(int64(5))
	assert.Equal(t, int64(5), *value)

	text := ToString("fiuba")
	*text = "fce"
	assert.Equal(t, "fce", *text)
}
