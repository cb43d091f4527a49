package environ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	{
		_, ok := String("DWH_TEST_UNSET")
		assert.False(t, ok)
	}
	{
		t.Setenv("DWH_TEST_BLANK", "   ")
		_, ok := String("DWH_TEST_BLANK")
		assert.False(t, ok)
	}
	{
		t.Setenv("DWH_TEST_PATH", " data/warehouse.duckdb ")
		value, ok := String("DWH_TEST_PATH")
		assert.True(t, ok)
		assert.Equal(t, "data/warehouse.duckdb", value)
	}
}

func TestInt(t *testing.T) {
	{
		value, err := Int("DWH_TEST_UNSET", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, value)
	}
	{
		t.Setenv("DWH_TEST_WORKERS", "8")
		value, err := Int("DWH_TEST_WORKERS", 3)
		require.NoError(t, err)
		assert.Equal(t, 8, value)
	}
	{
		t.Setenv("DWH_TEST_WORKERS", "many")
		_, err := Int("DWH_TEST_WORKERS", 3)
		assert.ErrorContains(t, err, "DWH_TEST_WORKERS must be an integer")
	}
}
