package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMegabytes_RoundsUp(t *testing.T) {
	assert.Equal(t, 10, megabytes(10_000_000))
	assert.Equal(t, 1, megabytes(1))
	assert.Equal(t, 1, megabytes(megabyte))
	assert.Equal(t, 2, megabytes(megabyte+1))
	assert.Equal(t, 10, megabytes(0))
}
