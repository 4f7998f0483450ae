package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatusKnownCodes(t *testing.T) {
	s, err := ParseStatus(200)
	assert.NoError(t, err)
	assert.Equal(t, StatusOK, s)

	s, err = ParseStatus(404)
	assert.NoError(t, err)
	assert.Equal(t, StatusNotFound, s)
}

func TestParseStatusUnknownCode(t *testing.T) {
	_, err := ParseStatus(999)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("DESCRIBE")
	assert.NoError(t, err)
	assert.Equal(t, Describe, m)

	_, err = ParseMethod("BOGUS")
	assert.Error(t, err)
}
