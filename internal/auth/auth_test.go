package auth

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

func TestBasicAnswer(t *testing.T) {
	u, err := url.Parse("rtsp://localhost:554/test")
	require.NoError(t, err)

	b := NewBasic("user", "pass")
	answer, err := b.Answer(wire.Options, u)
	require.NoError(t, err)
	assert.Equal(t, "Basic dXNlcjpwYXNz", answer)
}

func TestNewDispatchesOnScheme(t *testing.T) {
	a, err := New("user", "pass", `Basic realm="test"`)
	require.NoError(t, err)
	_, ok := a.(*Basic)
	assert.True(t, ok)

	a, err = New("user", "pass", `Digest realm="test", nonce="abc123", algorithm=MD5`)
	require.NoError(t, err)
	_, ok = a.(*Digest)
	assert.True(t, ok)

	_, err = New("user", "pass", "Bearer token")
	assert.ErrorIs(t, err, ErrUnknownScheme)

	_, err = New("user", "pass", "NoSchemeHere")
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDigestAnswerProducesResponseField(t *testing.T) {
	u, err := url.Parse("rtsp://localhost:554/test")
	require.NoError(t, err)

	d, err := New("user", "pass", `Digest realm="streaming", nonce="deadbeef", algorithm=MD5`)
	require.NoError(t, err)

	answer, err := d.Answer(wire.Describe, u)
	require.NoError(t, err)
	assert.Contains(t, answer, `Digest`)
	assert.Contains(t, answer, `username="user"`)
	assert.Contains(t, answer, `response="`)
}

func TestDigestAnswerIncrementsNonceCount(t *testing.T) {
	u, err := url.Parse("rtsp://localhost:554/test")
	require.NoError(t, err)

	a, err := New("user", "pass", `Digest realm="streaming", nonce="deadbeef", algorithm=MD5`)
	require.NoError(t, err)
	d := a.(*Digest)

	_, err = d.Answer(wire.Describe, u)
	require.NoError(t, err)
	assert.Equal(t, 1, d.count)

	_, err = d.Answer(wire.Describe, u)
	require.NoError(t, err)
	assert.Equal(t, 2, d.count)
}
