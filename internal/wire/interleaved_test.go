package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInterleavedHeader(t *testing.T) {
	buf := []byte{'$', 0, 0x01, 0x02, 0xAA, 0xBB}
	hdr, ok := ParseInterleavedHeader(buf)
	assert.True(t, ok)
	assert.Equal(t, byte(0), hdr.Channel)
	assert.Equal(t, uint16(0x0102), hdr.Length)
}

func TestParseInterleavedHeaderRejectsWrongMagic(t *testing.T) {
	buf := []byte{'X', 0, 0, 0}
	_, ok := ParseInterleavedHeader(buf)
	assert.False(t, ok)
}

func TestClassifyInterleaved(t *testing.T) {
	rtp := []byte{0x80, 0x60, 0, 0}
	assert.Equal(t, FrameRTP, ClassifyInterleaved(rtp))

	rtcpSR := []byte{0x80, 200, 0, 0}
	assert.Equal(t, FrameRTCP, ClassifyInterleaved(rtcpSR))

	rtcpXR := []byte{0x80, 207, 0, 0}
	assert.Equal(t, FrameRTCP, ClassifyInterleaved(rtcpXR))
}
