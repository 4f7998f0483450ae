package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRTPPacket(t *testing.T) {
	buf := []byte{
		0x80, 0x60, 0x00, 0x17, // V=2, no padding/ext, CC=0, M=0, PT=96, seq=23
		0x00, 0x00, 0x00, 0x00, // timestamp
		0x00, 0x00, 0x00, 0x00, // ssrc
		0xDE, 0xAD, // payload
	}
	pkt, err := ParseRTPPacket(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pkt.Version)
	assert.False(t, pkt.Padding)
	assert.False(t, pkt.Extension)
	assert.Equal(t, uint8(0), pkt.CSRCCount)
	assert.False(t, pkt.Marker)
	assert.Equal(t, uint8(96), pkt.PayloadType)
	assert.Equal(t, uint16(23), pkt.SequenceNumber)
	assert.Equal(t, []byte{0xDE, 0xAD}, pkt.Payload)
}

func TestParseRTPPacketTooShort(t *testing.T) {
	_, err := ParseRTPPacket([]byte{0x80, 0x60})
	assert.Error(t, err)
}
