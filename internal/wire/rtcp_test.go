package wire

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receiverReportBytes builds a minimal, well-formed RTCP Receiver
// Report (RC=1, one all-zero report block) to exercise compound
// packet walking without depending on pion/rtcp's builder types.
func receiverReportBytes() []byte {
	buf := make([]byte, 32)
	buf[0] = 0x81 // V=2, P=0, RC=1
	buf[1] = 201  // Receiver Report
	buf[2] = 0x00
	buf[3] = 0x07 // length = 32/4 - 1
	buf[4], buf[5], buf[6], buf[7] = 0, 0, 0, 1 // sender SSRC
	// 24 zero bytes of report block follow.
	return buf
}

func TestClassifyInterleavedRTCP(t *testing.T) {
	assert.Equal(t, FrameRTCP, ClassifyInterleaved(receiverReportBytes()))
}

func TestWalkRTCPCompoundSinglePacket(t *testing.T) {
	sub, err := WalkRTCPCompound(receiverReportBytes())
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, rtcp.PacketType(201), sub[0].Type)
}

func TestWalkRTCPCompoundInvalid(t *testing.T) {
	_, err := WalkRTCPCompound([]byte{0x01, 0x02})
	assert.Error(t, err)
}
