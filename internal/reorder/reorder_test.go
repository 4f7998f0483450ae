package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

func pkt(seq uint16) wire.RTPPacket {
	return wire.RTPPacket{Version: 2, PayloadType: 96, SequenceNumber: seq}
}

func drainAllReady(q *Queue) []uint16 {
	var seqs []uint16
	for {
		p, ok := q.Poll()
		if !ok {
			break
		}
		seqs = append(seqs, p.SequenceNumber)
	}
	return seqs
}

func TestQueueReordersOutOfOrderBurst(t *testing.T) {
	q := New(5)

	p, ok := q.Offer(pkt(23))
	require.True(t, ok)
	assert.Equal(t, uint16(23), p.SequenceNumber)

	_, ok = q.Offer(pkt(25))
	assert.False(t, ok)

	_, ok = q.Offer(pkt(27))
	assert.False(t, ok)

	p, ok = q.Offer(pkt(24))
	require.True(t, ok)
	assert.Equal(t, uint16(24), p.SequenceNumber)

	_, ok = q.Offer(pkt(26))
	assert.False(t, ok)

	assert.Equal(t, []uint16{25, 26, 27}, drainAllReady(q))
	_, ok = q.Poll()
	assert.False(t, ok)
}

func TestQueueDiscardsOldPackets(t *testing.T) {
	q := New(5)
	_, ok := q.Offer(pkt(10))
	require.True(t, ok)

	_, ok = q.Offer(pkt(5))
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueForcesReleaseOnOverflow(t *testing.T) {
	q := New(3)
	_, ok := q.Offer(pkt(1))
	require.True(t, ok)

	// Sequence 2 never arrives; 3, 4, 5 buffer behind the gap.
	_, ok = q.Offer(pkt(3))
	require.False(t, ok)
	_, ok = q.Offer(pkt(4))
	require.False(t, ok)
	_, ok = q.Offer(pkt(5))
	require.False(t, ok)

	// Queue now holds 3 packets (== maxLen); Poll must force a
	// release instead of waiting forever for sequence 2.
	p, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint16(3), p.SequenceNumber)

	p, ok = q.Poll()
	require.True(t, ok)
	assert.Equal(t, uint16(4), p.SequenceNumber)
}
