// Package reorder implements a bounded reorder queue for RTP packets
// arriving on an interleaved channel, re-sequencing small bursts of
// out-of-order delivery while forcing a release once the queue grows
// past its configured bound rather than waiting forever for a gap to fill.
package reorder

import (
	"container/heap"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

// Queue re-orders RTP packets by sequence number. It is not safe for
// concurrent use; callers serialize access (the session channel's
// event loop does this for them).
type Queue struct {
	heap    packetHeap
	maxLen  int
	started bool
	lastSeq uint16
}

// New returns a Queue that force-releases its oldest held packet once
// maxLen packets are buffered waiting for a gap to close.
func New(maxLen int) *Queue {
	return &Queue{maxLen: maxLen}
}

// Offer admits packet into the queue. If it is the very first packet
// seen, or exactly the next packet in sequence, it is handed straight
// back for immediate delivery. Packets older than the last delivered
// sequence number are discarded. Anything else is buffered pending a
// later Poll.
func (q *Queue) Offer(packet wire.RTPPacket) (wire.RTPPacket, bool) {
	if !q.started {
		q.started = true
		q.lastSeq = packet.SequenceNumber
		return packet, true
	}

	diff := int16(packet.SequenceNumber - q.lastSeq)
	switch {
	case diff == 1:
		q.lastSeq = packet.SequenceNumber
		return packet, true
	case diff <= 0:
		return wire.RTPPacket{}, false
	default:
		heap.Push(&q.heap, packet)
		return wire.RTPPacket{}, false
	}
}

// Poll returns the next packet ready for delivery: either the packet
// immediately following the last one delivered, or, once the queue
// holds at least maxLen packets, whichever buffered packet has the
// lowest sequence number (a forced release that tolerates a gap
// rather than stalling indefinitely).
func (q *Queue) Poll() (wire.RTPPacket, bool) {
	if len(q.heap) == 0 {
		return wire.RTPPacket{}, false
	}
	top := q.heap[0]
	diff := int16(top.SequenceNumber - q.lastSeq)
	if diff == 1 || len(q.heap) >= q.maxLen {
		packet := heap.Pop(&q.heap).(wire.RTPPacket)
		q.lastSeq = packet.SequenceNumber
		return packet, true
	}
	return wire.RTPPacket{}, false
}

// Len reports the number of packets currently buffered awaiting release.
func (q *Queue) Len() int {
	return len(q.heap)
}

type packetHeap []wire.RTPPacket

func (h packetHeap) Len() int            { return len(h) }
func (h packetHeap) Less(i, j int) bool  { return int16(h[i].SequenceNumber-h[j].SequenceNumber) < 0 }
func (h packetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *packetHeap) Push(x interface{}) { *h = append(*h, x.(wire.RTPPacket)) }
func (h *packetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
