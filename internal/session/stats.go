package session

import "sync/atomic"

// Stats accumulates RTP delivery counters for a single channel. All
// fields are updated from the channel's event loop goroutine only, and
// read (via Snapshot) from any goroutine.
type Stats struct {
	initialized bool
	lastSeq     uint16
	cycles      uint32

	packets atomic.Uint64
	lost    atomic.Uint64
	bytes   atomic.Uint64
}

// observe folds a newly delivered sequence number into the running
// loss estimate, RFC 3550 appendix A.1 style: a forward step that
// crosses from 0xFFFF to 0 increments the cycle count, and a backward
// step (any delta of 0x8000 or more) is not counted as loss.
func (s *Stats) observe(seq uint16, payloadBytes int) uint64 {
	s.packets.Add(1)
	s.bytes.Add(uint64(payloadBytes))

	if !s.initialized {
		s.initialized = true
		s.lastSeq = seq
		return 0
	}

	var lost uint64
	udelta := uint16(seq - s.lastSeq)
	if udelta < 0x8000 {
		if udelta > 1 {
			lost = uint64(udelta - 1)
			s.lost.Add(lost)
		}
		if seq < s.lastSeq {
			s.cycles++
		}
	}
	// udelta >= 0x8000: either a duplicate/reordered packet behind
	// lastSeq, or a very large forward jump. Either way the reorder
	// queue has already resolved ordering before packets reach here,
	// so no loss is attributed.
	s.lastSeq = seq
	return lost
}

// Snapshot is a point-in-time copy of Stats, safe to read after the
// channel has stopped.
type Snapshot struct {
	Packets uint64
	Lost    uint64
	Bytes   uint64
}

// LossRate returns the fraction of packets lost, 0 to 100.
func (s Snapshot) LossRate() float64 {
	total := s.Packets + s.Lost
	if total == 0 {
		return 0
	}
	return float64(s.Lost) * 100.0 / float64(total)
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Packets: s.packets.Load(),
		Lost:    s.lost.Load(),
		Bytes:   s.bytes.Load(),
	}
}
