package session

import "testing"

func TestStatsObserveInitializesWithoutLoss(t *testing.T) {
	var s Stats
	if lost := s.observe(100, 200); lost != 0 {
		t.Fatalf("first observe reported loss %d, want 0", lost)
	}
	snap := s.Snapshot()
	if snap.Packets != 1 || snap.Bytes != 200 || snap.Lost != 0 {
		t.Fatalf("unexpected snapshot after first packet: %+v", snap)
	}
}

func TestStatsObserveDetectsGap(t *testing.T) {
	var s Stats
	s.observe(10, 100)
	lost := s.observe(13, 100)
	if lost != 2 {
		t.Fatalf("gap of 10->13 should report 2 lost, got %d", lost)
	}
	snap := s.Snapshot()
	if snap.Packets != 2 || snap.Lost != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStatsObserveSequentialNoLoss(t *testing.T) {
	var s Stats
	s.observe(1, 10)
	if lost := s.observe(2, 10); lost != 0 {
		t.Fatalf("sequential packets should not report loss, got %d", lost)
	}
}

func TestStatsObserveToleratesWraparound(t *testing.T) {
	var s Stats
	s.observe(0xFFFE, 10)
	if lost := s.observe(0xFFFF, 10); lost != 0 {
		t.Fatalf("pre-wrap sequential packet should not report loss, got %d", lost)
	}
	if lost := s.observe(0x0000, 10); lost != 0 {
		t.Fatalf("wraparound to 0 should not report loss, got %d", lost)
	}
}

func TestSnapshotLossRate(t *testing.T) {
	snap := Snapshot{Packets: 98, Lost: 2}
	if rate := snap.LossRate(); rate < 1.99 || rate > 2.01 {
		t.Fatalf("expected ~2%% loss rate, got %f", rate)
	}

	empty := Snapshot{}
	if rate := empty.LossRate(); rate != 0 {
		t.Fatalf("empty snapshot should report 0%% loss, got %f", rate)
	}
}
