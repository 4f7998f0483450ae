package wire

import (
	"github.com/pion/rtp"
)

// RTPPacket is the accessor surface this module depends on for an RTP
// packet, backed by pion/rtp's wire parsing rather than hand-rolled
// bit twiddling over the RFC 3550 header layout.
type RTPPacket struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	Payload        []byte
}

// ParseRTPPacket unmarshals buf as an RTP packet. buf is copied into
// the returned packet's Payload/CSRC so the caller's buffer can be
// reused immediately afterward.
func ParseRTPPacket(buf []byte) (RTPPacket, error) {
	var p rtp.Packet
	if err := p.Unmarshal(buf); err != nil {
		return RTPPacket{}, err
	}
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	var csrc []uint32
	if len(p.CSRC) > 0 {
		csrc = make([]uint32, len(p.CSRC))
		copy(csrc, p.CSRC)
	}
	return RTPPacket{
		Version:        p.Version,
		Padding:        p.Padding,
		Extension:      p.Extension,
		CSRCCount:      uint8(len(p.CSRC)),
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
		CSRC:           csrc,
		Payload:        payload,
	}, nil
}
