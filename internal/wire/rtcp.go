package wire

import "github.com/pion/rtcp"

// FrameKind classifies an interleaved media frame's payload.
type FrameKind int

const (
	FrameRTP FrameKind = iota
	FrameRTCP
)

// ClassifyInterleaved inspects the second byte of an interleaved
// frame's payload (the RTCP/RTP packet-type byte) per RFC 3550 §5/§6:
// values 200-207 belong to the closed RTCP packet-type range, any
// other value is treated as RTP.
func ClassifyInterleaved(payload []byte) FrameKind {
	if len(payload) < 2 {
		return FrameRTP
	}
	pt := payload[1]
	if pt >= 200 && pt <= 207 {
		return FrameRTCP
	}
	return FrameRTP
}

// RTCPSubPacket summarises one packet of a compound RTCP frame. The
// session channel acknowledges RTCP as a framed class without
// interpreting it further, so only the header is exposed.
type RTCPSubPacket struct {
	Type   rtcp.PacketType
	Length int // payload bytes, header included
}

// WalkRTCPCompound splits a (possibly compound) RTCP payload into its
// constituent sub-packets for logging/metrics, mirroring RFC 3550's
// compound-packet structure. Packets are never interpreted beyond
// their header.
func WalkRTCPCompound(payload []byte) ([]RTCPSubPacket, error) {
	packets, err := rtcp.Unmarshal(payload)
	if err != nil {
		return nil, err
	}
	out := make([]RTCPSubPacket, 0, len(packets))
	for _, pkt := range packets {
		raw, err := pkt.Marshal()
		if err != nil {
			return out, err
		}
		out = append(out, RTCPSubPacket{
			Type:   pkt.Header().Type,
			Length: len(raw),
		})
	}
	return out, nil
}
