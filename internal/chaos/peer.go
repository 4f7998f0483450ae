// Package chaos implements misbehaving RTSP server peers used to
// drive a session channel's resilience tests: slow or garbled
// responses, connections dropped mid-handshake, and repeated
// authorization challenges. Each Peer plays the server side of a
// net.Conn (typically the server half of a net.Pipe) handed to it by
// a test.
package chaos

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Peer is a scripted, misbehaving RTSP server endpoint.
type Peer struct {
	conn net.Conn
}

// New wraps conn (the server half of the connection under test).
func New(conn net.Conn) *Peer {
	return &Peer{conn: conn}
}

// request is a minimally parsed RTSP request line plus CSeq, enough
// to keep a scripted response's CSeq correlated with its request.
type request struct {
	method string
	cseq   string
}

func (p *Peer) readRequest() (request, error) {
	r := bufio.NewReader(p.conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return request{}, err
	}
	fields := strings.Fields(line)
	var req request
	if len(fields) > 0 {
		req.method = fields[0]
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return req, err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		name, value, ok := strings.Cut(trimmed, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "cseq") {
			req.cseq = strings.TrimSpace(value)
		}
	}
	return req, nil
}

// SlowWriter reads one request, then writes a valid 200 OK response
// one byte at a time with small random delays, enough to exercise a
// reader loop's tolerance for drip-fed TCP segments without tripping
// any fixed per-read timeout.
func (p *Peer) SlowWriter() error {
	req, err := p.readRequest()
	if err != nil {
		return err
	}
	resp := fmt.Sprintf("RTSP/1.0 200 OK\r\nCSeq: %s\r\n\r\n", req.cseq)
	for i := 0; i < len(resp); i++ {
		time.Sleep(time.Duration(1+rand.Intn(4)) * time.Millisecond)
		if _, err := p.conn.Write([]byte{resp[i]}); err != nil {
			return err
		}
	}
	return nil
}

// GarbageSender replies to a request with bytes that are not a valid
// RTSP response at all, exercising the parser's malformed-input path.
func (p *Peer) GarbageSender() error {
	if _, err := p.readRequest(); err != nil {
		return err
	}
	garbage := []string{
		"HTTP/1.1 200 OK\r\n\r\n",
		"\x00\x01\x02\x03\x04\x05",
		"NOT EVEN CLOSE TO RTSP\n",
	}
	_, err := p.conn.Write([]byte(garbage[rand.Intn(len(garbage))]))
	return err
}

// DropMidHandshake reads one request and closes the connection
// without ever responding, exercising shutdown of commands still
// waiting on a reply when the connection disappears.
func (p *Peer) DropMidHandshake() error {
	if _, err := p.readRequest(); err != nil {
		return err
	}
	return p.conn.Close()
}

// RandomDisconnect closes the connection after a short random delay,
// with no request required, exercising unsolicited connection loss
// while a client is otherwise idle.
func (p *Peer) RandomDisconnect() error {
	time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	return p.conn.Close()
}

// DigestChallenger answers each of the first two requests with a
// fresh 401 challenge, even after seeing a well-formed Authorization
// header, then returns, exercising the second-401-fails policy.
func (p *Peer) DigestChallenger() error {
	for i := 0; i < 2; i++ {
		req, err := p.readRequest()
		if err != nil {
			return err
		}
		nonce := fmt.Sprintf("nonce-%d", i)
		resp := fmt.Sprintf(
			"RTSP/1.0 401 Unauthorized\r\nCSeq: %s\r\nWWW-Authenticate: Digest realm=\"chaos\", nonce=\"%s\", algorithm=MD5\r\n\r\n",
			req.cseq, nonce,
		)
		if _, err := p.conn.Write([]byte(resp)); err != nil {
			return err
		}
	}
	return nil
}

// InterleavedFloodThenSilence writes n interleaved RTP frames with
// sequential sequence numbers on channel, then stops responding to
// anything further, exercising a reader loop that must keep
// delivering buffered packets after the control side goes quiet.
func (p *Peer) InterleavedFloodThenSilence(channel byte, n int, startSeq uint16) error {
	for i := 0; i < n; i++ {
		payload := make([]byte, 12)
		payload[0] = 0x80
		payload[1] = 96
		binary.BigEndian.PutUint16(payload[2:4], startSeq+uint16(i))
		if _, err := p.conn.Write([]byte{'$', channel}); err != nil {
			return err
		}
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
		if _, err := p.conn.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := p.conn.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
