package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wavecrest-video/rtspchannel/internal/auth"
	"github.com/wavecrest-video/rtspchannel/internal/reorder"
	"github.com/wavecrest-video/rtspchannel/internal/ringbuf"
	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

// readLoop owns the connection's receive side: it grows a ring
// buffer with incoming bytes, dispatches leading '$' frames as soon
// as they're complete, and feeds everything else to a response
// Assembler, forwarding each fully parsed item to the event loop. It
// exits (closing itemCh) on any read error, including the one caused
// by the event loop closing the connection during shutdown.
func (ch *Channel) readLoop() {
	defer close(ch.itemCh)

	buf := ringbuf.New(maxRingCapacity)
	asm := wire.NewAssembler()

	for {
		slice, err := buf.WriteSlice(initialRingCapacity)
		if err != nil {
			ch.itemCh <- readItem{err: fmt.Errorf("session: receive buffer exhausted: %w", err)}
			return
		}
		n, err := ch.conn.Read(slice)
		if n > 0 {
			buf.NotifyWrite(n)
		}
		if err != nil {
			if err != io.EOF {
				err = fmt.Errorf("session: read: %w", err)
			} else {
				err = io.EOF
			}
			ch.drainBuffered(buf, asm)
			ch.itemCh <- readItem{err: err}
			return
		}

		for {
			data := buf.ReadSlice()
			if len(data) == 0 {
				break
			}
			if data[0] == wire.InterleavedMagic {
				hdr, ok := wire.ParseInterleavedHeader(data)
				if !ok {
					break
				}
				total := wire.InterleavedHeaderLen + int(hdr.Length)
				if len(data) < total {
					break
				}
				payload := append([]byte(nil), data[wire.InterleavedHeaderLen:total]...)
				buf.Consume(total)
				ch.itemCh <- readItem{frameChannel: hdr.Channel, frame: payload}
				continue
			}

			msg, consumed, ok, err := asm.Feed(data)
			if err != nil {
				ch.itemCh <- readItem{err: fmt.Errorf("session: malformed response: %w", err)}
				return
			}
			if !ok {
				break
			}
			m := msg
			m.Body = append([]byte(nil), msg.Body...)
			buf.Consume(consumed)
			ch.itemCh <- readItem{response: &m}
		}
	}
}

// drainBuffered makes a best-effort attempt to hand over one final
// complete response that arrived in the same read as a connection
// close (servers sometimes shut down immediately after a TEARDOWN reply).
func (ch *Channel) drainBuffered(buf *ringbuf.Buffer, asm *wire.Assembler) {
	data := buf.ReadSlice()
	if len(data) == 0 || data[0] == wire.InterleavedMagic {
		return
	}
	if msg, _, ok, err := asm.Feed(data); ok && err == nil {
		m := msg
		ch.itemCh <- readItem{response: &m}
	}
}

// run is the channel's single event loop goroutine: it owns all
// mutable state (pending commands, authenticator, session id, reorder
// queue, transmit buffer) so none of it needs locking.
func (ch *Channel) run(ctx context.Context) {
	defer func() {
		ch.state.Store(int32(StateClosed))
		close(ch.outCh)
		close(ch.doneCh)
	}()

	pending := make(map[int]*pendingCommand)
	var cseq int
	var authn auth.Authorizer
	var sessionID string
	rq := reorder.New(ch.reorderWindow)
	bufTx := ringbuf.New(maxRingCapacity)

	keepAlive := time.NewTicker(ch.keepAliveInterval)
	defer keepAlive.Stop()

	nextCSeq := func() int {
		cseq++
		return cseq
	}

	failAllPending := func(err error) {
		for id, pc := range pending {
			pc.cmd.result <- commandResult{err: err}
			delete(pending, id)
		}
		if ch.metrics != nil {
			ch.metrics.SetPendingCommands(0)
		}
	}

	// fatal ends the event loop: every pending command fails with
	// ErrCancelled regardless of what actually went wrong, and the
	// connection is closed so the reader goroutine unblocks.
	fatal := func(cause error) {
		if cause != nil && !errors.Is(cause, io.EOF) {
			ch.log.Warn().Err(cause).Msg("session channel shutting down")
		}
		failAllPending(ErrCancelled)
		ch.conn.Close()
	}

	// queueRequest serializes req into the transmit buffer without
	// touching the connection. ErrNotEnoughSpace here means the peer
	// isn't draining requests fast enough to keep the buffer bounded
	// and is treated as fatal, same as a lost connection.
	queueRequest := func(req wire.Request) error {
		slice, err := bufTx.WriteSlice(4096 + len(req.Body))
		if err != nil {
			return err
		}
		n, err := req.Serialize(slice)
		if err != nil {
			return err
		}
		bufTx.NotifyWrite(n)
		return nil
	}

	// flushTx writes everything queued in the transmit buffer to the
	// connection, retrying on partial writes instead of assuming a
	// single Write call drains it.
	flushTx := func() error {
		for {
			data := bufTx.ReadSlice()
			if len(data) == 0 {
				return nil
			}
			n, err := ch.conn.Write(data)
			if n > 0 {
				bufTx.Consume(n)
			}
			if err != nil {
				return err
			}
		}
	}

	// send queues and flushes cmd as a new request. It returns false
	// when the failure is fatal to the whole channel (buffer exhaustion
	// or a write error), in which case the caller must stop the loop.
	send := func(cmd *command) bool {
		if cmd.method == wire.Teardown && sessionID == "" {
			cmd.result <- commandResult{}
			return true
		}
		id := nextCSeq()
		headers := append([]wire.Header{
			{Name: "CSeq", Value: strconv.Itoa(id)},
			{Name: "User-Agent", Value: userAgent},
		}, cmd.headers...)
		if sessionID != "" && cmd.method != wire.Describe && cmd.method != wire.Options {
			headers = append(headers, wire.Header{Name: "Session", Value: sessionID})
		}
		if authn != nil {
			u := ch.requestURL(cmd.path)
			if answer, err := authn.Answer(cmd.method, u); err == nil {
				headers = append(headers, wire.Header{Name: "Authorization", Value: answer})
			}
		}

		req := wire.Request{Method: cmd.method, URI: ch.requestURI(cmd.path), Headers: headers, Body: cmd.body}
		if err := queueRequest(req); err != nil {
			if errors.Is(err, ringbuf.ErrNotEnoughSpace) {
				cmd.result <- commandResult{err: ErrCancelled}
				fatal(fmt.Errorf("session: transmit buffer exhausted: %w", err))
				return false
			}
			cmd.result <- commandResult{err: fmt.Errorf("session: building request: %w", err)}
			return true
		}
		if err := flushTx(); err != nil {
			cmd.result <- commandResult{err: ErrCancelled}
			fatal(fmt.Errorf("session: writing request: %w", err))
			return false
		}

		pending[id] = &pendingCommand{cmd: cmd, method: cmd.method, path: cmd.path, headers: cmd.headers, body: cmd.body, sentAt: time.Now()}
		if ch.metrics != nil {
			ch.metrics.SetPendingCommands(len(pending))
		}
		return true
	}

	observeOutcome := func(pc *pendingCommand, result string) {
		if ch.metrics != nil {
			ch.metrics.ObserveCommand(pc.method.String(), result, time.Since(pc.sentAt).Seconds())
		}
	}

	// handleResponse dispatches a fully parsed response to the command
	// it answers. It returns false when the response cannot be
	// correlated at all (missing/unparseable CSeq, or a CSeq matching no
	// pending command): per the protocol's InvalidCSeq case, that is
	// fatal to the whole channel, not just the one response.
	handleResponse := func(msg *wire.ParsedMessage) bool {
		cseqHeader := msg.Header("CSeq")
		id, ok := parseUint(cseqHeader)
		if !ok {
			fatal(fmt.Errorf("%w: missing or unparseable header %q", ErrInvalidCSeq, cseqHeader))
			return false
		}
		pc, ok := pending[id]
		if !ok {
			fatal(fmt.Errorf("%w: cseq %d matches no pending command", ErrInvalidCSeq, id))
			return false
		}
		delete(pending, id)
		if ch.metrics != nil {
			ch.metrics.SetPendingCommands(len(pending))
		}

		switch {
		case msg.Status == wire.StatusUnauthorized && !pc.retried:
			challenge := msg.Header("WWW-Authenticate")
			a, err := auth.New(ch.username, ch.password, challenge)
			if err != nil {
				pc.cmd.result <- commandResult{err: fmt.Errorf("%w: %v", ErrUnauthorized, err)}
				return true
			}
			authn = a
			if ch.metrics != nil {
				ch.metrics.IncAuthRetry()
			}
			retry := &command{method: pc.method, path: pc.path, headers: pc.headers, body: pc.body, result: pc.cmd.result}
			id2 := nextCSeq()
			headers := append([]wire.Header{
				{Name: "CSeq", Value: strconv.Itoa(id2)},
				{Name: "User-Agent", Value: userAgent},
			}, retry.headers...)
			if sessionID != "" && retry.method != wire.Describe && retry.method != wire.Options {
				headers = append(headers, wire.Header{Name: "Session", Value: sessionID})
			}
			if answer, err := authn.Answer(retry.method, ch.requestURL(retry.path)); err == nil {
				headers = append(headers, wire.Header{Name: "Authorization", Value: answer})
			}
			req := wire.Request{Method: retry.method, URI: ch.requestURI(retry.path), Headers: headers, Body: retry.body}
			if err := queueRequest(req); err != nil {
				if errors.Is(err, ringbuf.ErrNotEnoughSpace) {
					pc.cmd.result <- commandResult{err: ErrCancelled}
					fatal(fmt.Errorf("session: transmit buffer exhausted: %w", err))
					return false
				}
				pc.cmd.result <- commandResult{err: fmt.Errorf("session: building retry request: %w", err)}
				return true
			}
			if err := flushTx(); err != nil {
				pc.cmd.result <- commandResult{err: ErrCancelled}
				fatal(fmt.Errorf("session: writing retry request: %w", err))
				return false
			}
			pending[id2] = &pendingCommand{cmd: retry, method: retry.method, path: retry.path, headers: retry.headers, body: retry.body, retried: true, sentAt: time.Now()}
			if ch.metrics != nil {
				ch.metrics.SetPendingCommands(len(pending))
			}
			return true

		case msg.Status == wire.StatusUnauthorized && pc.retried:
			observeOutcome(pc, "unauthorized")
			pc.cmd.result <- commandResult{err: ErrUnauthorized}
			return true

		case int(msg.Status) >= 200 && int(msg.Status) < 300:
			if sess := msg.Header("Session"); sess != "" && sessionID == "" {
				sessionID = strings.TrimSpace(strings.SplitN(sess, ";", 2)[0])
			}
			if pc.method == wire.Teardown {
				sessionID = ""
			}
			observeOutcome(pc, "ok")
			pc.cmd.result <- commandResult{response: &Response{Status: msg.Status, Headers: msg.Headers, Body: msg.Body}}
			return true

		default:
			observeOutcome(pc, "error")
			pc.cmd.result <- commandResult{err: &StatusError{Status: msg.Status}}
			return true
		}
	}

	deliverRTP := func(pkt wire.RTPPacket) {
		lost := ch.stats.observe(pkt.SequenceNumber, len(pkt.Payload))
		if ch.metrics != nil {
			ch.metrics.ObserveRTPPacket(len(pkt.Payload))
			ch.metrics.AddRTPLost(int(lost))
		}
		select {
		case ch.outCh <- pkt:
		case <-ctx.Done():
		}
	}

	handleFrame := func(item readItem) {
		switch wire.ClassifyInterleaved(item.frame) {
		case wire.FrameRTP:
			pkt, err := wire.ParseRTPPacket(item.frame)
			if err != nil {
				ch.log.Warn().Err(err).Msg("dropping malformed RTP packet")
				return
			}
			if ready, ok := rq.Offer(pkt); ok {
				deliverRTP(ready)
			}
			for {
				ready, ok := rq.Poll()
				if !ok {
					break
				}
				if ch.metrics != nil && rq.Len() >= ch.reorderWindow-1 {
					ch.metrics.IncReorderForcedRelease()
				}
				deliverRTP(ready)
			}
		case wire.FrameRTCP:
			if _, err := wire.WalkRTCPCompound(item.frame); err != nil {
				ch.log.Warn().Err(err).Msg("dropping malformed RTCP frame")
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			fatal(ctx.Err())
			return

		case cmd := <-ch.cmdCh:
			if !send(cmd) {
				return
			}

		case <-keepAlive.C:
			if sessionID == "" {
				continue
			}
			go func() {
				c, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				_, _ = ch.GetParameter(c)
			}()

		case item, ok := <-ch.itemCh:
			if !ok {
				fatal(nil)
				return
			}
			if item.err != nil {
				fatal(item.err)
				return
			}
			if item.response != nil {
				if !handleResponse(item.response) {
					return
				}
				continue
			}
			handleFrame(item)
		}
	}
}
