// Package session implements the RTSP session channel: a single TCP
// connection carrying pipelined RTSP requests/responses interleaved
// with binary RTP/RTCP frames, run as one cooperative event loop.
package session

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/wavecrest-video/rtspchannel/internal/auth"
	"github.com/wavecrest-video/rtspchannel/internal/metrics"
	"github.com/wavecrest-video/rtspchannel/internal/reorder"
	"github.com/wavecrest-video/rtspchannel/internal/ringbuf"
	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

// State is the lifecycle of a Channel.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// DefaultKeepAliveInterval is how often the channel sends a
	// GET_PARAMETER while a session is established, whether or not
	// other traffic is flowing.
	DefaultKeepAliveInterval = 20 * time.Second
	// DefaultReorderWindow bounds how many out-of-order RTP packets
	// the channel buffers before forcing a release.
	DefaultReorderWindow = 32
	// DefaultDialTimeout bounds the initial TCP connect.
	DefaultDialTimeout = 5 * time.Second
	// initialRingCapacity / maxRingCapacity size the receive buffer;
	// MediaMTX and similar servers can send multi-kilobyte SDP bodies
	// in a single DESCRIBE response.
	initialRingCapacity = 4096
	maxRingCapacity     = 1024 * 1024

	userAgent = "rtspchannel/1.0"
)

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithKeepAliveInterval overrides DefaultKeepAliveInterval.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(ch *Channel) { ch.keepAliveInterval = d }
}

// WithReorderWindow overrides DefaultReorderWindow.
func WithReorderWindow(n int) Option {
	return func(ch *Channel) { ch.reorderWindow = n }
}

// WithMetrics attaches a Prometheus collector. A Channel built
// without this option collects no metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(ch *Channel) { ch.metrics = c }
}

// WithLogger overrides the zerolog.Logger used for diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(ch *Channel) { ch.log = l }
}

// WithIntakeLimiter bounds how fast the caller may submit commands,
// to keep a single channel from hammering a slow server.
func WithIntakeLimiter(l *rate.Limiter) Option {
	return func(ch *Channel) { ch.limiter = l }
}

// WithDialer overrides how the channel opens its control connection;
// tests use this to substitute net.Pipe or a chaos peer.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(ch *Channel) { ch.dial = dial }
}

// Channel is a single RTSP control connection plus its interleaved
// media stream, driven by one goroutine. All exported methods other
// than Packets/Stats/State submit work to that goroutine and block
// until it responds or the caller's context is done.
type Channel struct {
	id       string
	rawURL   *url.URL
	username string
	password string

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	conn net.Conn

	keepAliveInterval time.Duration
	reorderWindow     int
	metrics           *metrics.Collector
	log               zerolog.Logger
	limiter           *rate.Limiter

	cmdCh  chan *command
	itemCh chan readItem
	outCh  chan wire.RTPPacket
	doneCh chan struct{}

	state atomic.Int32
	stats Stats

	startOnce sync.Once
	startErr  error
}

// readItem is produced by the reader goroutine and consumed by the
// event loop: either a fully buffered interleaved frame or a fully
// parsed RTSP response, never both.
type readItem struct {
	frameChannel byte
	frame        []byte
	response     *wire.ParsedMessage
	err          error
}

// New builds a Channel for rawURL (rtsp:// or rtsps://), not yet
// connected. Call Start to dial and begin the event loop.
func New(rawURL, username, password string, opts ...Option) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid URL: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("session: unsupported scheme %q", u.Scheme)
	}

	ch := &Channel{
		id:                uuid.NewString(),
		rawURL:            u,
		username:          username,
		password:          password,
		keepAliveInterval: DefaultKeepAliveInterval,
		reorderWindow:     DefaultReorderWindow,
		log:               log.Logger,
		cmdCh:             make(chan *command),
		itemCh:            make(chan readItem, 16),
		outCh:             make(chan wire.RTPPacket, 256),
		doneCh:            make(chan struct{}),
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			d.Timeout = DefaultDialTimeout
			return d.DialContext(ctx, network, addr)
		},
	}
	for _, opt := range opts {
		opt(ch)
	}
	ch.log = ch.log.With().Str("channel", ch.id).Str("url", u.Redacted()).Logger()
	return ch, nil
}

func hostWithDefaultPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), "554")
}

// Start dials the control connection and launches the reader goroutine
// and event loop. The channel runs until ctx is done or Shutdown is
// called; Start itself returns once the connection is established.
func (ch *Channel) Start(ctx context.Context) error {
	ch.startOnce.Do(func() {
		conn, err := ch.dial(ctx, "tcp", hostWithDefaultPort(ch.rawURL))
		if err != nil {
			ch.startErr = fmt.Errorf("session: dial: %w", err)
			return
		}
		ch.conn = conn
		ch.state.Store(int32(StateActive))
		go ch.readLoop()
		go ch.run(ctx)
	})
	return ch.startErr
}

// Packets returns the channel over which re-ordered RTP packets are
// delivered. The channel is closed when the session channel shuts down.
func (ch *Channel) Packets() <-chan wire.RTPPacket { return ch.outCh }

// Stats returns a snapshot of RTP delivery counters.
func (ch *Channel) Stats() Snapshot { return ch.stats.Snapshot() }

// State returns the channel's current lifecycle state.
func (ch *Channel) State() State { return State(ch.state.Load()) }

// Done is closed once the event loop has fully exited.
func (ch *Channel) Done() <-chan struct{} { return ch.doneCh }

// Shutdown requests an orderly close: a TEARDOWN is attempted if a
// session is active, every pending command is failed with
// ErrCancelled, and the underlying connection is closed. Shutdown
// blocks until the event loop has exited.
func (ch *Channel) Shutdown() {
	if ch.State() == StateClosed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = ch.Teardown(ctx)
	if ch.conn != nil {
		ch.conn.Close()
	}
	<-ch.doneCh
}

// Describe issues DESCRIBE against the channel's base URL.
func (ch *Channel) Describe(ctx context.Context) (*Response, error) {
	return ch.Do(ctx, wire.Describe, "", []wire.Header{{Name: "Accept", Value: "application/sdp"}}, nil)
}

// Setup issues SETUP for trackPath (e.g. "/trackID=0"), requesting
// TCP interleaved delivery on the given channel pair.
func (ch *Channel) Setup(ctx context.Context, trackPath string, interleaved [2]int) (*Response, error) {
	transport := fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", interleaved[0], interleaved[1])
	return ch.Do(ctx, wire.Setup, trackPath, []wire.Header{{Name: "Transport", Value: transport}}, nil)
}

// Play issues PLAY with the given Range header value (e.g. "npt=0.000-").
func (ch *Channel) Play(ctx context.Context, rangeHeader string) (*Response, error) {
	var headers []wire.Header
	if rangeHeader != "" {
		headers = append(headers, wire.Header{Name: "Range", Value: rangeHeader})
	}
	return ch.Do(ctx, wire.Play, "", headers, nil)
}

// Teardown issues TEARDOWN. It is a no-op returning (nil, nil) if no
// session has ever been established.
func (ch *Channel) Teardown(ctx context.Context) (*Response, error) {
	return ch.Do(ctx, wire.Teardown, "", nil, nil)
}

// GetParameter issues a bare GET_PARAMETER, used internally as a
// keep-alive and exposed for callers that want to probe liveness.
func (ch *Channel) GetParameter(ctx context.Context) (*Response, error) {
	return ch.Do(ctx, wire.GetParameter, "", nil, nil)
}

// Do submits an arbitrary RTSP request and waits for its response,
// honoring ctx for cancellation. The event loop still owns the
// request/response lifecycle: cancelling ctx does not un-send a
// request already written to the wire, it only stops the caller from
// waiting on it.
func (ch *Channel) Do(ctx context.Context, method wire.Method, path string, headers []wire.Header, body []byte) (*Response, error) {
	if ch.limiter != nil {
		if err := ch.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	cmd := &command{method: method, path: path, headers: headers, body: body, result: make(chan commandResult, 1)}
	select {
	case ch.cmdCh <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch.doneCh:
		return nil, ErrClosed
	}
	select {
	case res := <-cmd.result:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requestURL builds the absolute request URL for path appended to the
// channel's base URL, matching the teacher's track-request construction.
func (ch *Channel) requestURL(path string) *url.URL {
	if path == "" {
		u := *ch.rawURL
		return &u
	}
	u := *ch.rawURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return &u
}

// requestURI is the string form of requestURL, as written on the wire.
func (ch *Channel) requestURI(path string) string {
	return ch.requestURL(path).String()
}

func parseUint(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
