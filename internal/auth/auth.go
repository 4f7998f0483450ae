// Package auth builds Authorization header values for RTSP requests
// challenged with Basic or Digest schemes (RFC 2617), mirroring the
// username/password + WWW-Authenticate handshake the session channel
// sees on a second request after a 401 response.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/icholy/digest"

	"github.com/wavecrest-video/rtspchannel/internal/wire"
)

var (
	// ErrInvalidHeader is returned when a WWW-Authenticate header has
	// no scheme token or no challenge data following it.
	ErrInvalidHeader = errors.New("auth: invalid WWW-Authenticate header")
	// ErrUnknownScheme is returned for any scheme other than Basic or Digest.
	ErrUnknownScheme = errors.New("auth: unknown authorization scheme")
)

// Authorizer produces Authorization header values for successive
// requests on a single connection. Implementations are not safe for
// concurrent use; the session channel serializes all calls through
// its event loop.
type Authorizer interface {
	// Answer returns the Authorization header value to attach to a
	// request for method against url.
	Answer(method wire.Method, u *url.URL) (string, error)
}

// New builds an Authorizer from the scheme challenged by a 401
// response's WWW-Authenticate header, e.g. `Digest realm="...", ...`
// or `Basic realm="..."`.
func New(username, password, wwwAuthenticate string) (Authorizer, error) {
	scheme, rest, ok := strings.Cut(wwwAuthenticate, " ")
	if !ok {
		return nil, ErrInvalidHeader
	}
	switch scheme {
	case "Basic":
		return NewBasic(username, password), nil
	case "Digest":
		return newDigest(username, password, wwwAuthenticate, rest)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}

// Basic implements the RFC 2617 Basic scheme: a constant
// base64(user:pass) token reused for every request.
type Basic struct {
	answer string
}

// NewBasic builds a Basic authorizer directly, for callers that know
// in advance a server expects Basic auth.
func NewBasic(username, password string) *Basic {
	raw := username + ":" + password
	return &Basic{answer: "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))}
}

func (b *Basic) Answer(wire.Method, *url.URL) (string, error) {
	return b.answer, nil
}

// Digest implements the RFC 2617 Digest scheme against a single
// server-issued challenge, incrementing its nonce count (nc) and
// drawing a fresh client nonce (cnonce) for every answer.
type Digest struct {
	username  string
	password  string
	challenge *digest.Challenge

	mu    sync.Mutex
	count int
}

func newDigest(username, password, fullHeader, rest string) (*Digest, error) {
	if rest == "" {
		return nil, ErrInvalidHeader
	}
	chal, err := digest.ParseChallenge(fullHeader)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing digest challenge: %w", err)
	}
	return &Digest{username: username, password: password, challenge: chal}, nil
}

func (d *Digest) Answer(method wire.Method, u *url.URL) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count++
	cnonce, err := newCNonce()
	if err != nil {
		return "", fmt.Errorf("auth: generating cnonce: %w", err)
	}

	cred, err := digest.Digest(d.challenge, digest.Options{
		Method:   method.String(),
		URI:      u.RequestURI(),
		Username: d.username,
		Password: d.password,
		Count:    d.count,
		Cnonce:   cnonce,
	})
	if err != nil {
		return "", fmt.Errorf("auth: computing digest response: %w", err)
	}
	return cred.String(), nil
}

func newCNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
