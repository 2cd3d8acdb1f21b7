package transcription

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"
)

// Conn is a connected byte stream owned by one upload session.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Dialer opens connections to the transcription endpoint.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// TLSDialer opens TLS connections. Certificate verification is controlled by
// the caller through InsecureSkipVerify.
type TLSDialer struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Dial connects to address (host:port) and completes the TLS handshake
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	td := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: d.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		},
	}

	conn, err := td.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NetDialer opens plain TCP connections, for http:// endpoints.
type NetDialer struct {
	Timeout time.Duration
}

// Dial connects to address (host:port)
func (d *NetDialer) Dial(ctx context.Context, address string) (Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewDialer picks a dialer for the endpoint scheme
func NewDialer(config Config) (Dialer, error) {
	target, err := parseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}
	if target.secure {
		return &TLSDialer{Timeout: config.ConnectTimeout, InsecureSkipVerify: config.InsecureSkipVerify}, nil
	}
	return &NetDialer{Timeout: config.ConnectTimeout}, nil
}

// endpoint is the parsed transcription URL.
type endpoint struct {
	host    string // Host header value
	address string // host:port to dial
	path    string // request target
	secure  bool
}

func parseEndpoint(raw string) (endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	var port string
	var secure bool
	switch u.Scheme {
	case "https":
		port, secure = "443", true
	case "http":
		port = "80"
	default:
		return endpoint{}, fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return endpoint{}, fmt.Errorf("endpoint %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		port = p
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return endpoint{
		host:    u.Host,
		address: net.JoinHostPort(u.Hostname(), port),
		path:    path,
		secure:  secure,
	}, nil
}
