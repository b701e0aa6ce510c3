package tunnel

import (
	"net"
	"strconv"
	"time"
)

// Type identifies the protocol spoken to the proxy server.
type Type string

// Supported proxy types.
const (
	TypeSOCKS4 Type = "socks4"
	TypeSOCKS5 Type = "socks5"
	TypeHTTP   Type = "http"
	TypeHTTPS  Type = "https"
)

// DefaultNegotiationTimeout bounds proxy handshakes when
// Config.NegotiationTimeout is unset.
const DefaultNegotiationTimeout = 20 * time.Second

// Config describes the proxy hop between the client and the SFTP server.
//
// The zero value (Enabled false) disables proxying entirely.
type Config struct {
	// Enabled gates all proxy logic. When false the caller connects to the
	// destination directly and no other field is consulted.
	Enabled bool

	// Type selects the proxy protocol: socks4, socks5, http, or https.
	Type Type

	// Host and Port address the proxy itself.
	Host string
	Port int

	// Username and Password are optional proxy credentials (SOCKS
	// authentication or HTTP Basic auth).
	Username string
	Password string

	// TLS wraps the TCP connection to a SOCKS proxy in TLS before the SOCKS
	// handshake runs over it. Type https implies a TLS hop on its own, so
	// TLS is ignored for http/https.
	TLS bool

	// VerifyTLS enables certificate verification on the TLS hop to the
	// proxy. It defaults to off: proxies commonly present self-signed or
	// internal-CA certificates, and the hop only carries an SSH stream that
	// authenticates the far end itself.
	VerifyTLS bool

	// NegotiationTimeout bounds the proxy handshake: the TLS handshake to
	// the proxy, the CONNECT response read, and the SOCKS negotiation.
	// Zero means DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	// DialTimeout bounds the TCP connect to the proxy. Zero means no limit
	// beyond the caller's context.
	DialTimeout time.Duration
}

// Addr returns the proxy endpoint as host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) negotiationTimeout() time.Duration {
	if c.NegotiationTimeout > 0 {
		return c.NegotiationTimeout
	}
	return DefaultNegotiationTimeout
}
