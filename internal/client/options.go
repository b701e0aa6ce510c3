package client

import (
	"io"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netgrove/sftptunnel/internal/tunnel"
)

// DefaultPort is the SFTP server port used when Options.Port is zero.
const DefaultPort = 22

// Options configures a Client.
type Options struct {
	// Host and Port address the SFTP server. Port defaults to 22.
	Host string
	Port int

	// Username authenticates the SSH session, together with Password
	// and/or the key material below. At least one of Password and
	// PrivateKeyPath is required.
	Username string
	Password string

	// PrivateKeyPath selects key authentication: a path to an OpenSSH
	// private key file, or "agent" for the SSH agent. Passphrase decrypts
	// an encrypted key file.
	PrivateKeyPath string
	Passphrase     string

	// KnownHostsPath names the known_hosts file used for host key
	// verification (trust on first use). Empty disables checking.
	KnownHostsPath string

	// ReadyTimeout bounds the connect phase: the transport dial (direct or
	// through the proxy) and the SSH handshake.
	ReadyTimeout time.Duration

	// KeepaliveInterval enables periodic SSH keepalive requests when
	// positive. After KeepaliveCountMax consecutive failures the transport
	// is closed; CountMax defaults to 3.
	KeepaliveInterval time.Duration
	KeepaliveCountMax int

	// Proxy, when non-nil with Enabled set, routes the connection through
	// a SOCKS4/SOCKS5/HTTP/HTTPS proxy.
	Proxy *tunnel.Config

	// Logger receives structured lifecycle diagnostics. Nil discards them.
	Logger logrus.FieldLogger
}

// addr returns the destination as host:port, applying the default port.
func (o *Options) addr() string {
	port := o.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(o.Host, strconv.Itoa(port))
}

// proxied reports whether connections go through a proxy. A nil or disabled
// proxy config means a direct connection; none of its other fields are
// consulted.
func (o *Options) proxied() bool {
	return o.Proxy != nil && o.Proxy.Enabled
}

func (o *Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
