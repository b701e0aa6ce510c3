package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"git.tcp.direct/kayos/socks"
)

// dialSOCKS tunnels to destination through a SOCKS4 or SOCKS5 proxy. The
// handshake itself is delegated to the socks client; this function only
// decides which transport it negotiates over.
//
// With cfg.TLS set, the TCP connection to the proxy is wrapped in TLS first
// and the SOCKS handshake bytes travel inside the TLS stream. dialProxy
// completes the TLS handshake before the first negotiation byte is written.
func dialSOCKS(ctx context.Context, cfg Config, destination string) (net.Conn, error) {
	if !cfg.TLS {
		dial := socks.Dial(socksURI(cfg, cfg.negotiationTimeout()))
		conn, err := dial("tcp", destination)
		if err != nil {
			return nil, fmt.Errorf("proxy %s: socks negotiation: %w", cfg.Addr(), err)
		}
		_ = conn.SetDeadline(time.Time{})
		return conn, nil
	}

	transport, err := dialProxy(ctx, cfg, true)
	if err != nil {
		return nil, err
	}

	// No timeout in the URI here: the deadline is managed on the TLS conn
	// directly so it can be cleared once negotiation finishes.
	_ = transport.SetDeadline(time.Now().Add(cfg.negotiationTimeout()))
	dial := socks.DialWithConn(socksURI(cfg, 0), transport)
	conn, err := dial("tcp", destination)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("proxy %s: socks negotiation: %w", cfg.Addr(), err)
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, nil
}

// socksURI renders cfg as the proxy URI the socks client consumes:
// socks4|socks5://[user:pass@]host:port[?timeout=20s].
func socksURI(cfg Config, timeout time.Duration) string {
	u := url.URL{
		Scheme: string(cfg.Type),
		Host:   cfg.Addr(),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	if timeout > 0 {
		u.RawQuery = "timeout=" + timeout.String()
	}
	return u.String()
}
