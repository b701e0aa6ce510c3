package tunnel

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"time"
)

// dialHTTPConnect tunnels to destination with an HTTP CONNECT request. For
// TypeHTTPS the request travels over a TLS session to the proxy.
//
// The response header is read with readHeaderBlock rather than a full HTTP
// parser: only the status line matters, and bytes the proxy delivers past the
// header terminator already belong to the tunneled stream.
func dialHTTPConnect(ctx context.Context, cfg Config, destination string) (net.Conn, error) {
	conn, err := dialProxy(ctx, cfg, cfg.Type == TypeHTTPS)
	if err != nil {
		return nil, err
	}

	_ = conn.SetDeadline(time.Now().Add(cfg.negotiationTimeout()))

	if _, err := conn.Write(connectRequest(cfg, destination)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy %s: writing CONNECT: %w", cfg.Addr(), err)
	}

	header, extra, err := readHeaderBlock(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy %s: %w", cfg.Addr(), err)
	}

	if err := checkConnectStatus(header); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("proxy %s: %w", cfg.Addr(), err)
	}

	_ = conn.SetDeadline(time.Time{})
	return newPrefixedConn(conn, extra), nil
}

// connectRequest renders the CONNECT request block. The framing is exact:
// request line, Host header echoing the destination, Proxy-Authorization
// (Basic) when both credentials are present, Connection: keep-alive, blank
// line, CRLF line endings throughout.
func connectRequest(cfg Config, destination string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "CONNECT %s HTTP/1.1\r\n", destination)
	fmt.Fprintf(&b, "Host: %s\r\n", destination)
	if cfg.Username != "" && cfg.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		fmt.Fprintf(&b, "Proxy-Authorization: Basic %s\r\n", creds)
	}
	b.WriteString("Connection: keep-alive\r\n\r\n")
	return []byte(b.String())
}

// checkConnectStatus parses only the status line of the response header block
// and accepts any HTTP version as long as the status code is 200.
func checkConnectStatus(header []byte) error {
	line, _, _ := strings.Cut(string(header), "\r\n")
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(strings.ToUpper(fields[0]), "HTTP/") || fields[1] != "200" {
		return &RejectedError{StatusLine: line}
	}
	return nil
}
