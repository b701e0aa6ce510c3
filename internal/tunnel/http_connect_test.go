package tunnel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/netgrove/sftptunnel/internal/testutil"
)

func proxyConfigFor(t *testing.T, ln net.Listener, typ Type) Config {
	t.Helper()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return Config{
		Enabled:            true,
		Type:               typ,
		Host:               host,
		Port:               port,
		DialTimeout:        2 * time.Second,
		NegotiationTimeout: 2 * time.Second,
	}
}

// readRequestHead accumulates the CONNECT request until its blank line.
func readRequestHead(c net.Conn) ([]byte, error) {
	var head []byte
	buf := make([]byte, 1024)
	for !bytes.Contains(head, []byte("\r\n\r\n")) {
		n, err := c.Read(buf)
		if err != nil {
			return nil, err
		}
		head = append(head, buf[:n]...)
	}
	return head, nil
}

func TestConnectRequestFraming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user string
		pass string
		want string
	}{
		{
			name: "with credentials",
			user: "user",
			pass: "pass",
			want: "CONNECT example.org:22 HTTP/1.1\r\n" +
				"Host: example.org:22\r\n" +
				"Proxy-Authorization: Basic dXNlcjpwYXNz\r\n" +
				"Connection: keep-alive\r\n\r\n",
		},
		{
			name: "without credentials",
			want: "CONNECT example.org:22 HTTP/1.1\r\n" +
				"Host: example.org:22\r\n" +
				"Connection: keep-alive\r\n\r\n",
		},
		{
			name: "username alone is not sent",
			user: "user",
			want: "CONNECT example.org:22 HTTP/1.1\r\n" +
				"Host: example.org:22\r\n" +
				"Connection: keep-alive\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Type: TypeHTTP, Host: "proxy.example", Port: 8080, Username: tt.user, Password: tt.pass}
			if got := string(connectRequest(cfg, "example.org:22")); got != tt.want {
				t.Fatalf("framing mismatch:\nwant %q\ngot  %q", tt.want, got)
			}
		})
	}
}

func TestCheckConnectStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		wantLine string // empty means success expected
	}{
		{name: "200 established", header: "HTTP/1.1 200 Connection Established\r\n\r\n"},
		{name: "200 no reason", header: "HTTP/1.1 200\r\n\r\n"},
		{name: "lowercase version", header: "http/1.0 200 OK\r\n\r\n"},
		{
			name:     "407 rejected",
			header:   "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n",
			wantLine: "HTTP/1.1 407 Proxy Authentication Required",
		},
		{name: "502 rejected", header: "HTTP/1.1 502 Bad Gateway\r\n\r\n", wantLine: "HTTP/1.1 502 Bad Gateway"},
		{name: "malformed", header: "SSH-2.0-OpenSSH_9.6\r\n\r\n", wantLine: "SSH-2.0-OpenSSH_9.6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkConnectStatus([]byte(tt.header))
			if tt.wantLine == "" {
				if err != nil {
					t.Fatal(err)
				}
				return
			}

			var rej *RejectedError
			if !errors.As(err, &rej) {
				t.Fatalf("expected *RejectedError, got: %v", err)
			}
			if rej.StatusLine != tt.wantLine {
				t.Fatalf("expected status line %q, got %q", tt.wantLine, rej.StatusLine)
			}
		})
	}
}

func TestDialHTTPConnectSuccess(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		testutil.ServeConnectProxy(c)
	})

	conn, err := Dial(ctx, proxyConfigFor(t, upLn, TypeHTTP), echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello"))
	waitUp()
}

func TestDialHTTPConnectSendsExactRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var got []byte
	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		head, err := readRequestHead(c)
		if err != nil {
			return
		}
		got = head
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")
	})

	cfg := proxyConfigFor(t, upLn, TypeHTTP)
	cfg.Username = "user"
	cfg.Password = "pass"

	conn, err := Dial(ctx, cfg, "example.org:22")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitUp()

	want := "CONNECT example.org:22 HTTP/1.1\r\n" +
		"Host: example.org:22\r\n" +
		"Proxy-Authorization: Basic dXNlcjpwYXNz\r\n" +
		"Connection: keep-alive\r\n\r\n"
	if string(got) != want {
		t.Fatalf("wire framing mismatch:\nwant %q\ngot  %q", want, string(got))
	}
}

func TestDialHTTPConnectRejected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if _, err := readRequestHead(c); err != nil {
			return
		}
		_, _ = io.WriteString(c, "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n")

		// The failed dial must destroy the socket; observe the close.
		buf := make([]byte, 1)
		if _, err := c.Read(buf); err == nil {
			t.Error("expected client to close the connection after rejection")
		}
	})

	_, err := Dial(ctx, proxyConfigFor(t, upLn, TypeHTTP), "example.org:22")
	waitUp()

	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectedError, got: %v", err)
	}
	if rej.StatusLine != "HTTP/1.1 407 Proxy Authentication Required" {
		t.Fatalf("unexpected status line: %q", rej.StatusLine)
	}
}

func TestDialHTTPConnectIncompleteResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if _, err := readRequestHead(c); err != nil {
			return
		}
		// Close mid-header, before the blank line.
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Estab")
	})

	_, err := Dial(ctx, proxyConfigFor(t, upLn, TypeHTTP), "example.org:22")
	waitUp()

	if !errors.Is(err, ErrResponseIncomplete) {
		t.Fatalf("expected ErrResponseIncomplete, got: %v", err)
	}
}

func TestDialHTTPConnectPreservesPipelinedBytes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		if _, err := readRequestHead(c); err != nil {
			return
		}
		// Response header and the first tunneled bytes in one segment.
		_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\nhello")
	})

	conn, err := Dial(ctx, proxyConfigFor(t, upLn, TypeHTTP), "example.org:22")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Fatalf("expected pipelined bytes %q, got %q", "hello", string(buf))
	}
	waitUp()
}

func TestDialHTTPSConnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	upLn, waitUp := testutil.StartSingleAcceptTLSServer(t, ctx, func(c net.Conn) {
		testutil.ServeConnectProxy(c)
	})

	// Default permissive verification accepts the self-signed proxy cert.
	conn, err := Dial(ctx, proxyConfigFor(t, upLn, TypeHTTPS), echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello"))
	waitUp()
}

func TestDialHTTPSConnectStrictVerification(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	upLn, waitUp := testutil.StartSingleAcceptTLSServer(t, ctx, func(c net.Conn) {
		testutil.ServeConnectProxy(c)
	})

	cfg := proxyConfigFor(t, upLn, TypeHTTPS)
	cfg.VerifyTLS = true

	_, err := Dial(ctx, cfg, "example.org:22")
	waitUp()

	if err == nil {
		t.Fatal("expected certificate verification to fail against a self-signed cert")
	}
}
