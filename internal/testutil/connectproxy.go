package testutil

import (
	"bufio"
	"io"
	"net"
	"net/http"
)

// ServeConnectProxy handles a single HTTP CONNECT exchange on c: read the
// request, dial the requested target, answer 200, then copy bytes both ways
// until either side closes. It is the in-process forward proxy for tunnel and
// client tests.
func ServeConnectProxy(c net.Conn) {
	br := bufio.NewReader(c)
	req, err := http.ReadRequest(br)
	if err != nil || req.Method != http.MethodConnect {
		return
	}
	_ = req.Body.Close()

	dst, err := net.Dial("tcp", req.Host)
	if err != nil {
		_, _ = io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
		return
	}
	defer dst.Close()

	_, _ = io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n")

	go func() {
		_, _ = io.Copy(dst, br)
		_ = dst.Close()
	}()
	_, _ = io.Copy(c, dst)
}
