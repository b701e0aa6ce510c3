package tunnel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
)

var headerEnd = []byte("\r\n\r\n")

// readHeaderBlock reads from conn until the \r\n\r\n terminator, accumulating
// partial reads. Proxies may split the CONNECT response across several
// segments, or deliver the first tunneled bytes in the same segment as the
// header tail.
//
// It returns the header block (terminator included) and any bytes received
// past it. The extra bytes belong to the tunneled stream and must be replayed
// to the caller, never discarded.
func readHeaderBlock(conn net.Conn) (header, extra []byte, err error) {
	var block []byte
	buf := make([]byte, 4096)
	for {
		n, rerr := conn.Read(buf)
		if n > 0 {
			// Rescan from just before the previous tail in case the
			// terminator straddles two reads.
			start := len(block) - len(headerEnd) + 1
			if start < 0 {
				start = 0
			}
			block = append(block, buf[:n]...)
			if i := bytes.Index(block[start:], headerEnd); i >= 0 {
				end := start + i + len(headerEnd)
				return block[:end], block[end:], nil
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil, nil, ErrResponseIncomplete
			}
			return nil, nil, fmt.Errorf("reading CONNECT response: %w", rerr)
		}
	}
}

// prefixedConn replays bytes received past the CONNECT header terminator
// before handing reads back to the underlying connection.
type prefixedConn struct {
	net.Conn
	rest []byte
}

func (c *prefixedConn) Read(p []byte) (int, error) {
	if len(c.rest) > 0 {
		n := copy(p, c.rest)
		c.rest = c.rest[n:]
		return n, nil
	}
	return c.Conn.Read(p)
}

// newPrefixedConn wraps conn so extra is read first. If extra is empty, conn
// is returned as-is.
func newPrefixedConn(conn net.Conn, extra []byte) net.Conn {
	if len(extra) == 0 {
		return conn
	}
	return &prefixedConn{Conn: conn, rest: extra}
}
