package tunnel

import (
	"errors"
	"fmt"
)

// ErrResponseIncomplete indicates the proxy closed the connection before a
// full CONNECT response header block was received.
var ErrResponseIncomplete = errors.New("proxy closed connection before completing CONNECT response")

// UnsupportedTypeError reports a proxy type outside the supported set. It is
// returned before any connection to the proxy is attempted.
type UnsupportedTypeError struct {
	Type Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported proxy type %q", string(e.Type))
}

// RejectedError reports a CONNECT response whose status line was malformed or
// carried a non-200 code. The proxy's literal status line is preserved for
// diagnostics.
type RejectedError struct {
	StatusLine string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("proxy rejected CONNECT: %q", e.StatusLine)
}
