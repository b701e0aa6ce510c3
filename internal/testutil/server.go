package testutil

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"testing"
)

// StartSingleAcceptServer starts a listener that hands its first accepted
// connection to handler and returns the listener plus a wait func that closes
// the listener and blocks until handler returns.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	return serveSingleAccept(ln, handler)
}

// StartSingleAcceptTLSServer is StartSingleAcceptServer behind a TLS listener
// using a fresh self-signed certificate. The handler sees the decrypted
// stream; the TLS handshake happens on the handler's first read.
func StartSingleAcceptTLSServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	return serveSingleAccept(tls.NewListener(ln, SelfSignedTLSConfig(t)), handler)
}

func serveSingleAccept(ln net.Listener, handler func(net.Conn)) (net.Listener, func()) {
	var wg sync.WaitGroup
	wg.Go(func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	})

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}

	return ln, wait
}
