package tunnel

// Package tunnel builds the transport connection an SFTP session runs over
// when a proxy separates the client from the server.
//
// It supports HTTP and HTTPS proxies via the CONNECT method, and SOCKS4 and
// SOCKS5 proxies via the socks client library, optionally negotiating over a
// TLS-wrapped hop to the proxy. Dial returns a single connected net.Conn that
// the SSH layer uses as a substitute transport; past the handshake the tunnel
// is protocol-agnostic passthrough.
