package client

// Package client implements the SFTP client facade and owns the connection
// lifecycle.
//
// Connect produces the transport (a direct TCP connection or a proxy tunnel
// from internal/tunnel), runs the SSH handshake and SFTP session over it, and
// keeps the single transport slot the teardown paths operate on. A failed
// Connect leaves the client exactly as if it had never been called;
// Disconnect is idempotent and always destroys the transport even when ending
// the session fails.
//
// File operations are thin delegations to the SFTP session.
