package sshx

// Package sshx provides the SSH transport layer under the SFTP client.
//
// It establishes an SSH client connection over an arbitrary net.Conn (a
// direct TCP connection or a proxy tunnel) and handles the surrounding
// concerns: authentication material (password, private key files, SSH agent),
// host key verification against a known_hosts file with trust-on-first-use,
// and handshake deadlines.
//
// The package also contains a minimal in-process SSH server that serves the
// "sftp" subsystem, used by integration tests.
