package sshx

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

func TestNewServerValidation(t *testing.T) {
	t.Parallel()

	hostKey := mustGenerateKey(t)

	tests := []struct {
		name    string
		config  ServerConfig
		wantErr string
	}{
		{
			name:    "missing auth callback",
			config:  ServerConfig{HostKeys: []ssh.Signer{hostKey}},
			wantErr: "at least one auth callback required",
		},
		{
			name:    "missing host key",
			config:  ServerConfig{PasswordCallback: SimplePasswordAuth("u", "p")},
			wantErr: "at least one host key required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewServer("127.0.0.1:0", tt.config)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerServesSFTP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, err := NewServer("127.0.0.1:0", ServerConfig{
		HostKeys:         []ssh.Signer{mustGenerateKey(t)},
		PasswordCallback: SimplePasswordAuth("user", "pass"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()
	go func() { _ = srv.Serve(ctx) }()

	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewClient(conn, ClientConfig{
		Username:         "user",
		Password:         "pass",
		HostKeyCallback:  ssh.InsecureIgnoreHostKey(), //nolint:gosec // Test server has a random host key.
		HandshakeTimeout: 2 * time.Second,
	}, srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Close()

	path := filepath.Join(t.TempDir(), "hello.txt")

	f, err := sc.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("hello sftp")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := sc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello sftp" {
		t.Fatalf("expected %q got %q", "hello sftp", string(got))
	}
}

func TestNewClientHandshakeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		// Not an SSH server: send garbage and close.
		_, _ = c.Write([]byte("definitely not ssh\r\n"))
		_ = c.Close()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewClient(conn, ClientConfig{
		Username:         "user",
		Password:         "pass",
		HostKeyCallback:  ssh.InsecureIgnoreHostKey(), //nolint:gosec // Test-only.
		HandshakeTimeout: 2 * time.Second,
	}, ln.Addr().String())
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if !strings.Contains(err.Error(), "ssh handshake") {
		t.Fatalf("expected handshake error, got: %v", err)
	}
}
