package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/netgrove/sftptunnel/internal/sshx"
	"github.com/netgrove/sftptunnel/internal/tunnel"
)

// Client is an SFTP client that connects directly or through a proxy.
//
// A client holds at most one connection at a time: Connect fills the single
// transport slot, Disconnect (or a failed Connect) empties it. Methods are
// safe for concurrent use, but only one Connect or Disconnect runs at a time.
type Client struct {
	opts Options
	log  logrus.FieldLogger

	mu sync.Mutex
	// conn is the transport slot: the proxy tunnel or direct TCP
	// connection the session runs over. nil when idle.
	conn   net.Conn
	ssh    *ssh.Client
	sftp   *sftp.Client
	kaStop chan struct{}
}

// New validates opts and returns an unconnected Client.
func New(opts Options) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("sftp client: missing host")
	}
	if opts.Username == "" {
		return nil, errors.New("sftp client: missing username")
	}
	if opts.Password == "" && opts.PrivateKeyPath == "" {
		return nil, errors.New("sftp client: missing password or key")
	}

	return &Client{
		opts: opts,
		log:  opts.logger().WithField("host", opts.addr()),
	}, nil
}

// Connect establishes the transport (directly or through the configured
// proxy), performs the SSH handshake, and opens the SFTP session.
//
// Auth material and the proxy type are validated before any socket is
// opened. On failure at any later stage the partially-built transport is
// destroyed and the client is left exactly as if Connect had never been
// called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		return errors.New("sftp client: already connected")
	}

	addr := c.opts.addr()

	signers, err := sshx.LoadSigners(c.opts.PrivateKeyPath, c.opts.Passphrase)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	hostKeyCallback, err := sshx.NewHostKeyCallback(c.opts.KnownHostsPath)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	conn, err := c.dialTransport(ctx, addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	// Fill the slot before the session handshake so a failure past this
	// point still has something to tear down.
	c.conn = conn

	sshClient, err := sshx.NewClient(conn, sshx.ClientConfig{
		Username:         c.opts.Username,
		Password:         c.opts.Password,
		Signers:          signers,
		HostKeyCallback:  hostKeyCallback,
		HandshakeTimeout: c.opts.ReadyTimeout,
	}, addr)
	if err != nil {
		c.teardownLocked()
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	c.ssh = sshClient

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		c.teardownLocked()
		return fmt.Errorf("connect %s: sftp subsystem: %w", addr, err)
	}
	c.sftp = sftpClient

	if c.opts.KeepaliveInterval > 0 {
		c.kaStop = make(chan struct{})
		go c.keepalive(sshClient, c.kaStop)
	}

	c.log.WithField("proxied", c.opts.proxied()).Info("connected")
	return nil
}

// Disconnect ends the SFTP session and destroys the transport.
//
// Safe to call before any Connect and repeatedly afterwards. The transport is
// destroyed even when ending the session fails; only the session-end error is
// reported, cleanup errors are swallowed since the remote end may already
// have closed its side.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp == nil && c.conn == nil {
		return nil
	}

	var err error
	if c.sftp != nil {
		err = c.sftp.Close()
		c.sftp = nil
	}
	c.teardownLocked()

	c.log.Info("disconnected")
	return err
}

// dialTransport produces the raw byte stream the SSH session runs over.
func (c *Client) dialTransport(ctx context.Context, addr string) (net.Conn, error) {
	if c.opts.proxied() {
		c.log.WithFields(logrus.Fields{
			"proxy": c.opts.Proxy.Addr(),
			"type":  string(c.opts.Proxy.Type),
		}).Debug("building proxy tunnel")
		return tunnel.Dial(ctx, *c.opts.Proxy, addr)
	}

	d := net.Dialer{Timeout: c.opts.ReadyTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// teardownLocked force-closes the session and transport and clears the slot.
// Close errors are swallowed; the underlying conn may already be closed by
// the SSH layer or the remote end, and closing twice is harmless.
func (c *Client) teardownLocked() {
	if c.kaStop != nil {
		close(c.kaStop)
		c.kaStop = nil
	}
	if c.sftp != nil {
		_ = c.sftp.Close()
		c.sftp = nil
	}
	if c.ssh != nil {
		_ = c.ssh.Close()
		c.ssh = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
