package client

import (
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultKeepaliveCountMax = 3

// keepalive sends periodic keepalive requests on the SSH transport and
// force-closes it after KeepaliveCountMax consecutive failures, so in-flight
// SFTP operations fail promptly instead of hanging on a dead tunnel.
func (c *Client) keepalive(conn *ssh.Client, stop <-chan struct{}) {
	countMax := c.opts.KeepaliveCountMax
	if countMax <= 0 {
		countMax = defaultKeepaliveCountMax
	}

	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// OpenSSH convention: servers reply (with failure) to this
			// request name, which is all we need to probe liveness.
			if _, _, err := conn.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				failures++
				c.log.WithField("failures", failures).Debug("keepalive failed")
				if failures >= countMax {
					c.log.Warn("keepalive limit reached, closing transport")
					_ = conn.Close()
					return
				}
				continue
			}
			failures = 0
		}
	}
}
