package client

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
)

// ErrNotConnected is returned by file operations before Connect or after
// Disconnect.
var ErrNotConnected = errors.New("sftp client: not connected")

func (c *Client) session() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp == nil {
		return nil, ErrNotConnected
	}
	return c.sftp, nil
}

// List returns the directory entries at path.
func (c *Client) List(path string) ([]os.FileInfo, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}
	infos, err := s.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return infos, nil
}

// Stat returns file information for path.
func (c *Client) Stat(path string) (os.FileInfo, error) {
	s, err := c.session()
	if err != nil {
		return nil, err
	}
	info, err := s.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

// RealPath resolves path to a canonical absolute path on the server.
func (c *Client) RealPath(path string) (string, error) {
	s, err := c.session()
	if err != nil {
		return "", err
	}
	resolved, err := s.RealPath(path)
	if err != nil {
		return "", fmt.Errorf("realpath %s: %w", path, err)
	}
	return resolved, nil
}

// Download copies the remote file at path into w and returns the number of
// bytes written.
func (c *Client) Download(path string, w io.Writer) (int64, error) {
	s, err := c.session()
	if err != nil {
		return 0, err
	}
	f, err := s.Open(path)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", path, err)
	}
	return n, nil
}

// Upload streams r into the remote file at path, creating or truncating it,
// and returns the number of bytes written.
func (c *Client) Upload(r io.Reader, path string) (int64, error) {
	s, err := c.session()
	if err != nil {
		return 0, err
	}
	f, err := s.Create(path)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", path, err)
	}

	n, err := f.ReadFrom(r)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("upload %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("upload %s: %w", path, err)
	}
	return n, nil
}

// Mkdir creates the directory at path, including missing parents.
func (c *Client) Mkdir(path string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	if err := s.MkdirAll(path); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at path.
func (c *Client) Remove(path string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	if err := s.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// RemoveDir deletes the empty directory at path.
func (c *Client) RemoveDir(path string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	if err := s.RemoveDirectory(path); err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	return nil
}

// Rename moves the file or directory at oldPath to newPath.
func (c *Client) Rename(oldPath, newPath string) error {
	s, err := c.session()
	if err != nil {
		return err
	}
	if err := s.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}
