package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/netgrove/sftptunnel/internal/client"
	"github.com/netgrove/sftptunnel/internal/profile"
	"github.com/netgrove/sftptunnel/internal/sshx"
	"github.com/netgrove/sftptunnel/internal/tunnel"
)

const usage = `usage: sftptunnel [flags] <command> [args]

commands:
  ls <remote-path>             list a remote directory
  get <remote-path>...         download files into --out
  put <local-path> <remote-path>  upload a file
  rm <remote-path>             remove a remote file
  rmdir <remote-path>          remove a remote directory
  mkdir <remote-path>          create a remote directory (and parents)
  mv <old-path> <new-path>     rename a remote file or directory
  realpath <remote-path>       resolve a remote path
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		profilesPath = pflag.String("profiles", "", "Path to a YAML profiles file")
		profileName  = pflag.String("profile", "", "Profile name to load from --profiles")

		host       = pflag.String("host", "", "SFTP server hostname")
		port       = pflag.Int("port", 0, "SFTP server port (default 22)")
		user       = pflag.String("user", "", "SSH username")
		password   = pflag.String("password", os.Getenv("SFTP_PASSWORD"), "SSH password (or set SFTP_PASSWORD)")
		keyPath    = pflag.String("key", defaultSSHKeyPath(), "SSH key source: 'agent' for SSH agent, path to private key file, or empty to disable")
		passphrase = pflag.String("passphrase", "", "Passphrase for an encrypted private key")
		knownHosts = pflag.String("known-hosts", defaultSSHKnownHostsPath(), "Path to known_hosts file for host key verification, or empty to disable")

		readyTimeout      = pflag.Duration("ready-timeout", 30*time.Second, "Timeout for connecting and the SSH handshake")
		keepalive         = pflag.Duration("keepalive", 0, "Interval between SSH keepalive requests. Zero disables.")
		keepaliveCountMax = pflag.Int("keepalive-count-max", 3, "Consecutive keepalive failures before the connection is dropped")

		proxyURL           = pflag.String("proxy", defaultProxy(), "Proxy URL: socks4|socks5|http|https://[user:pass@]host:port. Empty for a direct connection.")
		proxyTLS           = pflag.Bool("proxy-tls", false, "Wrap the proxy hop in TLS before negotiating")
		proxyTLSVerify     = pflag.Bool("proxy-tls-verify", false, "Verify the proxy's TLS certificate")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for the TCP connect to the proxy")
		negotiationTimeout = pflag.Duration("negotiation-timeout", tunnel.DefaultNegotiationTimeout, "Timeout for proxy protocol negotiation")

		out      = pflag.String("out", ".", "Local directory get downloads into")
		parallel = pflag.Int("parallel", 4, "Maximum concurrent downloads for get")
		verbose  = pflag.Bool("verbose", false, "Enable connection lifecycle logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		return errors.New("missing command")
	}

	opts, err := baseOptions(*profilesPath, *profileName)
	if err != nil {
		return err
	}

	// Flags set on the command line override the profile.
	if pflag.CommandLine.Changed("host") || opts.Host == "" {
		opts.Host = *host
	}
	if pflag.CommandLine.Changed("port") || opts.Port == 0 {
		opts.Port = *port
	}
	if pflag.CommandLine.Changed("user") || opts.Username == "" {
		opts.Username = *user
	}
	if pflag.CommandLine.Changed("password") || opts.Password == "" {
		opts.Password = *password
	}
	if pflag.CommandLine.Changed("key") || opts.PrivateKeyPath == "" {
		opts.PrivateKeyPath = *keyPath
	}
	if pflag.CommandLine.Changed("passphrase") {
		opts.Passphrase = *passphrase
	}
	if pflag.CommandLine.Changed("known-hosts") || opts.KnownHostsPath == "" {
		opts.KnownHostsPath = *knownHosts
	}
	if pflag.CommandLine.Changed("ready-timeout") || opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = *readyTimeout
	}
	if pflag.CommandLine.Changed("keepalive") {
		opts.KeepaliveInterval = *keepalive
	}
	if pflag.CommandLine.Changed("keepalive-count-max") || opts.KeepaliveCountMax == 0 {
		opts.KeepaliveCountMax = *keepaliveCountMax
	}

	if pflag.CommandLine.Changed("proxy") || opts.Proxy == nil {
		opts.Proxy, err = parseProxy(*proxyURL, *proxyTLS, *proxyTLSVerify, *dialTimeout, *negotiationTimeout)
		if err != nil {
			return fmt.Errorf("invalid --proxy: %w", err)
		}
	}

	if *verbose {
		l := logrus.New()
		l.SetLevel(logrus.DebugLevel)
		opts.Logger = l
	}

	c, err := client.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = c.Disconnect() }()

	return dispatch(ctx, c, args, *out, *parallel)
}

// baseOptions returns the options from the selected profile, or zero options
// when no profile is in play.
func baseOptions(profilesPath, profileName string) (client.Options, error) {
	if profileName == "" {
		return client.Options{}, nil
	}
	if profilesPath == "" {
		return client.Options{}, errors.New("--profile requires --profiles")
	}

	f, err := profile.Load(profilesPath)
	if err != nil {
		return client.Options{}, err
	}
	p, err := f.Get(profileName)
	if err != nil {
		return client.Options{}, err
	}
	return p.Options(), nil
}

func dispatch(ctx context.Context, c *client.Client, args []string, outDir string, parallel int) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "ls":
		if len(rest) != 1 {
			return errors.New("ls: expected one remote path")
		}
		return cmdLs(c, rest[0])
	case "get":
		if len(rest) == 0 {
			return errors.New("get: expected at least one remote path")
		}
		return cmdGet(ctx, c, rest, outDir, parallel)
	case "put":
		if len(rest) != 2 {
			return errors.New("put: expected local path and remote path")
		}
		return cmdPut(c, rest[0], rest[1])
	case "rm":
		if len(rest) != 1 {
			return errors.New("rm: expected one remote path")
		}
		return c.Remove(rest[0])
	case "rmdir":
		if len(rest) != 1 {
			return errors.New("rmdir: expected one remote path")
		}
		return c.RemoveDir(rest[0])
	case "mkdir":
		if len(rest) != 1 {
			return errors.New("mkdir: expected one remote path")
		}
		return c.Mkdir(rest[0])
	case "mv":
		if len(rest) != 2 {
			return errors.New("mv: expected old path and new path")
		}
		return c.Rename(rest[0], rest[1])
	case "realpath":
		if len(rest) != 1 {
			return errors.New("realpath: expected one remote path")
		}
		resolved, err := c.RealPath(rest[0])
		if err != nil {
			return err
		}
		fmt.Println(resolved)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLs(c *client.Client, remotePath string) error {
	entries, err := c.List(remotePath)
	if err != nil {
		return err
	}
	for _, fi := range entries {
		fmt.Printf("%s %12d %s %s\n", fi.Mode(), fi.Size(), fi.ModTime().Format(time.RFC3339), fi.Name())
	}
	return nil
}

// cmdGet downloads each remote path into outDir, a few files at a time. The
// SFTP session multiplexes the transfers over the one connection.
func cmdGet(ctx context.Context, c *client.Client, remotePaths []string, outDir string, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for _, remotePath := range remotePaths {
		g.Go(func() error {
			local := filepath.Join(outDir, path.Base(remotePath))
			f, err := os.Create(local)
			if err != nil {
				return fmt.Errorf("get %s: %w", remotePath, err)
			}

			if _, err := c.Download(remotePath, f); err != nil {
				_ = f.Close()
				_ = os.Remove(local)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("get %s: %w", remotePath, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func cmdPut(c *client.Client, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = c.Upload(f, remotePath)
	return err
}

// parseProxy converts a scheme://[user:pass@]host:port URL into a proxy
// config. An empty URL means a direct connection.
func parseProxy(s string, tlsWrap, tlsVerify bool, dialTimeout, negotiationTimeout time.Duration) (*tunnel.Config, error) {
	if s == "" {
		return nil, nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	switch u.Scheme {
	case string(tunnel.TypeSOCKS4), string(tunnel.TypeSOCKS5), string(tunnel.TypeHTTP), string(tunnel.TypeHTTPS):
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing proxy host")
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy port %q", p)
		}
	}
	if port == 0 {
		return nil, errors.New("missing proxy port")
	}

	pass, _ := u.User.Password()
	return &tunnel.Config{
		Enabled:            true,
		Type:               tunnel.Type(u.Scheme),
		Host:               u.Hostname(),
		Port:               port,
		Username:           u.User.Username(),
		Password:           pass,
		TLS:                tlsWrap,
		VerifyTLS:          tlsVerify,
		DialTimeout:        dialTimeout,
		NegotiationTimeout: negotiationTimeout,
	}, nil
}

func defaultProxy() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return ""
}

func defaultSSHKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

func defaultSSHKeyPath() string {
	if sshx.AgentAvailable() {
		return sshx.AgentAuthType
	}
	return ""
}
