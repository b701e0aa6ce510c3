// Package profile loads named connection profiles from a YAML file.
//
// A profiles file bundles the server address, credentials, and proxy settings
// under a name so the command line only has to say which profile to use:
//
//	profiles:
//	  staging:
//	    host: sftp.staging.example.com
//	    username: deploy
//	    private_key: ~/.ssh/id_ed25519
//	    proxy:
//	      enabled: true
//	      type: socks5
//	      host: proxy.internal
//	      port: 1080
package profile

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netgrove/sftptunnel/internal/client"
	"github.com/netgrove/sftptunnel/internal/tunnel"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Proxy mirrors tunnel.Config in YAML form.
type Proxy struct {
	Enabled            bool     `yaml:"enabled"`
	Type               string   `yaml:"type"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	TLS                bool     `yaml:"tls"`
	VerifyTLS          bool     `yaml:"verify_tls"`
	DialTimeout        Duration `yaml:"dial_timeout"`
	NegotiationTimeout Duration `yaml:"negotiation_timeout"`
}

// Profile is one named connection.
type Profile struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	Username          string   `yaml:"username"`
	Password          string   `yaml:"password"`
	PrivateKey        string   `yaml:"private_key"`
	Passphrase        string   `yaml:"passphrase"`
	KnownHosts        string   `yaml:"known_hosts"`
	ReadyTimeout      Duration `yaml:"ready_timeout"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
	KeepaliveCountMax int      `yaml:"keepalive_count_max"`
	Proxy             *Proxy   `yaml:"proxy"`
}

// File is the top level of a profiles file.
type File struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Load reads and parses the profiles file at path. Unknown keys are an
// error so typos in a profile do not silently fall back to defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	return &f, nil
}

// Get returns the named profile.
func (f *File) Get(name string) (Profile, error) {
	p, ok := f.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

// Options converts the profile into client options.
func (p Profile) Options() client.Options {
	opts := client.Options{
		Host:              p.Host,
		Port:              p.Port,
		Username:          p.Username,
		Password:          p.Password,
		PrivateKeyPath:    p.PrivateKey,
		Passphrase:        p.Passphrase,
		KnownHostsPath:    p.KnownHosts,
		ReadyTimeout:      time.Duration(p.ReadyTimeout),
		KeepaliveInterval: time.Duration(p.KeepaliveInterval),
		KeepaliveCountMax: p.KeepaliveCountMax,
	}
	if p.Proxy != nil {
		opts.Proxy = &tunnel.Config{
			Enabled:            p.Proxy.Enabled,
			Type:               tunnel.Type(p.Proxy.Type),
			Host:               p.Proxy.Host,
			Port:               p.Proxy.Port,
			Username:           p.Proxy.Username,
			Password:           p.Proxy.Password,
			TLS:                p.Proxy.TLS,
			VerifyTLS:          p.Proxy.VerifyTLS,
			DialTimeout:        time.Duration(p.Proxy.DialTimeout),
			NegotiationTimeout: time.Duration(p.Proxy.NegotiationTimeout),
		}
	}
	return opts
}
