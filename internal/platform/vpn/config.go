package vpn

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ini/ini"
	"golang.org/x/crypto/curve25519"
)

// ErrMalformedConfig is returned when a client configuration cannot be parsed
// or lacks a usable private key.
var ErrMalformedConfig = errors.New("malformed wireguard config")

// Interface is the [Interface] section of a client configuration.
type Interface struct {
	PrivateKey string
	Address    string
	DNS        string
}

// Peer is one [Peer] section of a client configuration.
type Peer struct {
	PublicKey           string
	PresharedKey        string
	Endpoint            string
	AllowedIPs          string
	PersistentKeepalive string
}

// Config is a parsed WireGuard client configuration.
type Config struct {
	Interface Interface
	Peers     []Peer
}

// ParseConfig parses a wg-quick style client configuration.
func ParseConfig(text string) (*Config, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedConfig)
	}

	f, err := ini.LoadSources(ini.LoadOptions{AllowNonUniqueSections: true}, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}

	iface, err := f.GetSection("Interface")
	if err != nil {
		return nil, fmt.Errorf("%w: missing [Interface] section", ErrMalformedConfig)
	}

	cfg := &Config{
		Interface: Interface{
			PrivateKey: iface.Key("PrivateKey").String(),
			Address:    iface.Key("Address").String(),
			DNS:        iface.Key("DNS").String(),
		},
	}
	if _, err := decodeKey(cfg.Interface.PrivateKey); err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrMalformedConfig, err)
	}

	peers, err := f.SectionsByName("Peer")
	if err == nil {
		for _, s := range peers {
			cfg.Peers = append(cfg.Peers, Peer{
				PublicKey:           s.Key("PublicKey").String(),
				PresharedKey:        s.Key("PresharedKey").String(),
				Endpoint:            s.Key("Endpoint").String(),
				AllowedIPs:          s.Key("AllowedIPs").String(),
				PersistentKeepalive: s.Key("PersistentKeepalive").String(),
			})
		}
	}
	return cfg, nil
}

// PublicKey derives the base64 public key from the interface private key.
func (c *Config) PublicKey() (string, error) {
	priv, err := decodeKey(c.Interface.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("%w: private key: %w", ErrMalformedConfig, err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("%w: derive public key: %w", ErrMalformedConfig, err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// String serializes the configuration in wg-quick format.
func (c *Config) String() string {
	f := ini.Empty(ini.LoadOptions{AllowNonUniqueSections: true})

	iface, _ := f.NewSection("Interface")
	setKey(iface, "PrivateKey", c.Interface.PrivateKey)
	setKey(iface, "Address", c.Interface.Address)
	setKey(iface, "DNS", c.Interface.DNS)

	for _, p := range c.Peers {
		s, _ := f.NewSection("Peer")
		setKey(s, "PublicKey", p.PublicKey)
		setKey(s, "PresharedKey", p.PresharedKey)
		setKey(s, "Endpoint", p.Endpoint)
		setKey(s, "AllowedIPs", p.AllowedIPs)
		setKey(s, "PersistentKeepalive", p.PersistentKeepalive)
	}

	var buf bytes.Buffer
	_, _ = f.WriteTo(&buf)
	return buf.String()
}

func setKey(s *ini.Section, name, value string) {
	if value != "" {
		_, _ = s.NewKey(name, value)
	}
}

func decodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("missing")
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != curve25519.ScalarSize {
		return nil, fmt.Errorf("want %d bytes, got %d", curve25519.ScalarSize, len(key))
	}
	return key, nil
}
