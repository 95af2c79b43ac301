//go:build linux

package ouroboros

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the server's runtime configuration: everything NewServer needs
// to bring up the ring and the listener. Loaded from an optional YAML
// file and then overridden field-by-field by CLI flags — flags always
// win.
type Config struct {
	Addr        string `yaml:"addr"`
	RingEntries uint32 `yaml:"ringEntries"`
	BufferSize  int    `yaml:"bufferSize"`
	Backlog     int    `yaml:"backlog"`
	LogLevel    string `yaml:"logLevel"`
}

// DefaultConfig returns the configuration used when no file or flags
// override it.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		RingEntries: DefaultEntries,
		BufferSize:  4096,
		Backlog:     0,
		LogLevel:    "info",
	}
}

// LoadConfig reads and parses a YAML config file at path, starting from
// DefaultConfig and overwriting only the fields present in the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("ouroboros: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("ouroboros: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a Config that would fail or misbehave at Start:
// an unparseable address, a zero ring size, or an unrecognized log level.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("ouroboros: addr must not be empty")
	}
	if _, _, err := c.parseAddr(); err != nil {
		return fmt.Errorf("ouroboros: invalid addr %q: %w", c.Addr, err)
	}
	if c.RingEntries == 0 {
		return fmt.Errorf("ouroboros: ringEntries must be > 0")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("ouroboros: bufferSize must be > 0")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("ouroboros: unrecognized logLevel %q", c.LogLevel)
	}
	return nil
}

// parseAddr resolves c.Addr into the IPv4 address and port NewListener
// expects. A host-less address such as ":8080" binds INADDR_ANY.
func (c *Config) parseAddr() (ip [4]byte, port uint16, err error) {
	host, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return ip, 0, err
	}

	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return ip, 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	port = uint16(p)

	if host == "" {
		return ip, port, nil
	}
	parsed := net.ParseIP(host)
	if parsed == nil {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return ip, 0, fmt.Errorf("resolve host %q: %w", host, err)
		}
		parsed = resolved.IP
	}
	v4 := parsed.To4()
	if v4 == nil {
		return ip, 0, fmt.Errorf("host %q is not an IPv4 address", host)
	}
	copy(ip[:], v4)
	return ip, port, nil
}
