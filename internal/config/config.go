// Package config resolves the address, endpoint, and TLS material a
// session connects with. Values come from defaults, an optional TOML
// file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names recognized by FromEnv.
const (
	EnvHost     = "ALERTWIRE_HOST"
	EnvPort     = "ALERTWIRE_PORT"
	EnvEndpoint = "ALERTWIRE_ENDPOINT"
	EnvCertPath = "CERT_PATH"
)

// TLSConfig holds the paths to TLS material. The files themselves are
// opaque to this package; validation happens where they are loaded.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// TLSFromEnv derives TLS paths from the CERT_PATH base directory,
// falling back to ./certificates.
func TLSFromEnv() TLSConfig {
	base := getEnv(EnvCertPath, "certificates")
	return TLSConfig{
		CertFile: filepath.Join(base, "server.pem"),
		KeyFile:  filepath.Join(base, "server-key.pem"),
		CAFile:   filepath.Join(base, "server.pem"),
	}
}

// AddrConfig is the resolved address a session connects to or a server
// listens on. It is a value type: builder methods return derived copies.
type AddrConfig struct {
	Host     string
	Port     int
	Endpoint string
	TLS      TLSConfig
	UseTLS   bool
}

// NewAddrConfig creates a config for the given host and port with the
// root endpoint and TLS enabled from environment-derived paths.
func NewAddrConfig(host string, port int) AddrConfig {
	return AddrConfig{
		Host:     host,
		Port:     port,
		Endpoint: "/",
		TLS:      TLSFromEnv(),
		UseTLS:   true,
	}
}

// WithEndpoint returns a copy with the endpoint path set.
func (c AddrConfig) WithEndpoint(endpoint string) AddrConfig {
	c.Endpoint = endpoint
	return c
}

// WithTLS returns a copy using the given TLS material.
func (c AddrConfig) WithTLS(tls TLSConfig) AddrConfig {
	c.TLS = tls
	c.UseTLS = true
	return c
}

// WithoutTLS returns a copy speaking plain WebSocket.
func (c AddrConfig) WithoutTLS() AddrConfig {
	c.UseTLS = false
	return c
}

// Scheme returns "wss" or "ws" depending on the TLS setting.
func (c AddrConfig) Scheme() string {
	if c.UseTLS {
		return "wss"
	}
	return "ws"
}

// Addr returns the host:port pair.
func (c AddrConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// URL returns the full WebSocket URL.
func (c AddrConfig) URL() string {
	return c.Scheme() + "://" + c.Addr() + c.Endpoint
}

// FromEnv returns a copy with environment overrides applied. Unset
// variables keep the receiver's values. Environment wins over file
// values, so apply it after Load.
func (c AddrConfig) FromEnv() (AddrConfig, error) {
	c.Host = getEnv(EnvHost, c.Host)
	c.Endpoint = getEnv(EnvEndpoint, c.Endpoint)

	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return AddrConfig{}, fmt.Errorf("config: invalid %s %q", EnvPort, raw)
		}
		c.Port = port
	}

	return c, nil
}

// fileConfig maps the optional config.toml keys.
type fileConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Endpoint string `toml:"endpoint"`
	TLS      bool   `toml:"tls"`
	CertFile string `toml:"tls_cert_file"`
	KeyFile  string `toml:"tls_key_file"`
	CAFile   string `toml:"tls_ca_file"`
}

// Load overlays a TOML file onto the config. Keys absent from the file
// keep their current values. Environment overrides should be applied by
// the caller after loading (env wins over file).
func (c AddrConfig) Load(path string) (AddrConfig, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return AddrConfig{}, fmt.Errorf("config: load %s: %w", path, err)
	}

	if meta.IsDefined("host") {
		c.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		if raw.Port < 1 || raw.Port > 65535 {
			return AddrConfig{}, fmt.Errorf("config: invalid port %d in %s", raw.Port, path)
		}
		c.Port = raw.Port
	}
	if meta.IsDefined("endpoint") {
		c.Endpoint = strings.TrimSpace(raw.Endpoint)
	}
	if meta.IsDefined("tls") {
		c.UseTLS = raw.TLS
	}
	if meta.IsDefined("tls_cert_file") {
		c.TLS.CertFile = raw.CertFile
	}
	if meta.IsDefined("tls_key_file") {
		c.TLS.KeyFile = raw.KeyFile
	}
	if meta.IsDefined("tls_ca_file") {
		c.TLS.CAFile = raw.CAFile
	}

	return c, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
