// Package config resolves the host/port/path settings shared by every
// shelf command: explicit flag beats environment variable beats
// built-in default.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/shelfdb/shelf/internal/protocol"
)

// Server holds the resolved settings for `shelf serve` / `shelf node`.
type Server struct {
	Host         string
	Port         int
	InternalPort int
	ConfigPath   string
	Stateless    bool
}

// Resolve layers flags (non-zero-value wins) over environment variables
// over built-in defaults. Pass the zero value for any flag the caller's
// CLI layer didn't set so the environment/default can take over.
func Resolve(flagHost string, flagPort, flagInternalPort int, flagConfig string) Server {
	host := firstNonEmpty(flagHost, os.Getenv(protocol.EnvHost), protocol.DefaultHost)

	port := flagPort
	if port == 0 {
		port = envInt(protocol.EnvPort, protocol.DefaultPort)
	}

	internalPort := flagInternalPort
	if internalPort == 0 {
		internalPort = envInt(protocol.EnvNodePort, protocol.DefaultInternalPort)
	}

	configPath := flagConfig
	if configPath == "" {
		configPath = os.Getenv(protocol.EnvConfig)
	}
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	return Server{Host: host, Port: port, InternalPort: internalPort, ConfigPath: configPath}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return protocol.DefaultConfigFile
	}
	return filepath.Join(home, protocol.DefaultConfigFile)
}
