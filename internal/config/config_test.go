package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfdb/shelf/internal/protocol"
)

func TestResolveDefaultsWhenNothingSet(t *testing.T) {
	t.Setenv(protocol.EnvHost, "")
	t.Setenv(protocol.EnvPort, "")
	t.Setenv(protocol.EnvNodePort, "")
	t.Setenv(protocol.EnvConfig, "")

	s := Resolve("", 0, 0, "")
	assert.Equal(t, protocol.DefaultHost, s.Host)
	assert.Equal(t, protocol.DefaultPort, s.Port)
	assert.Equal(t, protocol.DefaultInternalPort, s.InternalPort)
	assert.NotEmpty(t, s.ConfigPath)
}

func TestResolveEnvOverridesDefault(t *testing.T) {
	t.Setenv(protocol.EnvHost, "10.0.0.9")
	t.Setenv(protocol.EnvPort, "1234")

	s := Resolve("", 0, 0, "")
	assert.Equal(t, "10.0.0.9", s.Host)
	assert.Equal(t, 1234, s.Port)
}

func TestResolveFlagOverridesEnv(t *testing.T) {
	t.Setenv(protocol.EnvHost, "10.0.0.9")
	t.Setenv(protocol.EnvPort, "1234")

	s := Resolve("127.0.0.1", 5555, 0, "")
	assert.Equal(t, "127.0.0.1", s.Host)
	assert.Equal(t, 5555, s.Port)
}

func TestResolveExplicitConfigPathWins(t *testing.T) {
	t.Setenv(protocol.EnvConfig, "/tmp/env.json")

	s := Resolve("", 0, 0, "/tmp/flag.json")
	assert.Equal(t, "/tmp/flag.json", s.ConfigPath)
}
