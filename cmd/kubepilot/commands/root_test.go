package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevelFlags(t *testing.T) {
	level, packages, err := parseLogLevelFlags([]string{"debug"})
	require.NoError(t, err)
	assert.Equal(t, "debug", level)
	assert.Empty(t, packages)

	level, packages, err = parseLogLevelFlags([]string{"default=warn", "agent.loop=debug"})
	require.NoError(t, err)
	assert.Equal(t, "warn", level)
	assert.Equal(t, "debug", packages["agent.loop"])

	_, _, err = parseLogLevelFlags([]string{"verbose"})
	assert.Error(t, err)

	_, _, err = parseLogLevelFlags([]string{"agent.loop=chatty"})
	assert.Error(t, err)
}

func TestParseLogLevelFlagsEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL_AGENT_LOOP", "debug")

	_, packages, err := parseLogLevelFlags([]string{"info"})
	require.NoError(t, err)
	assert.Equal(t, "debug", packages["agent.loop"])

	// CLI flag wins over the environment
	_, packages, err = parseLogLevelFlags([]string{"info", "agent.loop=error"})
	require.NoError(t, err)
	assert.Equal(t, "error", packages["agent.loop"])
}

func TestEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "agent.loop", envKeyToPackageName("LOG_LEVEL_AGENT_LOOP"))
	assert.Equal(t, "api", envKeyToPackageName("LOG_LEVEL_API"))
}
