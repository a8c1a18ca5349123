package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_HasFlags(t *testing.T) {
	for _, name := range []string{"addr", "mcp", "mcp-addr"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestServeCmd_MCPRequiresPrincipal(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	userID = ""
	t.Setenv(EnvUser, "")

	_, err := run("serve", "--mcp")

	assert.ErrorContains(t, err, "--user and --tenant are required")
}

func TestServeCmd_MCPAddrRequiresPrincipal(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	tenantID = ""
	t.Setenv(EnvTenant, "")

	_, err := run("serve", "--addr", "127.0.0.1:0", "--mcp-addr", "127.0.0.1:0")

	assert.ErrorContains(t, err, "--user and --tenant are required")
}

func TestListenAddr(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	addr, err := listenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)

	serveAddr = "127.0.0.1:9000"
	addr, err = listenAddr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", addr)
}

func TestListenAddr_NoSettings(t *testing.T) {
	resetFlags()
	SetServices(Services{})

	_, err := listenAddr()

	assert.ErrorContains(t, err, "--addr is required")
}

func TestNewMCPServer(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	server, err := newMCPServer()

	require.NoError(t, err)
	assert.NotNil(t, server)
}
