package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linecrypto/clearnode/src/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOutput(out)
	root.SetArgs(args)

	require.NoError(t, root.Execute())

	return out.String()
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()

	out := execute(t, "keygen", "--datadir", dir, "--log", "error")
	assert.Contains(t, out, "Address: 0x")
	assert.FileExists(t, filepath.Join(dir, "wallet_key"))

	root := NewRootCmd()
	root.SetOutput(new(bytes.Buffer))
	root.SetArgs([]string{"keygen", "--datadir", dir, "--log", "error"})
	assert.Error(t, root.Execute(), "keygen must not overwrite a key")
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestConfigPrecedence(t *testing.T) {
	dir := t.TempDir()

	toml := `
ws-url = "ws://from-file"
scope = "from-file"
app-name = "from-file"
max-auth-retries = 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clearnode.toml"), []byte(toml), 0600))

	t.Setenv("CLEARNODE_SCOPE", "from-env")

	execute(t, "session", "list",
		"--datadir", dir,
		"--store", "inmem",
		"--log", "error",
		"--app-name", "from-flag",
	)

	assert.Equal(t, "ws://from-file", _config.WSURL)
	assert.Equal(t, 7, _config.MaxAuthRetries)
	assert.Equal(t, "from-env", _config.Scope)
	assert.Equal(t, "from-flag", _config.AppName)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()

	env := "CLEARNODE_APPLICATION=0x00000000000000000000000000000000000000aa\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600))
	t.Cleanup(func() { os.Unsetenv("CLEARNODE_APPLICATION") })

	execute(t, "session", "list", "--datadir", dir, "--store", "inmem", "--log", "error")

	assert.Equal(t, "0x00000000000000000000000000000000000000aa", _config.Application)
}

func TestSessionListFiltersStatus(t *testing.T) {
	dir := t.TempDir()

	out := execute(t, "session", "list", "--datadir", dir, "--store", "file", "--log", "error", "--status", "open")
	assert.Equal(t, "[]", strings.TrimSpace(out))

	root := NewRootCmd()
	root.SetOutput(new(bytes.Buffer))
	root.SetArgs([]string{"session", "list", "--datadir", dir, "--store", "file", "--log", "error", "--status", "pending"})
	assert.Error(t, root.Execute())
}

func TestParseAllocations(t *testing.T) {
	allocs, err := parseAllocations([]string{"0xa:USDC:10", "0xb:usdc:0"})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "usdc", allocs[0].Asset)
	assert.Equal(t, "10", allocs[0].Amount)

	_, err = parseAllocations([]string{"0xa:10"})
	assert.Error(t, err)

	tallocs, err := parseTransferAllocations([]string{"usdc:1.5"})
	require.NoError(t, err)
	assert.Equal(t, "1.5", tallocs[0].Amount)

	_, err = parseTransferAllocations([]string{"usdc"})
	assert.Error(t, err)
}

func TestSessionTemplates(t *testing.T) {
	a := "0x00000000000000000000000000000000000000a1"
	b := "0x00000000000000000000000000000000000000b2"

	sf := sessionFlags{template: "two-player", participants: []string{a, b}, amount: "100", asset: "usdc"}
	req, err := sf.request()
	require.NoError(t, err)
	assert.Equal(t, []uint64{100, 0}, req.Weights)
	assert.NoError(t, req.Validate())

	sf = sessionFlags{template: "game", participants: []string{a}}
	_, err = sf.request()
	assert.Error(t, err, "game needs a server")

	sf = sessionFlags{
		participants: []string{a, b},
		weights:      []string{"50", "50"},
		quorum:       100,
		allocations:  []string{a + ":usdc:5", b + ":usdc:5"},
	}
	req, err = sf.request()
	require.NoError(t, err)
	assert.NoError(t, req.Validate())
	assert.Equal(t, client.DefaultProtocol, req.Protocol)

	sf.weights = []string{"x"}
	_, err = sf.request()
	assert.Error(t, err)
}
