package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, 0, getExitCode(nil))
	assert.Equal(t, 2, getExitCode(&SetupError{Message: "bad"}))
	assert.Equal(t, 1, getExitCode(&ExecutionError{Message: "socket"}))
	assert.Equal(t, 2, getExitCode(fmt.Errorf("unknown flag: --bogus")))
	assert.Equal(t, 2, getExitCode(fmt.Errorf("wrapped: %w", &SetupError{Message: "bad"})))
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tplinker dev")
	assert.Contains(t, stdout, "Commit: unknown")
}

func TestInvalidAddressIsSetupError(t *testing.T) {
	stdout, _, err := execute(t, "status", "10.0.0.5", "bad host!")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
	assert.Contains(t, err.Error(), "not a valid address: bad host!")
	assert.Empty(t, stdout)
}

func TestMissingAddressesIsSetupError(t *testing.T) {
	_, _, err := execute(t, "reboot")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
}

func TestInvalidSecondsAreSetupErrors(t *testing.T) {
	_, _, err := execute(t, "reboot", "--delay", "soon", "10.0.0.5")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
	assert.Contains(t, err.Error(), "invalid delay")

	_, _, err = execute(t, "discover", "--timeout", "forever")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestInvalidConcurrencyIsSetupError(t *testing.T) {
	_, _, err := execute(t, "--concurrency", "0", "status", "10.0.0.5")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
}

func TestUnreadableInventoryIsSetupError(t *testing.T) {
	_, _, err := execute(t, "on", "--inventory", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
	assert.Contains(t, err.Error(), "failed to load inventory")
}

func TestGroupWithoutInventoryIsSetupError(t *testing.T) {
	_, _, err := execute(t, "off", "--group", "kitchen", "10.0.0.5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without an inventory file")
}

func TestConfigFileFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log-level: loud\n"), 0o600))

	_, _, err := execute(t, "--config", path, "status", "10.0.0.5")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := execute(t, "toggle")
	require.Error(t, err)
	assert.Equal(t, 2, getExitCode(err))
}
