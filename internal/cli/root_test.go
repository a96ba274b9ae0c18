package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "graphsync", cmd.Use)
	assert.Contains(t, cmd.Long, "GraphInstance")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "schema", "import", "export", "inspect", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "graphsync.yaml", configFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		command string
		flag    string
		def     string
	}{
		{"schema", "output", ""},
		{"import", "label", "import"},
		{"inspect", "type", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"schema", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graphsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: scene.db\nmode: runtime\n"), 0o644))

	opts := &RootOptions{Config: path}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scene.db"), cfg.Database)
	assert.Equal(t, "info", cfg.Log.Level)

	opts = &RootOptions{Config: path, Database: "other.db", Mode: "editor", Verbose: true}
	cfg, err = opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database)
	assert.Equal(t, "editor", cfg.Mode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	opts := &RootOptions{Config: filepath.Join(t.TempDir(), "absent.yaml")}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "graphsync.db", cfg.Database)
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	opts := &RootOptions{Config: filepath.Join(t.TempDir(), "absent.yaml"), Mode: "studio"}
	_, err := opts.loadConfig()
	assert.ErrorContains(t, err, `invalid mode "studio"`)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := WrapExitError(ExitFailure, "E003", errors.New("boom"))
	assert.Equal(t, "E003: boom", wrapped.Error())
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}
