package autocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetDefault(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if old := defaultAssistant.Swap(nil); old != nil {
			_ = old.Close()
		}
	})
}

func TestSetup_PackageLevelAutocode(t *testing.T) {
	resetDefault(t)
	agent := newFakeAgent(addSource)
	require.NoError(t, Setup(testConfig(t), UseAgent(agent)))

	fn, err := Autocode(context.Background(), "add", addOpts(WithID("global"))...)
	require.NoError(t, err)
	got, err := fn.Call(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	d, err := Default()
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(d.Workspace(), "ids", "global.go"))
}

func TestSetup_ReplacesDefault(t *testing.T) {
	resetDefault(t)
	require.NoError(t, Setup(testConfig(t), UseAgent(newFakeAgent())))
	first, err := Default()
	require.NoError(t, err)

	require.NoError(t, Setup(testConfig(t), UseAgent(newFakeAgent())))
	second, err := Default()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestSetup_LoadsDotenv(t *testing.T) {
	resetDefault(t)
	const key = "AUTOCODE_TEST_DOTENV_VALUE"
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	cfg := testConfig(t)
	cfg.DotenvPath = filepath.Join(cfg.Workspace.Root, ".env")
	require.NoError(t, os.WriteFile(cfg.DotenvPath, []byte(key+"=from-file\n"), 0644))

	require.NoError(t, Setup(cfg, UseAgent(newFakeAgent())))
	assert.Equal(t, "from-file", os.Getenv(key))
}

func TestSetup_MissingDotenv(t *testing.T) {
	resetDefault(t)
	cfg := testConfig(t)
	cfg.DotenvPath = filepath.Join(cfg.Workspace.Root, "missing.env")

	err := Setup(cfg)
	var ce *ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestSetup_InvalidConfigKeepsDefault(t *testing.T) {
	resetDefault(t)
	require.NoError(t, Setup(testConfig(t), UseAgent(newFakeAgent())))
	before, err := Default()
	require.NoError(t, err)

	bad := testConfig(t)
	bad.Workspace.CacheDir = ""
	assert.Error(t, Setup(bad))

	after, err := Default()
	require.NoError(t, err)
	assert.Same(t, before, after)
}
