package autocode

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverride_Registered(t *testing.T) {
	require.NoError(t, Register("test.mul", func(a, b int) int { return a * b }))
	t.Cleanup(func() { Unregister("test.mul") })

	agent := newFakeAgent(addSource)
	a := newTestAssistant(t, nil, UseAgent(agent))

	fn, err := a.Autocode(context.Background(), "multiply", addOpts(WithOverride("test.mul"))...)
	require.NoError(t, err)
	require.Equal(t, KindImported, fn.Kind())
	assert.Equal(t, "test.mul", fn.(*ImportedFunc).Ref)

	got, err := fn.Invoke([]any{6}, map[string]any{"b": 7})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Zero(t, agent.calls())
}

func TestOverride_File(t *testing.T) {
	cfg := testConfig(t)
	dir := filepath.Join(cfg.Workspace.Root, "overrides")
	require.NoError(t, os.MkdirAll(dir, 0755))
	src := "package overrides\n\nimport \"strings\"\n\nfunc Shout(s string) string {\n\treturn strings.ToUpper(s) + \"!\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shout.go"), []byte(src), 0644))

	agent := newFakeAgent()
	a := newTestAssistant(t, cfg, UseAgent(agent))

	fn, err := a.Autocode(context.Background(), "shout", WithOverride("overrides/shout.go:Shout"))
	require.NoError(t, err)
	require.Equal(t, KindImported, fn.Kind())
	assert.Equal(t, filepath.Join(dir, "shout.go"), fn.(*ImportedFunc).Path)

	got, err := fn.Call("hey")
	require.NoError(t, err)
	assert.Equal(t, "HEY!", got)
	assert.Zero(t, agent.calls())
}

func TestOverride_UnresolvedFallsBackToGeneration(t *testing.T) {
	agent := newFakeAgent(addSource)
	a := newTestAssistant(t, nil, UseAgent(agent))

	for _, ref := range []string{"not-registered", "missing.go:Add", "broken:"} {
		fn, err := a.Autocode(context.Background(), "add", addOpts(WithOverride(ref))...)
		require.NoError(t, err, ref)
		assert.NotEqual(t, KindImported, fn.Kind())
	}
	assert.Equal(t, 1, agent.calls(), "later calls hit the cache")
}

func TestRegister_Rejects(t *testing.T) {
	assert.Error(t, Register("", func() {}))
	assert.Error(t, Register("x", 42))
	var nilFn func()
	assert.Error(t, Register("x", nilFn))
}
