package pointsto_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valset/pointsto"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pointsto.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
lazyEvaluation: true
analysisType: typebased
heapAllocFunctions:
  - malloc
  - my_alloc
warnPointerThreshold: 42
`), 0o644))

	opts, err := pointsto.LoadOptions(path)
	require.NoError(t, err)
	assert.True(t, opts.UseLazyEvaluation)
	assert.Equal(t, pointsto.TypeBased, opts.AnalysisKind)
	assert.Equal(t, []string{"malloc", "my_alloc"}, opts.HeapAllocatingFunctions)
	assert.Equal(t, 42, opts.WarnPointerThreshold)
}

func TestLoadOptionsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pointsto.yml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	opts, err := pointsto.LoadOptions(path)
	require.NoError(t, err)
	assert.False(t, opts.UseLazyEvaluation)
	assert.Equal(t, pointsto.Unification, opts.AnalysisKind)
	assert.Nil(t, opts.HeapAllocatingFunctions)
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := pointsto.LoadOptions(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("analysisType: andersen\n"), 0o644))
	_, err = pointsto.LoadOptions(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "andersen")
}

func TestParseAnalysisKind(t *testing.T) {
	kind, err := pointsto.ParseAnalysisKind("")
	require.NoError(t, err)
	assert.Equal(t, pointsto.Unification, kind)

	kind, err = pointsto.ParseAnalysisKind("typebased")
	require.NoError(t, err)
	assert.Equal(t, pointsto.TypeBased, kind)

	_, err = pointsto.ParseAnalysisKind("nonsense")
	assert.Error(t, err)
}
