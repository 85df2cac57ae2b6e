package pointsto

import (
	"fmt"
	"go/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"
)

// synthValues creates opaque values for store-level tests.
func synthValues(n int) []ssa.Value {
	prog := ssa.NewProgram(nil, 0)
	vs := make([]ssa.Value, n)
	for i := range vs {
		vs[i] = prog.NewFunction(fmt.Sprintf("synth%d", i), new(types.Signature), "synthetic")
	}
	return vs
}

func TestAddSingleton(t *testing.T) {
	vs := synthValues(2)
	st := newSetStore()

	require.Nil(t, st.find(vs[0]))

	st.addSingleton(vs[0])
	s := st.find(vs[0])
	require.NotNil(t, s)
	assert.True(t, s.Contains(vs[0]))
	assert.Equal(t, 1, s.Len())

	st.addSingleton(vs[0])
	assert.Same(t, s, st.find(vs[0]), "addSingleton should be idempotent")
	assert.Equal(t, 1, s.Len())

	assert.Nil(t, st.find(vs[1]))
}

func TestMerge(t *testing.T) {
	vs := synthValues(3)
	st := newSetStore()
	for _, v := range vs {
		st.addSingleton(v)
	}

	st.merge(vs[0], vs[1])
	assert.Same(t, st.find(vs[0]), st.find(vs[1]))
	assert.Equal(t, 2, st.find(vs[0]).Len())

	// The singleton is the smaller side and should be drained into the
	// pair.
	small := st.find(vs[2])
	st.merge(vs[0], vs[2])
	merged := st.find(vs[0])
	assert.Same(t, merged, st.find(vs[2]))
	assert.Equal(t, 3, merged.Len())
	if small != merged {
		assert.Equal(t, 0, small.Len(), "drained set should be cleared")
	}

	// Merging within a class is a no-op.
	st.merge(vs[1], vs[2])
	assert.Equal(t, 3, st.find(vs[1]).Len())
}

func TestMergeUntrackedPanics(t *testing.T) {
	vs := synthValues(2)
	st := newSetStore()
	st.addSingleton(vs[0])

	assert.Panics(t, func() { st.merge(vs[0], vs[1]) })
	assert.Panics(t, func() { st.merge(vs[1], vs[0]) })
}
