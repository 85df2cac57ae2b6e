package pointsto

import (
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/ssa"

	"github.com/valset/pointsto/pkgutil"
)

func loadMain(t *testing.T, source string) *ssa.Function {
	t.Helper()
	_, spkgs, err := pkgutil.LoadProgramFromSource(source)
	require.NoError(t, err)
	fun := spkgs[0].Func("main")
	require.NotNil(t, fun)
	return fun
}

func allocsIn(fun *ssa.Function) []*ssa.Alloc {
	var res []*ssa.Alloc
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			if alloc, ok := insn.(*ssa.Alloc); ok {
				res = append(res, alloc)
			}
		}
	}
	return res
}

func loadsIn(fun *ssa.Function) []*ssa.UnOp {
	var res []*ssa.UnOp
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			if load, ok := insn.(*ssa.UnOp); ok && load.Op == token.MUL && PointerLike(load.X.Type()) {
				res = append(res, load)
			}
		}
	}
	return res
}

func TestUnificationOracle(t *testing.T) {
	fun := loadMain(t, `
		package main

		func main() {
			x := new(*int)
			p := new(int)
			*x = p
			q := *x
			*q = 10
			println(q)
		}`)

	o := newAliasOracle(Unification)
	aa := o.aaResults(fun)

	allocs := allocsIn(fun)
	require.Len(t, allocs, 2)
	x, p := allocs[0], allocs[1]

	loads := loadsIn(fun)
	require.NotEmpty(t, loads)
	q := loads[0]

	szX := o.storeSize(x.Type())
	szP := o.storeSize(p.Type())
	szQ := o.storeSize(q.Type())

	assert.Equal(t, MustAlias, aa.Alias(p, szP, p, szP))
	assert.NotEqual(t, NoAlias, aa.Alias(p, szP, q, szQ),
		"the loaded pointer flows from p")
	assert.Equal(t, NoAlias, aa.Alias(x, szX, p, szP),
		"x points at p's slot, it does not alias p")
}

func TestUnificationOracleDistinctAllocs(t *testing.T) {
	fun := loadMain(t, `
		package main

		func main() {
			a := new(int)
			b := new(int)
			println(a, b)
		}`)

	o := newAliasOracle(Unification)
	aa := o.aaResults(fun)

	allocs := allocsIn(fun)
	require.Len(t, allocs, 2)
	sz := o.storeSize(allocs[0].Type())

	assert.Equal(t, NoAlias, aa.Alias(allocs[0], sz, allocs[1], sz))
}

func TestTypeBasedOracle(t *testing.T) {
	fun := loadMain(t, `
		package main

		func main() {
			a := new(int)
			b := new(int)
			s := new(string)
			println(a, b, s)
		}`)

	o := newAliasOracle(TypeBased)
	aa := o.aaResults(fun)

	allocs := allocsIn(fun)
	require.Len(t, allocs, 3)
	a, b, s := allocs[0], allocs[1], allocs[2]

	assert.Equal(t, MayAlias, aa.Alias(a, 8, b, 8))
	assert.Equal(t, NoAlias, aa.Alias(a, 8, s, 16))
}

func TestOracleErase(t *testing.T) {
	fun := loadMain(t, `
		package main

		func main() {}`)

	o := newAliasOracle(Unification)
	aa := o.aaResults(fun)
	assert.Same(t, aa, o.aaResults(fun))

	o.erase(fun)
	assert.NotSame(t, aa, o.aaResults(fun),
		"erase should release the memoized results")
}

func TestStoreSize(t *testing.T) {
	fun := loadMain(t, `
		package main

		func main() {
			p := new(int)
			e := new(struct{})
			m := make(map[int]int)
			println(p, e, m == nil)
		}`)

	o := newAliasOracle(Unification)
	aa := o.aaResults(fun)

	allocs := allocsIn(fun)
	require.Len(t, allocs, 2)
	p, e := allocs[0], allocs[1]

	assert.Equal(t, uint64(8), o.storeSize(p.Type()))
	assert.Equal(t, uint64(0), o.storeSize(e.Type()))

	var m ssa.Value
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			if mk, ok := insn.(*ssa.MakeMap); ok {
				m = mk
			}
		}
	}
	require.NotNil(t, m)
	assert.Equal(t, UnknownSize, o.storeSize(m.Type()))

	// A zero store size can never overlap anything.
	assert.Equal(t, NoAlias, aa.Alias(e, 0, p, 8))
}
