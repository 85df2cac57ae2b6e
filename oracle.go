package pointsto

import (
	"fmt"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/types/typeutil"
)

// AliasResult is the verdict of an alias query. The per-function
// oracle may answer with any of the four values; the engine collapses
// May, Partial and Must into set membership and only ever reports
// NoAlias or MustAlias itself.
type AliasResult int

const (
	NoAlias AliasResult = iota
	MayAlias
	PartialAlias
	MustAlias
)

func (r AliasResult) String() string {
	switch r {
	case NoAlias:
		return "NoAlias"
	case MayAlias:
		return "MayAlias"
	case PartialAlias:
		return "PartialAlias"
	case MustAlias:
		return "MustAlias"
	default:
		return fmt.Sprintf("AliasResult(%d)", int(r))
	}
}

// AnalysisKind selects the underlying per-function alias oracle.
type AnalysisKind int

const (
	// Unification runs a Steensgaard-style unification over the
	// function body.
	Unification AnalysisKind = iota
	// TypeBased answers MayAlias for identically typed pointers.
	TypeBased
)

func (k AnalysisKind) String() string {
	switch k {
	case Unification:
		return "unification"
	case TypeBased:
		return "typebased"
	default:
		return fmt.Sprintf("AnalysisKind(%d)", int(k))
	}
}

// ParseAnalysisKind maps a configuration string to an AnalysisKind.
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch s {
	case "", "unification":
		return Unification, nil
	case "typebased":
		return TypeBased, nil
	default:
		return Unification, fmt.Errorf("unknown analysis kind %q", s)
	}
}

// UnknownSize marks pointers whose pointee size cannot be determined.
const UnknownSize = ^uint64(0)

// AAResults answers intra-procedural alias queries for a single
// function.
type AAResults struct {
	fun    *ssa.Function
	kind   AnalysisKind
	terms  map[ssa.Value]*term
	hasher typeutil.Hasher
}

// termOf returns the term holding the constraint variable for the
// given value. Constructed terms are memoized; globals and functions
// start out as reference cells for their storage.
func (aa *AAResults) termOf(v ssa.Value) *term {
	if t, found := aa.terms[v]; found {
		return t
	}

	var t *term
	switch v.(type) {
	case *ssa.Global, *ssa.Function:
		t = mkRef()
	default:
		t = mkFresh()
	}
	aa.terms[v] = t
	return t
}

// eval returns the term for an operand. Constants get a fresh term per
// occurrence so that they never introduce aliasing.
func (aa *AAResults) eval(v ssa.Value) *term {
	if _, ok := v.(*ssa.Const); ok {
		return mkFresh()
	}
	return aa.termOf(v)
}

// Alias reports the relation between two pointers of the given store
// sizes. A zero store size can never overlap anything.
func (aa *AAResults) Alias(p1 ssa.Value, size1 uint64, p2 ssa.Value, size2 uint64) AliasResult {
	if p1 == p2 {
		return MustAlias
	}
	if size1 == 0 || size2 == 0 {
		return NoAlias
	}

	if aa.kind == TypeBased {
		t1, t2 := p1.Type(), p2.Type()
		if PointerLike(t1) && PointerLike(t2) &&
			aa.hasher.Hash(t1) == aa.hasher.Hash(t2) && types.Identical(t1, t2) {
			return MayAlias
		}
		return NoAlias
	}

	t1, t2 := find(aa.termOf(p1)), find(aa.termOf(p2))
	if t1 == t2 {
		// The values were unified directly, so they are copies of the
		// same pointer.
		return MustAlias
	}

	r1, ok1 := t1.x.(tRef)
	r2, ok2 := t2.x.(tRef)
	if ok1 && ok2 && find(r1.obj) == find(r2.obj) {
		return MayAlias
	}

	return NoAlias
}

// aliasOracle lazily constructs per-function AAResults and releases
// them once the engine has folded their answers.
type aliasOracle struct {
	kind    AnalysisKind
	sizes   types.Sizes
	hasher  typeutil.Hasher
	results map[*ssa.Function]*AAResults
}

func newAliasOracle(kind AnalysisKind) *aliasOracle {
	return &aliasOracle{
		kind:    kind,
		sizes:   types.SizesFor("gc", "amd64"),
		hasher:  typeutil.MakeHasher(),
		results: make(map[*ssa.Function]*AAResults),
	}
}

func (o *aliasOracle) aaResults(fun *ssa.Function) *AAResults {
	if aa, found := o.results[fun]; found {
		return aa
	}

	aa := &AAResults{
		fun:    fun,
		kind:   o.kind,
		terms:  make(map[ssa.Value]*term),
		hasher: o.hasher,
	}
	if o.kind == Unification {
		o.solve(aa, fun)
	}
	o.results[fun] = aa
	return aa
}

// erase releases the oracle state for fun.
func (o *aliasOracle) erase(fun *ssa.Function) {
	delete(o.results, fun)
}

// storeSize returns the store size of the pointee for a pointer of
// type t, or UnknownSize when t is not a plain pointer or its element
// is unsized.
func (o *aliasOracle) storeSize(t types.Type) uint64 {
	ptr, ok := t.Underlying().(*types.Pointer)
	if !ok {
		return UnknownSize
	}
	elem := ptr.Elem()
	if basic, ok := elem.Underlying().(*types.Basic); ok && basic.Kind() == types.Invalid {
		return UnknownSize
	}
	return uint64(o.sizes.Sizeof(elem))
}

// solve runs one pass over the function body, unifying terms per
// instruction. Calls are opaque: their results stay fresh, so the
// oracle is purely intra-procedural.
func (o *aliasOracle) solve(aa *AAResults, fun *ssa.Function) {
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			switch t := insn.(type) {
			case *ssa.Alloc:
				unify(aa.termOf(t), mkRef())

			case *ssa.MakeChan:
				unify(aa.termOf(t), mkRef())

			case *ssa.MakeMap:
				unify(aa.termOf(t), mkRef())

			case *ssa.MakeSlice:
				unify(aa.termOf(t), mkRef())

			case *ssa.MakeClosure:
				unify(aa.termOf(t), mkRef())

			case *ssa.MakeInterface:
				unify(aa.termOf(t), mkRef())

			case *ssa.Convert:
				// Conversions producing references behave like
				// allocations of an unrelated object.
				if PointerLike(t.Type()) {
					unify(aa.termOf(t), mkRef())
				}

			case *ssa.UnOp:
				if t.Op == token.MUL {
					unify(aa.eval(t.X), mkTerm(tRef{obj: aa.termOf(t)}))
				}

			case *ssa.Store:
				unify(aa.eval(t.Addr), mkTerm(tRef{obj: aa.eval(t.Val)}))

			case *ssa.ChangeType:
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.ChangeInterface:
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.Slice:
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.SliceToArrayPointer:
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.FieldAddr:
				// Field-insensitive: a pointer into an object keeps
				// the object's reference cell.
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.IndexAddr:
				unify(aa.termOf(t), aa.eval(t.X))

			case *ssa.Phi:
				for _, edge := range t.Edges {
					unify(aa.termOf(t), aa.eval(edge))
				}
			}
		}
	}
}
