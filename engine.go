package pointsto

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/ssa"

	"github.com/valset/pointsto/internal/maps"
	"github.com/valset/pointsto/internal/queue"
)

// DefaultHeapAllocatingFunctions lists the callee names recognized as
// heap allocators out of the box.
var DefaultHeapAllocatingFunctions = []string{
	"malloc",
	"calloc",
	"realloc",
	"aligned_alloc",
	"posix_memalign",
	"_Znwm",
	"_Znam",
	"_ZnwmRKSt9nothrow_t",
	"_ZnamRKSt9nothrow_t",
}

// Options configures an Engine. The zero value requests eager
// evaluation with the unification oracle and default heap allocators.
type Options struct {
	// UseLazyEvaluation defers per-function analysis until a query
	// touches the function.
	UseLazyEvaluation bool

	// AnalysisKind selects the per-function alias oracle variant.
	AnalysisKind AnalysisKind

	// HeapAllocatingFunctions overrides the callee names treated as
	// heap allocation sites. nil selects the defaults; an empty slice
	// disables heap-call classification entirely.
	HeapAllocatingFunctions []string

	// WarnPointerThreshold is the per-function pointer count above
	// which the quadratic alias loop logs a warning. 0 selects the
	// default of 100.
	WarnPointerThreshold int
}

const defaultWarnPointerThreshold = 100

// Engine computes and serves points-to information for the values of
// an IRDB. It folds per-function oracle verdicts and structural rules
// for globals and stores into a program-wide disjoint-set of values.
//
// The engine is single-threaded and not reentrant: queries may mutate
// internal state, so callers serialize access.
type Engine struct {
	db         *IRDB
	opts       Options
	heapAllocs map[string]struct{}
	oracle     *aliasOracle
	store      *setStore
	analyzed   map[*ssa.Function]struct{}
}

func newEmptyEngine(db *IRDB, opts Options) *Engine {
	if opts.WarnPointerThreshold == 0 {
		opts.WarnPointerThreshold = defaultWarnPointerThreshold
	}
	heapAllocs := opts.HeapAllocatingFunctions
	if heapAllocs == nil {
		heapAllocs = DefaultHeapAllocatingFunctions
	}

	return &Engine{
		db:         db,
		opts:       opts,
		heapAllocs: maps.FromKeys(heapAllocs),
		oracle:     newAliasOracle(opts.AnalysisKind),
		store:      newSetStore(),
		analyzed:   make(map[*ssa.Function]struct{}),
	}
}

// NewEngine builds an engine over db. Globals and functions are always
// seeded; unless Options.UseLazyEvaluation is set, every function with
// a body is analyzed before NewEngine returns.
func NewEngine(db *IRDB, opts Options) *Engine {
	e := newEmptyEngine(db, opts)

	for _, mod := range db.Modules() {
		for _, g := range mod.Globals {
			e.computeValuesPointsToSet(g)
		}
		for _, fun := range mod.Funcs {
			e.computeValuesPointsToSet(fun)
		}
	}

	if !opts.UseLazyEvaluation {
		var work queue.Queue[*ssa.Function]
		for _, mod := range db.Modules() {
			for _, fun := range mod.Funcs {
				if len(fun.Blocks) > 0 {
					work.Push(fun)
				}
			}
		}
		for !work.Empty() {
			e.computeFunctionsPointsToSet(work.Pop())
		}
	}

	return e
}

// computeValuesPointsToSet materializes points-to information for a
// single value. For global objects every using function is analyzed
// and use sites are merged with the global, capturing cross-function
// aliasing the intra-procedural oracle cannot see.
func (e *Engine) computeValuesPointsToSet(v ssa.Value) {
	if !IsInterestingPointer(v) {
		return
	}
	e.store.addSingleton(v)

	if isGlobalObject(v) {
		_, isFun := v.(*ssa.Function)
		for _, user := range e.db.UsersOf(v) {
			fun := user.Parent()
			if fun == nil {
				continue
			}
			e.computeFunctionsPointsToSet(fun)

			if uval, ok := user.(ssa.Value); ok && !isFun && IsInterestingPointer(uval) {
				e.store.merge(uval, v)
			} else if st, ok := user.(*ssa.Store); ok {
				if IsInterestingPointer(st.Val) {
					// The address operand is always an interesting
					// pointer, so only the stored value needs a check.
					e.store.merge(st.Val, st.Addr)
				}
			}
		}
		return
	}

	fun := enclosingFunction(v)
	if fun == nil {
		log.Debugf("no containing function for %s", v.Name())
		return
	}
	e.computeFunctionsPointsToSet(fun)
}

// valueList is an insertion-ordered set of values. The fixed order
// keeps the pairwise alias loop, and therefore every merge, fully
// deterministic.
type valueList struct {
	index  map[ssa.Value]int
	values []ssa.Value
}

func newValueList() *valueList {
	return &valueList{index: make(map[ssa.Value]int)}
}

func (l *valueList) add(v ssa.Value) {
	if _, found := l.index[v]; found {
		return
	}
	l.index[v] = len(l.values)
	l.values = append(l.values, v)
}

// conversionOperand returns the operand of a value-preserving
// conversion, or nil if v is not one.
func conversionOperand(v ssa.Value) ssa.Value {
	switch v := v.(type) {
	case *ssa.ChangeType:
		return v.X
	case *ssa.Convert:
		return v.X
	case *ssa.ChangeInterface:
		return v.X
	case *ssa.MakeInterface:
		return v.X
	}
	return nil
}

// computeFunctionsPointsToSet runs the per-function analysis: collect
// candidate pointers in a fixed order, pre-seed store-derived edges,
// seed singletons and fold the oracle's pairwise verdicts into the
// store. The function is marked analyzed up front so that recursion
// through global handling terminates.
func (e *Engine) computeFunctionsPointsToSet(fun *ssa.Function) {
	if fun == nil {
		return
	}
	if _, done := e.analyzed[fun]; done {
		return
	}
	log.Debugf("analyzing function: %s", fun)
	e.analyzed[fun] = struct{}{}

	aa := e.oracle.aaResults(fun)

	pointers := newValueList()
	for _, param := range fun.Params {
		if PointerLike(param.Type()) {
			pointers.add(param)
		}
	}
	for _, fv := range fun.FreeVars {
		if PointerLike(fv.Type()) {
			pointers.add(fv)
		}
	}

	var rands []*ssa.Value
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			if v, ok := insn.(ssa.Value); ok && PointerLike(v.Type()) {
				pointers.add(v)
			}

			if st, ok := insn.(*ssa.Store); ok && PointerLike(st.Val.Type()) {
				if _, isFun := st.Val.(*ssa.Function); isFun {
					e.store.addSingleton(st.Val)
					e.store.addSingleton(st.Addr)
					e.store.merge(st.Val, st.Addr)
				} else if rhs := conversionOperand(st.Val); rhs != nil && IsInterestingPointer(rhs) {
					// A conversion stored away keeps both the
					// converted value and its operand reachable
					// through the address.
					e.store.addSingleton(rhs)
					e.store.addSingleton(st.Val)
					e.store.addSingleton(st.Addr)
					e.store.merge(rhs, st.Addr)
					e.store.merge(st.Val, st.Addr)
				}
			}

			if call, ok := insn.(ssa.CallInstruction); ok {
				common := call.Common()
				// Skip actual functions for direct calls; everything
				// else flowing into the call is a data operand.
				if _, direct := common.Value.(*ssa.Function); !direct && IsInterestingPointer(common.Value) {
					pointers.add(common.Value)
				}
				for _, arg := range common.Args {
					if IsInterestingPointer(arg) {
						pointers.add(arg)
					}
				}
			} else {
				rands = insn.Operands(rands[:0])
				for _, rand := range rands {
					if rand == nil || *rand == nil {
						continue
					}
					if IsInterestingPointer(*rand) {
						pointers.add(*rand)
					}
				}
			}
		}
	}

	if mod := e.db.ModuleOf(fun); mod != nil {
		for _, g := range mod.Globals {
			pointers.add(g)
		}
	}

	// Singleton sets for each candidate; they merge as aliases are
	// discovered.
	for _, p := range pointers.values {
		e.store.addSingleton(p)
	}

	if len(pointers.values) > e.opts.WarnPointerThreshold {
		log.Warnf("large number of pointers detected - perf is O(N^2) here: %d for %s",
			len(pointers.values), fun)
	}

	// The full (n^2)/2 disambiguations.
	for i1 := 1; i1 < len(pointers.values); i1++ {
		p1 := pointers.values[i1]
		size1 := e.oracle.storeSize(p1.Type())
		for i2 := 0; i2 < i1; i2++ {
			p2 := pointers.values[i2]
			size2 := e.oracle.storeSize(p2.Type())
			if aa.Alias(p1, size1, p2, size2) != NoAlias {
				e.store.merge(p1, p2)
			}
		}
	}

	e.oracle.erase(fun)
}

// Alias reports whether v1 and v2 may refer to overlapping memory.
// The oracle's graded verdicts have been collapsed into membership, so
// the answer is either NoAlias or MustAlias. at is the program point
// of the query and is currently unused.
func (e *Engine) Alias(v1, v2 ssa.Value, at ssa.Instruction) AliasResult {
	if !IsInterestingPointer(v1) || !IsInterestingPointer(v2) {
		return NoAlias
	}
	e.computeValuesPointsToSet(v1)
	e.computeValuesPointsToSet(v2)
	if e.store.find(v1).Contains(v2) {
		return MustAlias
	}
	return NoAlias
}

// PointsToSet returns the shared set of values aliasing v. The set is
// live: later queries may grow it. Uninteresting or unknown values get
// an empty set.
func (e *Engine) PointsToSet(v ssa.Value, at ssa.Instruction) *ValueSet {
	if !IsInterestingPointer(v) {
		return newValueSet()
	}
	e.computeValuesPointsToSet(v)
	if s := e.store.find(v); s != nil {
		return s
	}
	return newValueSet()
}

func (e *Engine) isHeapAllocatingCall(p ssa.Value) bool {
	call, ok := p.(*ssa.Call)
	if !ok {
		return false
	}
	callee := call.Common().StaticCallee()
	if callee == nil {
		return false
	}
	_, found := e.heapAllocs[callee.Name()]
	return found
}

// interReachableAllocationSite considers the full inter-procedural
// alias information.
func (e *Engine) interReachableAllocationSite(p ssa.Value) bool {
	if _, ok := p.(*ssa.Alloc); ok {
		return true
	}
	return e.isHeapAllocatingCall(p)
}

// intraReachableAllocationSite restricts to function-local sites:
// allocations and heap-allocating calls in vFun. Global objects see
// every allocation site.
func (e *Engine) intraReachableAllocationSite(p ssa.Value, vFun *ssa.Function, vIsGlobal bool) bool {
	if alloc, ok := p.(*ssa.Alloc); ok {
		return vIsGlobal || (vFun != nil && vFun == alloc.Parent())
	}
	if e.isHeapAllocatingCall(p) {
		return vIsGlobal || (vFun != nil && vFun == p.Parent())
	}
	return false
}

// ReachableAllocationSites filters the points-to set of v down to
// allocation sites. With intraProcOnly set, only sites residing in v's
// own function qualify (all sites, if v is a global object). The
// returned set is a fresh snapshot owned by the caller.
func (e *Engine) ReachableAllocationSites(v ssa.Value, intraProcOnly bool, at ssa.Instruction) *ValueSet {
	sites := newValueSet()
	if !IsInterestingPointer(v) {
		return sites
	}
	e.computeValuesPointsToSet(v)

	pts := e.store.find(v)
	if pts == nil {
		return sites
	}

	if !intraProcOnly {
		for _, p := range pts.Values() {
			if e.interReachableAllocationSite(p) {
				sites.insert(p)
			}
		}
		return sites
	}

	vFun := enclosingFunction(v)
	vIsGlobal := isGlobalObject(v)
	for _, p := range pts.Values() {
		if e.intraReachableAllocationSite(p, vFun, vIsGlobal) {
			sites.insert(p)
		}
	}
	return sites
}

// IsInReachableAllocationSites reports whether candidate is an
// allocation site (under the same rules as ReachableAllocationSites)
// reachable from v.
func (e *Engine) IsInReachableAllocationSites(v, candidate ssa.Value, intraProcOnly bool, at ssa.Instruction) bool {
	if !IsInterestingPointer(v) {
		return false
	}
	e.computeValuesPointsToSet(v)

	var qualifies bool
	if intraProcOnly {
		qualifies = e.intraReachableAllocationSite(candidate, enclosingFunction(v), isGlobalObject(v))
	} else {
		qualifies = e.interReachableAllocationSite(candidate)
	}

	return qualifies && e.store.find(v).Contains(candidate)
}

// IntroduceAlias records an externally asserted alias between v1 and
// v2. kind is informational only; any kind merges.
func (e *Engine) IntroduceAlias(v1, v2 ssa.Value, at ssa.Instruction, kind AliasResult) {
	if !IsInterestingPointer(v1) || !IsInterestingPointer(v2) {
		return
	}
	e.computeValuesPointsToSet(v1)
	e.computeValuesPointsToSet(v2)
	e.store.merge(v1, v2)
}

// MergeWith folds another engine's view into this one. Both engines
// must be built over the same program. Every member of an incoming
// equivalence class is merged into one representative, so a class
// bridging two previously disjoint classes of this engine unifies
// them; the disjointness invariant holds afterwards.
func (e *Engine) MergeWith(other *Engine) {
	if other.db.Prog != e.db.Prog {
		log.Panicf("points-to engines can only be merged over the same program")
	}

	for fun := range other.analyzed {
		e.analyzed[fun] = struct{}{}
	}

	visited := make(map[*ValueSet]struct{})
	for _, set := range other.store.sets {
		if _, done := visited[set]; done {
			continue
		}
		visited[set] = struct{}{}

		members := set.Values()
		if len(members) == 0 {
			continue
		}

		rep := members[0]
		e.store.addSingleton(rep)
		for _, elem := range members[1:] {
			e.store.addSingleton(elem)
			e.store.merge(rep, elem)
		}
	}
}

// AnalyzedFunctions returns the functions whose per-function analysis
// has run, in a stable order.
func (e *Engine) AnalyzedFunctions() []*ssa.Function {
	funs := maps.Keys(e.analyzed)
	sort.Slice(funs, func(i, j int) bool {
		return funs[i].String() < funs[j].String()
	})
	return funs
}

// Stats returns the number of tracked values and of distinct points-to
// sets.
func (e *Engine) Stats() (values, sets int) {
	unique := make(map[*ValueSet]struct{})
	for _, s := range e.store.sets {
		unique[s] = struct{}{}
	}
	return e.store.len(), len(unique)
}
