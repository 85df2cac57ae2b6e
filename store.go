package pointsto

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/ssa"
)

// ValueSet is a mutable set of SSA values shared between every key of
// its equivalence class. Callers receive live views; two keys alias
// exactly when their sets are the same object.
type ValueSet struct {
	elems map[ssa.Value]struct{}
}

func newValueSet(vs ...ssa.Value) *ValueSet {
	s := &ValueSet{elems: make(map[ssa.Value]struct{}, len(vs))}
	for _, v := range vs {
		s.elems[v] = struct{}{}
	}
	return s
}

func (s *ValueSet) Contains(v ssa.Value) bool {
	if s == nil {
		return false
	}
	_, found := s.elems[v]
	return found
}

func (s *ValueSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.elems)
}

// Values returns the members of the set in unspecified order.
func (s *ValueSet) Values() []ssa.Value {
	if s == nil {
		return nil
	}
	vs := make([]ssa.Value, 0, len(s.elems))
	for v := range s.elems {
		vs = append(vs, v)
	}
	return vs
}

func (s *ValueSet) insert(v ssa.Value) { s.elems[v] = struct{}{} }

// setStore is a disjoint-set over SSA values. Every key binds directly
// to the set object of its class, so find is a map lookup and the
// same-object test is a pointer compare. Weighted union keeps the
// total reindexing work near-linear.
type setStore struct {
	sets map[ssa.Value]*ValueSet
}

func newSetStore() *setStore {
	return &setStore{sets: make(map[ssa.Value]*ValueSet)}
}

// addSingleton binds v to a fresh {v} set if it has no class yet.
// Idempotent.
func (st *setStore) addSingleton(v ssa.Value) {
	if s, found := st.sets[v]; found {
		s.insert(v)
		return
	}
	st.sets[v] = newValueSet(v)
}

// find returns the set of v's class, or nil if v has none.
func (st *setStore) find(v ssa.Value) *ValueSet { return st.sets[v] }

// merge unifies the classes of v1 and v2. Both must already be keys.
// The smaller set is folded into the larger one, its members are
// rebound, and the drained set object is cleared.
func (st *setStore) merge(v1, v2 ssa.Value) {
	s1, found := st.sets[v1]
	if !found {
		log.Panicf("merge of untracked value %v", v1)
	}
	s2, found := st.sets[v2]
	if !found {
		log.Panicf("merge of untracked value %v", v2)
	}
	if s1 == s2 {
		return
	}

	small, large := s1, s2
	if small.Len() > large.Len() {
		small, large = large, small
	}

	for v := range small.elems {
		large.insert(v)
		st.sets[v] = large
	}
	small.elems = map[ssa.Value]struct{}{}
}

func (st *setStore) len() int { return len(st.sets) }
