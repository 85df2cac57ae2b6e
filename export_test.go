package pointsto

import (
	"fmt"

	"golang.org/x/tools/go/ssa"
)

// CheckInvariants verifies the structural invariants of the engine's
// store: every key is a member of its own set (I1), every member of a
// set binds back to that same set object (I3, which together with I1
// implies pairwise disjointness, I2), and every pointer-typed value of
// an analyzed function is tracked (I4).
func (e *Engine) CheckInvariants() error {
	for v, set := range e.store.sets {
		if !set.Contains(v) {
			return fmt.Errorf("key %s missing from its own set", valueString(v))
		}
		for _, member := range set.Values() {
			if e.store.sets[member] != set {
				return fmt.Errorf("member %s of %s's set is bound to a different set",
					valueString(member), valueString(v))
			}
		}
	}

	for fun := range e.analyzed {
		for _, param := range fun.Params {
			if PointerLike(param.Type()) && e.store.find(param) == nil {
				return fmt.Errorf("analyzed %s: parameter %s untracked", fun, param.Name())
			}
		}
		for _, block := range fun.Blocks {
			for _, insn := range block.Instrs {
				if v, ok := insn.(ssa.Value); ok && PointerLike(v.Type()) && e.store.find(v) == nil {
					return fmt.Errorf("analyzed %s: value %s untracked", fun, v.Name())
				}
			}
		}
	}

	return nil
}
