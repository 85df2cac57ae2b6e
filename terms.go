package pointsto

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// The unification oracle models every value in a function as a term in
// a union-find forest. A term is either a fresh variable or a
// reference cell pointing at the term of the referenced object.
// Unifying two reference cells unifies their objects, so pointers that
// may target the same storage end up with equal object representatives.

type termTag interface {
	// method used to tag term constructors
	termTag()
	fmt.Stringer
}

type ttag struct{}

func (ttag) termTag() {}

type tFresh struct {
	ttag
	index int
}

func (f tFresh) String() string {
	return fmt.Sprintf("α%d", f.index)
}

type tRef struct {
	ttag
	// The term representing the referenced object.
	obj *term
}

func (r tRef) String() string {
	return fmt.Sprintf("↑ %v", find(r.obj))
}

type term struct {
	x      termTag
	parent *term
}

func (t *term) String() string {
	return fmt.Sprint(t.x)
}

func mkTerm(x termTag) *term {
	return &term{x: x}
}

func find(t *term) *term {
	if t.parent == nil {
		return t
	}
	t.parent = find(t.parent)
	return t.parent
}

// union makes `b` the parent of `a`.
func union(a, b *term) {
	if a.parent != nil || b.parent != nil {
		panic("union arguments should be representatives")
	}

	a.parent = b
}

var mkFresh = func() func() *term {
	var cntr int
	return func() *term {
		cntr++
		return mkTerm(tFresh{index: cntr})
	}
}()

func mkRef() *term {
	return mkTerm(tRef{obj: mkFresh()})
}

func unify(a, b *term) {
	a, b = find(a), find(b)
	if a == b {
		return
	}

	switch x := a.x.(type) {
	case tFresh:
		union(a, b)
	case tRef:
		switch y := b.x.(type) {
		case tFresh:
			union(b, a)
		case tRef:
			union(a, b)
			unify(x.obj, y.obj)
		default:
			log.Panicf("unable to unify terms of type %T and %T", x, y)
		}
	default:
		log.Panicf("unification of %T not implemented", x)
	}
}
