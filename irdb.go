package pointsto

import (
	"go/types"
	"sort"

	"golang.org/x/tools/go/ssa"
)

// IRDB is the engine's view of an SSA program. It fixes a deterministic
// order on modules (packages) and their members, and indexes the users
// of package-level globals and functions, which go/ssa does not track.
type IRDB struct {
	Prog    *ssa.Program
	modules []*Module

	// Instructions referring to a global or function operand.
	users map[ssa.Value][]ssa.Instruction
}

// Module groups the globals and functions of a single SSA package.
// Functions are listed in name order, each followed by its anonymous
// functions in declaration order.
type Module struct {
	Pkg     *ssa.Package
	Globals []*ssa.Global
	Funcs   []*ssa.Function
}

// NewIRDB indexes prog. The program must be built.
func NewIRDB(prog *ssa.Program) *IRDB {
	db := &IRDB{
		Prog:  prog,
		users: make(map[ssa.Value][]ssa.Instruction),
	}

	pkgs := prog.AllPackages()
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Pkg.Path() < pkgs[j].Pkg.Path()
	})

	for _, pkg := range pkgs {
		mod := &Module{Pkg: pkg}

		names := make([]string, 0, len(pkg.Members))
		for name := range pkg.Members {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			switch m := pkg.Members[name].(type) {
			case *ssa.Global:
				mod.Globals = append(mod.Globals, m)
			case *ssa.Function:
				mod.addFunc(m)
			}
		}

		db.modules = append(db.modules, mod)
	}

	for _, mod := range db.modules {
		for _, fun := range mod.Funcs {
			db.indexUsers(fun)
		}
	}

	return db
}

func (mod *Module) addFunc(fun *ssa.Function) {
	mod.Funcs = append(mod.Funcs, fun)
	for _, anon := range fun.AnonFuncs {
		mod.addFunc(anon)
	}
}

func (db *IRDB) indexUsers(fun *ssa.Function) {
	var rands []*ssa.Value
	for _, block := range fun.Blocks {
		for _, insn := range block.Instrs {
			rands = insn.Operands(rands[:0])
			for _, rand := range rands {
				if rand == nil || *rand == nil {
					continue
				}
				switch (*rand).(type) {
				case *ssa.Global, *ssa.Function:
					db.users[*rand] = append(db.users[*rand], insn)
				}
			}
		}
	}
}

// Modules returns the packages of the program in traversal order.
func (db *IRDB) Modules() []*Module { return db.modules }

// UsersOf returns the instructions that mention the given global object
// as an operand, in traversal order.
func (db *IRDB) UsersOf(v ssa.Value) []ssa.Instruction { return db.users[v] }

// ModuleOf returns the module containing fun, or nil for synthetic
// functions outside any indexed package.
func (db *IRDB) ModuleOf(fun *ssa.Function) *Module {
	pkg := fun.Package()
	for pkg == nil && fun.Parent() != nil {
		fun = fun.Parent()
		pkg = fun.Package()
	}
	if pkg == nil {
		return nil
	}
	for _, mod := range db.modules {
		if mod.Pkg == pkg {
			return mod
		}
	}
	return nil
}

// WalkValues visits every traversed value exactly once in a fixed
// order: per module, globals first, then for each function the
// function value, its pointer-typed parameters and free variables, and
// its instruction values in block order. Persistence IDs are assigned
// by this order, so any change to it invalidates saved files.
func (db *IRDB) WalkValues(visit func(ssa.Value)) {
	for _, mod := range db.modules {
		for _, g := range mod.Globals {
			visit(g)
		}
		for _, fun := range mod.Funcs {
			visit(fun)
			for _, param := range fun.Params {
				if PointerLike(param.Type()) {
					visit(param)
				}
			}
			for _, fv := range fun.FreeVars {
				if PointerLike(fv.Type()) {
					visit(fv)
				}
			}
			for _, block := range fun.Blocks {
				for _, insn := range block.Instrs {
					if v, ok := insn.(ssa.Value); ok {
						visit(v)
					}
				}
			}
		}
	}
}

// PointerLike reports whether values of type t may hold references to
// memory objects.
func PointerLike(t types.Type) bool {
	switch t := t.(type) {
	case *types.Pointer,
		*types.Map,
		*types.Chan,
		*types.Slice,
		*types.Interface,
		*types.Signature:
		return true
	case *types.Basic:
		return t.Kind() == types.UnsafePointer
	case *types.Named:
		return PointerLike(t.Underlying())
	default:
		return false
	}
}

// IsInterestingPointer reports whether v is admissible as an engine
// key: a pointer-like value that is not a constant literal or builtin.
// Functions and globals are interesting; function pointer magic makes
// them targets too.
func IsInterestingPointer(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.Const, *ssa.Builtin:
		return false
	case *ssa.Function, *ssa.Global:
		return true
	}
	return PointerLike(v.Type())
}

// isGlobalObject reports whether v is a package-level object with
// users potentially spread over many functions.
func isGlobalObject(v ssa.Value) bool {
	switch v.(type) {
	case *ssa.Global, *ssa.Function:
		return true
	}
	return false
}

// enclosingFunction returns the function a value is defined in, or nil
// for package-level values.
func enclosingFunction(v ssa.Value) *ssa.Function {
	if isGlobalObject(v) {
		return nil
	}
	return v.Parent()
}
