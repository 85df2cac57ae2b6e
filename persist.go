package pointsto

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/tools/go/ssa"
)

// The persistence format is plain text with three labeled sections:
//
//	[ValueIds]
//	<id>: <pretty form>          informational only, skipped on load
//	[AnalyzedFunctions]
//	<id> <id> ...                a single space-separated line
//	[PointsToSets]
//	<id> <id> ...                one line per unique set object
//
// IDs are assigned by IRDB.WalkValues order, so saving and loading
// must run against byte-identical IR or the IDs desynchronize
// silently.

const (
	sectionValueIds          = "[ValueIds]"
	sectionAnalyzedFunctions = "[AnalyzedFunctions]"
	sectionPointsToSets      = "[PointsToSets]"
)

// Save writes the engine state to path using db's traversal order for
// value IDs.
func (e *Engine) Save(path string, db *IRDB) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("saving points-to sets to %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	ids := make(map[ssa.Value]int)
	fmt.Fprintln(w, sectionValueIds)
	db.WalkValues(func(v ssa.Value) {
		id := len(ids)
		ids[v] = id
		fmt.Fprintf(w, "%d: %s\n", id, valueString(v))
	})

	fmt.Fprintln(w, sectionAnalyzedFunctions)
	var funIds []int
	for fun := range e.analyzed {
		id, found := ids[fun]
		if !found {
			log.Debugf("analyzed function %s has no traversal id, skipping", fun)
			continue
		}
		funIds = append(funIds, id)
	}
	sort.Ints(funIds)
	for _, id := range funIds {
		fmt.Fprintf(w, "%d ", id)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, sectionPointsToSets)
	printed := make(map[*ValueSet]struct{})
	// Iterate keys in id order so repeated saves of equal state are
	// byte-identical.
	for _, key := range e.sortedKeys(ids) {
		set := e.store.sets[key]
		if _, done := printed[set]; done {
			continue
		}
		printed[set] = struct{}{}

		var memberIds []int
		for _, v := range set.Values() {
			if id, found := ids[v]; found {
				memberIds = append(memberIds, id)
			}
		}
		if len(memberIds) == 0 {
			continue
		}
		sort.Ints(memberIds)
		for _, id := range memberIds {
			fmt.Fprintf(w, "%d ", id)
		}
		fmt.Fprintln(w)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("saving points-to sets to %s: %w", path, err)
	}
	return f.Close()
}

func (e *Engine) sortedKeys(ids map[ssa.Value]int) []ssa.Value {
	keys := make([]ssa.Value, 0, len(e.store.sets))
	for v := range e.store.sets {
		if _, found := ids[v]; found {
			keys = append(keys, v)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return ids[keys[i]] < ids[keys[j]] })
	return keys
}

// NewEngineFromFile restores a previously saved engine against db.
// The file must have been produced by Save over byte-identical IR. On
// error the partially populated engine is discarded.
func NewEngineFromFile(db *IRDB, path string, opts Options) (*Engine, error) {
	e := newEmptyEngine(db, opts)
	if err := e.load(path, db); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load(path string, db *IRDB) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("loading points-to sets from %s: %w", path, err)
	}
	defer f.Close()

	var idToValue []ssa.Value
	db.WalkValues(func(v ssa.Value) {
		idToValue = append(idToValue, v)
	})

	lookup := func(field string) (ssa.Value, error) {
		id, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("loading points-to sets from %s: bad value id %q: %w", path, field, err)
		}
		if id < 0 || id >= len(idToValue) {
			return nil, fmt.Errorf("loading points-to sets from %s: value id %d out of range", path, id)
		}
		return idToValue[id], nil
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	// The [ValueIds] section is informational only.
	for sc.Scan() {
		if sc.Text() == sectionAnalyzedFunctions {
			break
		}
	}

	for sc.Scan() {
		line := sc.Text()
		if line == sectionPointsToSets {
			break
		}
		for _, field := range strings.Fields(line) {
			v, err := lookup(field)
			if err != nil {
				return err
			}
			fun, ok := v.(*ssa.Function)
			if !ok {
				return fmt.Errorf("loading points-to sets from %s: id %s is not a function", path, field)
			}
			e.analyzed[fun] = struct{}{}
		}
	}

	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		set := newValueSet()
		for _, field := range fields {
			v, err := lookup(field)
			if err != nil {
				return err
			}
			set.insert(v)
			e.store.sets[v] = set
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("loading points-to sets from %s: %w", path, err)
	}

	return nil
}
