package pointsto

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/valset/pointsto/internal/slices"
)

// valueString renders a value for human consumption, qualified with
// its containing function where it has one.
func valueString(v ssa.Value) string {
	if fun := enclosingFunction(v); fun != nil {
		return fmt.Sprintf("%v: %s = %v", fun, v.Name(), v)
	}
	return v.String()
}

func sortedValueStrings(vs []ssa.Value) []string {
	strs := slices.Map(vs, valueString)
	sort.Strings(strs)
	return strs
}

// Print dumps every tracked value with its points-to set. Output is
// ordered by the rendered value strings, so equal engine states print
// identically.
func (e *Engine) Print(w io.Writer) {
	type entry struct {
		key string
		set *ValueSet
	}
	entries := make([]entry, 0, e.store.len())
	for v, set := range e.store.sets {
		entries = append(entries, entry{valueString(v), set})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	for _, en := range entries {
		fmt.Fprintf(w, "V: %s\n", en.key)
		for _, member := range sortedValueStrings(en.set.Values()) {
			fmt.Fprintf(w, "\tpoints to -> %s\n", member)
		}
	}
}

// PeekIntoPointsToSet prints the key value and up to peek members of
// its set, then the count of the remaining members.
func (e *Engine) PeekIntoPointsToSet(w io.Writer, v ssa.Value, peek int) {
	set := e.store.find(v)
	fmt.Fprintf(w, "Value: %s\n", valueString(v))
	fmt.Fprintln(w, "aliases with: {")
	for i, member := range sortedValueStrings(set.Values()) {
		if i >= peek {
			if rest := set.Len() - peek; rest > 0 {
				fmt.Fprintf(w, "... and %d more\n", rest)
			}
			break
		}
		fmt.Fprintln(w, member)
	}
	fmt.Fprintln(w, "}")
}

// DrawPointsToSetsDistribution renders a histogram of points-to set
// sizes with bars normalized to 50 columns. If peek is positive, one
// key from the largest-size bucket is additionally peeked into.
func (e *Engine) DrawPointsToSetsDistribution(w io.Writer, peek int) {
	sizeCounts := make(map[int]int)
	for _, set := range e.store.sets {
		sizeCounts[set.Len()]++
	}

	sizes := make([]int, 0, len(sizeCounts))
	total := 0
	for size, count := range sizeCounts {
		sizes = append(sizes, size)
		total += count
	}
	sort.Ints(sizes)

	fmt.Fprintf(w, "%10s  %-50s %10s\n", "PtS Size", "Distribution", "Number of sets")
	if total == 0 {
		fmt.Fprintln(w)
		return
	}
	for _, size := range sizes {
		count := sizeCounts[size]
		bar := strings.Repeat("*", count*50/total)
		fmt.Fprintf(w, "%10d |%-50s %-10d\n", size, bar, count)
	}
	fmt.Fprintln(w)

	if peek > 0 && len(sizes) > 0 {
		largest := sizes[len(sizes)-1]
		for _, v := range e.sortedStoreKeys() {
			if e.store.sets[v].Len() == largest {
				fmt.Fprintln(w, "Peek into one of the biggest points sets.")
				e.PeekIntoPointsToSet(w, v, peek)
				return
			}
		}
	}
}

func (e *Engine) sortedStoreKeys() []ssa.Value {
	keys := make([]ssa.Value, 0, e.store.len())
	for v := range e.store.sets {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool {
		return valueString(keys[i]) < valueString(keys[j])
	})
	return keys
}
