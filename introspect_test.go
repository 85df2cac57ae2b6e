package pointsto_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valset/pointsto"
)

func TestPrint(t *testing.T) {
	db, pkg := buildDB(t, crossFunctionSource)
	engine := pointsto.NewEngine(db, pointsto.Options{})

	out := printEngine(engine)
	assert.Contains(t, out, "V: ")
	assert.Contains(t, out, "points to ->")
	assert.Contains(t, out, pkg.Var("g").String())
}

func TestDrawPointsToSetsDistribution(t *testing.T) {
	db, _ := buildDB(t, crossFunctionSource)
	engine := pointsto.NewEngine(db, pointsto.Options{})

	var sb strings.Builder
	engine.DrawPointsToSetsDistribution(&sb, 2)
	out := sb.String()

	assert.Contains(t, out, "PtS Size")
	assert.Contains(t, out, "Number of sets")
	assert.Contains(t, out, "Peek into one of the biggest points sets.")

	sb.Reset()
	engine.DrawPointsToSetsDistribution(&sb, 0)
	assert.NotContains(t, sb.String(), "Peek into")
}

func TestPeekClampsRemainder(t *testing.T) {
	db, pkg := buildDB(t, `
		package main

		func main() {
			x := new(*int)
			p := new(int)
			*x = p
			q := *x
			println(q)
		}`)

	main := pkg.Func("main")
	p := allocs(main)[1]

	engine := pointsto.NewEngine(db, pointsto.Options{})
	require.Equal(t, pointsto.MustAlias, engine.Alias(p, loads(main)[0], nil))

	var sb strings.Builder
	engine.PeekIntoPointsToSet(&sb, p, 1)
	out := sb.String()
	assert.Contains(t, out, "Value: ")
	assert.Contains(t, out, "... and 1 more")

	// A peek wider than the set must not report a negative remainder.
	sb.Reset()
	engine.PeekIntoPointsToSet(&sb, p, 100)
	assert.NotContains(t, sb.String(), "and -")
}
