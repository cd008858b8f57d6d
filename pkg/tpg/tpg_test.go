package tpg

import (
	"bytes"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/tangle/pkg/config"
	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/instructions"
)

type grid struct {
	rows, cols int
	data       []float64
}

func (g grid) Len() int               { return len(g.data) }
func (g grid) At(i int) float64       { return g.data[i] }
func (g grid) Dims() (rows, cols int) { return g.rows, g.cols }

func flat(values ...float64) grid {
	return grid{rows: 1, cols: len(values), data: values}
}

// bidding returns a program bidding b when source 1 holds 1 at index 0
func bidding(b float64) *Program {
	return &Program{Lines: []Line{{
		Instruction: 0,
		Dest:        0,
		Operands:    []Operand{{Source: 1, Index: 0}},
		Param:       b,
	}}}
}

// newFixture builds T0 -> {A0, T1}, T1 -> {T0, A2} over actions 0..2
func newFixture() (*Graph, *Vertex, *Vertex) {
	g := NewGraph(instructions.NewSet(instructions.MultByConst{}), 3, 4)
	t0, t1 := g.AddTeam(), g.AddTeam()
	t0.Edges = []*Edge{{Program: bidding(1), Dest: g.Action(0)}, {Program: bidding(2), Dest: t1}}
	t1.Edges = []*Edge{{Program: bidding(5), Dest: t0}, {Program: bidding(0), Dest: g.Action(2)}}
	return g, t0, t1
}

func TestProgramExecute(t *testing.T) {
	set := instructions.MNIST()
	add, err := set.Index("add")
	require.NoError(t, err)
	div, err := set.Index("div")
	require.NoError(t, err)
	magn, err := set.Index("sobelMagn")
	require.NoError(t, err)
	regs := make([]float64, 4)

	t.Run("reads data sources", func(t *testing.T) {
		p := &Program{Lines: []Line{{Instruction: add, Operands: []Operand{{1, 0}, {1, 1}}}}}
		assert.Equal(t, 5.0, p.Execute(set, regs, []core.DataSource{flat(2, 3)}))
	})

	t.Run("registers start at zero", func(t *testing.T) {
		p := &Program{Lines: []Line{{Instruction: add, Operands: []Operand{{0, 0}, {1, 0}}}}}
		sources := []core.DataSource{flat(2)}
		assert.Equal(t, 2.0, p.Execute(set, regs, sources))
		assert.Equal(t, 2.0, p.Execute(set, regs, sources))
	})

	t.Run("non finite bids lose", func(t *testing.T) {
		inf := &Program{Lines: []Line{{Instruction: div, Operands: []Operand{{1, 0}, {0, 1}}}}}
		assert.Equal(t, math.Inf(-1), inf.Execute(set, regs, []core.DataSource{flat(2)}))
		nan := &Program{Lines: []Line{{Instruction: div, Operands: []Operand{{0, 1}, {0, 2}}}}}
		assert.Equal(t, math.Inf(-1), nan.Execute(set, regs, []core.DataSource{flat(2)}))
	})

	t.Run("windows are clamped at borders", func(t *testing.T) {
		img := grid{rows: 3, cols: 3, data: []float64{0, 0, 1, 0, 0, 1, 0, 0, 1}}
		center := &Program{Lines: []Line{{Instruction: magn, Operands: []Operand{{1, 4}, {1, 0}}}}}
		assert.InDelta(t, 4, center.Execute(set, regs, []core.DataSource{img}), 1e-12)

		corner := &Program{Lines: []Line{{Instruction: magn, Operands: []Operand{{1, 0}, {1, 0}}}}}
		assert.InDelta(t, 0, corner.Execute(set, regs, []core.DataSource{img}), 1e-12)
	})

	t.Run("clone is deep", func(t *testing.T) {
		p := &Program{Lines: []Line{{Instruction: add, Operands: []Operand{{1, 0}, {1, 1}}}}}
		c := p.Clone()
		c.Lines[0].Operands[0].Index = 1
		assert.Equal(t, 0, p.Lines[0].Operands[0].Index)
	})
}

func TestExecuteFromRoot(t *testing.T) {
	g, t0, t1 := newFixture()
	engine := NewExecutionEngine(g)
	sources := []core.DataSource{flat(1)}

	path, err := engine.ExecuteFromRoot(t0, sources)
	require.NoError(t, err)
	assert.Equal(t, []*Vertex{t0, t1, g.Action(2)}, path)

	action, err := NewPolicy(g, t0).Decide(sources)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), action)

	t.Run("dead end", func(t *testing.T) {
		t1.Edges = t1.Edges[:1]
		_, err := engine.ExecuteFromRoot(t0, sources)
		assert.ErrorIs(t, err, ErrNoAction)
	})
}

func TestGraphStructure(t *testing.T) {
	g, t0, t1 := newFixture()
	assert.Equal(t, 5, g.NbVertices())
	assert.Len(t, g.Teams(), 2)
	// t0 and t1 point at each other
	assert.Empty(t, g.Roots())

	t2 := g.CloneTeam(t0)
	assert.Equal(t, []*Vertex{t2}, g.Roots())
	assert.NotSame(t, t0.Edges[0].Program, t2.Edges[0].Program)

	g.RemoveVertex(t1)
	assert.Len(t, t0.Edges, 1)
	assert.Len(t, t2.Edges, 1)
	assert.ElementsMatch(t, []*Vertex{t0, t2}, g.Roots())

	g.RemoveVertex(g.Action(0))
	assert.Equal(t, 5, g.NbVertices())

	g.KeepReachable(t2)
	assert.Equal(t, []*Vertex{t2}, g.Teams())
	assert.Equal(t, 3, g.NbActions())
}

func TestMutator(t *testing.T) {
	params := config.DefaultParams().Mutation
	params.TPG.PEdgeDestinationChange = 0.5
	g := NewGraph(instructions.Pendulum(), 5, 8)
	m := NewMutator(g, params, []core.DataSource{flat(0.1, 0.2)}, rand.New(rand.NewPCG(1, 2)))

	roots := m.InitRoots(20)
	require.Len(t, roots, 20)
	for _, r := range roots {
		assert.GreaterOrEqual(t, len(r.Edges), 2)
		assert.LessOrEqual(t, len(r.Edges), params.TPG.MaxInitOutgoingEdges)
		dests := make(map[*Vertex]bool)
		for _, e := range r.Edges {
			assert.True(t, e.Dest.IsAction())
			dests[e.Dest] = true
			assert.NotEmpty(t, e.Program.Lines)
			assert.LessOrEqual(t, len(e.Program.Lines), params.Prog.MaxProgramSize)
		}
		assert.Len(t, dests, len(r.Edges))
	}

	for range 10 {
		before := len(g.Roots())
		children := m.Populate(40)
		assert.Len(t, children, max(0, 40-before))
		roots := g.Roots()
		for _, r := range roots[min(20, len(roots)):] {
			g.RemoveVertex(r)
		}
	}
	for _, team := range g.Teams() {
		assert.GreaterOrEqual(t, nbActionEdges(team), 1)
		assert.LessOrEqual(t, len(team.Edges), params.TPG.MaxOutgoingEdges)
		for _, e := range team.Edges {
			assert.NotSame(t, team, e.Dest)
			assert.GreaterOrEqual(t, len(e.Program.Lines), 1)
			assert.LessOrEqual(t, len(e.Program.Lines), params.Prog.MaxProgramSize)
		}
	}

	engine := NewExecutionEngine(g)
	for _, r := range g.Roots() {
		path, err := engine.ExecuteFromRoot(r, []core.DataSource{flat(0.3, -0.7)})
		require.NoError(t, err)
		assert.True(t, path[len(path)-1].IsAction())
	}
}

func TestMutatorIsDeterministic(t *testing.T) {
	build := func() string {
		g := NewGraph(instructions.MNIST(), 10, 8)
		m := NewMutator(g, config.DefaultParams().Mutation, []core.DataSource{flat(1, 2, 3, 4)}, rand.New(rand.NewPCG(7, 7)))
		m.InitRoots(10)
		m.Populate(20)
		var buf bytes.Buffer
		require.NoError(t, WriteDot(&buf, g))
		return buf.String()
	}
	assert.Equal(t, build(), build())
}

func TestWriteDot(t *testing.T) {
	g, t0, _ := newFixture()
	t2 := g.CloneTeam(t0)

	path := filepath.Join(t.TempDir(), "out_0000.dot")
	d := NewDotExporter(filepath.Join(t.TempDir(), "missing", "x.dot"), g)
	assert.Error(t, d.Print())
	d.SetNewFilePath(path)
	require.NoError(t, d.Print())

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	dot := string(out)
	assert.Contains(t, dot, "digraph{\n")
	assert.Contains(t, dot, "\t\tT5 [fillcolor=\"#1199bb\"]\n")
	assert.Contains(t, dot, "\t\tT3 [fillcolor=\"#66ddff\"]\n")
	assert.Contains(t, dot, "\t\tA2 [fillcolor=\"#ff3366\" shape=box margin=0.03 width=0 height=0 label=\"2\"]\n")
	assert.Contains(t, dot, "\t\tT3 -> T4 [label=\"1\"]\n")
	assert.Equal(t, 5, t2.ID)
}

func TestAnalyzePolicy(t *testing.T) {
	g, t0, _ := newFixture()
	stats := AnalyzePolicy(g, t0)
	assert.Equal(t, 2, stats.NbTeams)
	assert.Equal(t, 4, stats.NbPrograms)
	assert.Equal(t, 4, stats.NbLines)
	assert.Equal(t, map[string]int{"multByConst": 4}, stats.InstructionUses)
	assert.Equal(t, map[int]int{1: 1}, stats.SourceUses)
	assert.Equal(t, map[int64]int{0: 1, 2: 1}, stats.ActionEdges)

	var buf bytes.Buffer
	require.NoError(t, stats.WriteMarkdown(&buf))
	md := buf.String()
	assert.Contains(t, md, "- Teams: 2\n")
	assert.Contains(t, md, "- Lines: 4 (1.00 per program)\n")
	assert.Contains(t, md, "| multByConst | 4 |\n")
	assert.Contains(t, md, "| 2 | 1 |\n")
}
