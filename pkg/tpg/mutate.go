package tpg

import (
	"math/rand/v2"

	"github.com/boristopalov/tangle/pkg/config"
	"github.com/boristopalov/tangle/pkg/core"
)

// maxAttempts bounds the retry loops that wait for a mutation to happen
const maxAttempts = 100

// Mutator creates and alters programs and teams of one graph
type Mutator struct {
	graph  *Graph
	params config.Mutation
	rng    *rand.Rand
	lens   []int // element count per operand source, registers first
}

func NewMutator(g *Graph, params config.Mutation, sources []core.DataSource, rng *rand.Rand) *Mutator {
	lens := []int{g.NbRegisters}
	for _, s := range sources {
		lens = append(lens, s.Len())
	}
	return &Mutator{graph: g, params: params, rng: rng, lens: lens}
}

func (m *Mutator) randomOperand() Operand {
	src := m.rng.IntN(len(m.lens))
	return Operand{Source: src, Index: m.rng.IntN(m.lens[src])}
}

func (m *Mutator) randomLine() Line {
	l := Line{
		Instruction: m.rng.IntN(m.graph.Set.Len()),
		Dest:        m.rng.IntN(m.graph.NbRegisters),
		Operands:    make([]Operand, m.graph.Set.MaxOperands()),
		Param:       m.rng.NormFloat64(),
	}
	for i := range l.Operands {
		l.Operands[i] = m.randomOperand()
	}
	return l
}

func (m *Mutator) RandomProgram() *Program {
	p := &Program{}
	for range 1 + m.rng.IntN(m.params.Prog.MaxProgramSize) {
		p.Lines = append(p.Lines, m.randomLine())
	}
	return p
}

func (m *Mutator) alterLine(l *Line) {
	switch m.rng.IntN(4) {
	case 0:
		l.Instruction = m.rng.IntN(m.graph.Set.Len())
	case 1:
		l.Dest = m.rng.IntN(m.graph.NbRegisters)
	case 2:
		if len(l.Operands) > 0 {
			l.Operands[m.rng.IntN(len(l.Operands))] = m.randomOperand()
			return
		}
		l.Param = m.rng.NormFloat64()
	default:
		l.Param = m.rng.NormFloat64()
	}
}

// MutateProgram applies line deletion, insertion, alteration and swap, each
// with its probability, until at least one of them happened.
func (m *Mutator) MutateProgram(p *Program) {
	prog := m.params.Prog
	for range maxAttempts {
		changed := false
		if len(p.Lines) > 1 && m.rng.Float64() < prog.PDelete {
			i := m.rng.IntN(len(p.Lines))
			p.Lines = append(p.Lines[:i], p.Lines[i+1:]...)
			changed = true
		}
		if len(p.Lines) < prog.MaxProgramSize && m.rng.Float64() < prog.PAdd {
			i := m.rng.IntN(len(p.Lines) + 1)
			p.Lines = append(p.Lines[:i], append([]Line{m.randomLine()}, p.Lines[i:]...)...)
			changed = true
		}
		if m.rng.Float64() < prog.PMutate {
			m.alterLine(&p.Lines[m.rng.IntN(len(p.Lines))])
			changed = true
		}
		if len(p.Lines) > 1 && m.rng.Float64() < prog.PSwap {
			i, j := m.rng.IntN(len(p.Lines)), m.rng.IntN(len(p.Lines))
			p.Lines[i], p.Lines[j] = p.Lines[j], p.Lines[i]
			changed = true
		}
		if changed {
			return
		}
	}
}

// InitRoots adds n teams, each with 2 to maxInitOutgoingEdges edges to
// distinct actions guarded by random programs.
func (m *Mutator) InitRoots(n int) []*Vertex {
	nbActions := m.graph.NbActions()
	maxInit := m.params.TPG.MaxInitOutgoingEdges
	teams := make([]*Vertex, 0, n)
	for range n {
		t := m.graph.AddTeam()
		nbEdges := min(2+m.rng.IntN(maxInit-1), nbActions)
		for _, a := range m.rng.Perm(nbActions)[:nbEdges] {
			t.Edges = append(t.Edges, &Edge{Program: m.RandomProgram(), Dest: m.graph.Action(a)})
		}
		teams = append(teams, t)
	}
	return teams
}

// Populate clones and mutates random roots until the graph holds target
// roots or as many children as missing roots were added. Children only ever
// point to teams that existed before the call.
func (m *Mutator) Populate(target int) []*Vertex {
	roots := m.graph.Roots()
	existing := m.graph.Teams()
	if len(roots) == 0 {
		return nil
	}
	var children []*Vertex
	for range target - len(roots) {
		parent := roots[m.rng.IntN(len(roots))]
		child := m.graph.CloneTeam(parent)
		m.MutateTeam(child, existing)
		children = append(children, child)
	}
	return children
}

// MutateTeam edits the edges of team. Every team keeps at least one edge
// to an action.
func (m *Mutator) MutateTeam(team *Vertex, candidates []*Vertex) {
	p := m.params.TPG

	if len(team.Edges) > 2 && m.rng.Float64() < p.PEdgeDeletion {
		i := m.rng.IntN(len(team.Edges))
		if !team.Edges[i].Dest.IsAction() || nbActionEdges(team) > 1 {
			team.Edges = append(team.Edges[:i], team.Edges[i+1:]...)
		}
	}

	if len(team.Edges) < p.MaxOutgoingEdges && len(candidates) > 0 && m.rng.Float64() < p.PEdgeAddition {
		donor := candidates[m.rng.IntN(len(candidates))]
		if len(donor.Edges) > 0 {
			e := donor.Edges[m.rng.IntN(len(donor.Edges))]
			if e.Dest != team {
				team.Edges = append(team.Edges, &Edge{Program: e.Program.Clone(), Dest: e.Dest})
			}
		}
	}

	for range maxAttempts {
		mutated := false
		for _, e := range team.Edges {
			if m.rng.Float64() >= p.PProgramMutation {
				continue
			}
			m.MutateProgram(e.Program)
			mutated = true
			if m.rng.Float64() < p.PEdgeDestinationChange {
				m.redirect(team, e, candidates)
			}
		}
		if mutated {
			return
		}
	}
}

func (m *Mutator) redirect(team *Vertex, e *Edge, candidates []*Vertex) {
	lastAction := e.Dest.IsAction() && nbActionEdges(team) == 1
	var teams []*Vertex
	for _, c := range candidates {
		if c != team {
			teams = append(teams, c)
		}
	}
	if lastAction || len(teams) == 0 || m.rng.Float64() < m.params.TPG.PEdgeDestinationIsAction {
		e.Dest = m.graph.Action(m.rng.IntN(m.graph.NbActions()))
		return
	}
	e.Dest = teams[m.rng.IntN(len(teams))]
}
