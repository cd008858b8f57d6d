// Package tpg holds tangled program graphs: teams of bidding programs whose
// edges lead to other teams or to actions.
package tpg

import (
	"slices"

	"github.com/boristopalov/tangle/pkg/instructions"
)

// Vertex is a team when Action is negative, an action otherwise
type Vertex struct {
	ID     int
	Action int64
	Edges  []*Edge
}

func (v *Vertex) IsAction() bool {
	return v.Action >= 0
}

// Edge is guarded by a program; the destination with the highest bid wins
type Edge struct {
	Program *Program
	Dest    *Vertex
}

type Graph struct {
	Set         *instructions.Set
	NbRegisters int

	vertices []*Vertex
	actions  []*Vertex
	nextID   int
}

// NewGraph returns a graph holding one action vertex per action
func NewGraph(set *instructions.Set, nbActions, nbRegisters int) *Graph {
	g := &Graph{Set: set, NbRegisters: nbRegisters}
	for a := range nbActions {
		v := g.add(int64(a))
		g.actions = append(g.actions, v)
	}
	return g
}

func (g *Graph) add(action int64) *Vertex {
	v := &Vertex{ID: g.nextID, Action: action}
	g.nextID++
	g.vertices = append(g.vertices, v)
	return v
}

func (g *Graph) AddTeam() *Vertex {
	return g.add(-1)
}

// Action returns the vertex of action id
func (g *Graph) Action(id int) *Vertex {
	return g.actions[id]
}

func (g *Graph) NbActions() int {
	return len(g.actions)
}

func (g *Graph) NbVertices() int {
	return len(g.vertices)
}

func (g *Graph) Vertices() []*Vertex {
	return slices.Clone(g.vertices)
}

func (g *Graph) Teams() []*Vertex {
	var teams []*Vertex
	for _, v := range g.vertices {
		if !v.IsAction() {
			teams = append(teams, v)
		}
	}
	return teams
}

// Roots returns the teams no edge leads to, in creation order
func (g *Graph) Roots() []*Vertex {
	targeted := make(map[*Vertex]bool)
	for _, v := range g.vertices {
		for _, e := range v.Edges {
			targeted[e.Dest] = true
		}
	}
	var roots []*Vertex
	for _, v := range g.vertices {
		if !v.IsAction() && !targeted[v] {
			roots = append(roots, v)
		}
	}
	return roots
}

// RemoveVertex deletes a team and every edge leading to it. Action vertices
// are never removed.
func (g *Graph) RemoveVertex(v *Vertex) {
	if v.IsAction() {
		return
	}
	g.vertices = slices.DeleteFunc(g.vertices, func(o *Vertex) bool { return o == v })
	for _, o := range g.vertices {
		o.Edges = slices.DeleteFunc(o.Edges, func(e *Edge) bool { return e.Dest == v })
	}
}

// Reachable returns the vertices reachable from root, root included
func (g *Graph) Reachable(root *Vertex) []*Vertex {
	seen := map[*Vertex]bool{root: true}
	order := []*Vertex{root}
	for i := 0; i < len(order); i++ {
		for _, e := range order[i].Edges {
			if !seen[e.Dest] {
				seen[e.Dest] = true
				order = append(order, e.Dest)
			}
		}
	}
	return order
}

// KeepReachable removes every team that root cannot reach
func (g *Graph) KeepReachable(root *Vertex) {
	keep := make(map[*Vertex]bool)
	for _, v := range g.Reachable(root) {
		keep[v] = true
	}
	g.vertices = slices.DeleteFunc(g.vertices, func(v *Vertex) bool {
		return !v.IsAction() && !keep[v]
	})
}

// CloneTeam adds a team with a copy of every outgoing edge of src
func (g *Graph) CloneTeam(src *Vertex) *Vertex {
	t := g.AddTeam()
	for _, e := range src.Edges {
		t.Edges = append(t.Edges, &Edge{Program: e.Program.Clone(), Dest: e.Dest})
	}
	return t
}

func nbActionEdges(v *Vertex) int {
	n := 0
	for _, e := range v.Edges {
		if e.Dest.IsAction() {
			n++
		}
	}
	return n
}
