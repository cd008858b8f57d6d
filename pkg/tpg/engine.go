package tpg

import (
	"errors"
	"fmt"
	"math"

	"github.com/boristopalov/tangle/pkg/core"
)

var ErrNoAction = errors.New("no action reachable")

// ExecutionEngine walks a graph. An engine owns its registers and must not
// be shared between goroutines.
type ExecutionEngine struct {
	graph *Graph
	regs  []float64
}

func NewExecutionEngine(g *Graph) *ExecutionEngine {
	return &ExecutionEngine{graph: g, regs: make([]float64, g.NbRegisters)}
}

// ExecuteFromRoot follows, from each team, the edge whose program bids
// highest among edges to vertices not yet visited, until an action is
// reached. The returned path starts with root and ends with the action.
func (e *ExecutionEngine) ExecuteFromRoot(root *Vertex, sources []core.DataSource) ([]*Vertex, error) {
	path := []*Vertex{root}
	visited := map[*Vertex]bool{root: true}
	cur := root
	for !cur.IsAction() {
		var next *Vertex
		best := math.Inf(-1)
		for _, edge := range cur.Edges {
			if visited[edge.Dest] {
				continue
			}
			bid := edge.Program.Execute(e.graph.Set, e.regs, sources)
			if next == nil || bid > best {
				next, best = edge.Dest, bid
			}
		}
		if next == nil {
			return path, fmt.Errorf("%w from team %d", ErrNoAction, root.ID)
		}
		visited[next] = true
		path = append(path, next)
		cur = next
	}
	return path, nil
}

// Policy decides with the graph below one root
type Policy struct {
	Engine *ExecutionEngine
	Root   *Vertex
}

func NewPolicy(g *Graph, root *Vertex) *Policy {
	return &Policy{Engine: NewExecutionEngine(g), Root: root}
}

func (p *Policy) Decide(sources []core.DataSource) (uint64, error) {
	path, err := p.Engine.ExecuteFromRoot(p.Root, sources)
	if err != nil {
		return 0, err
	}
	return uint64(path[len(path)-1].Action), nil
}

var _ core.Policy = (*Policy)(nil)
