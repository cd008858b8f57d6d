package tpg

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// DotExporter writes a graph in Graphviz format to a file path that can be
// changed between prints.
type DotExporter struct {
	path  string
	graph *Graph
}

func NewDotExporter(path string, g *Graph) *DotExporter {
	return &DotExporter{path: path, graph: g}
}

func (d *DotExporter) SetNewFilePath(path string) {
	d.path = path
}

func (d *DotExporter) Print() error {
	f, err := os.Create(d.path)
	if err != nil {
		return fmt.Errorf("create dot file: %w", err)
	}
	if err := WriteDot(f, d.graph); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func vertexName(v *Vertex) string {
	if v.IsAction() {
		return fmt.Sprintf("A%d", v.ID)
	}
	return fmt.Sprintf("T%d", v.ID)
}

// WriteDot prints roots, inner teams and actions as nodes and edges labelled
// with their program size
func WriteDot(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	roots := make(map[*Vertex]bool)
	for _, r := range g.Roots() {
		roots[r] = true
	}

	fmt.Fprintln(bw, "digraph{")
	fmt.Fprintln(bw, "\tgraph[pad = \"0.212, 0.055\" bgcolor = lightgray]")
	fmt.Fprintln(bw, "\tnode[shape=circle style = filled label = \"\"]")
	for _, v := range g.vertices {
		switch {
		case v.IsAction():
			fmt.Fprintf(bw, "\t\t%s [fillcolor=\"#ff3366\" shape=box margin=0.03 width=0 height=0 label=\"%d\"]\n", vertexName(v), v.Action)
		case roots[v]:
			fmt.Fprintf(bw, "\t\t%s [fillcolor=\"#1199bb\"]\n", vertexName(v))
		default:
			fmt.Fprintf(bw, "\t\t%s [fillcolor=\"#66ddff\"]\n", vertexName(v))
		}
	}
	for _, v := range g.vertices {
		for _, e := range v.Edges {
			fmt.Fprintf(bw, "\t\t%s -> %s [label=\"%d\"]\n", vertexName(v), vertexName(e.Dest), len(e.Program.Lines))
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
