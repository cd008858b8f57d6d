package tpg

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
)

// PolicyStats describes the subgraph reachable from one root
type PolicyStats struct {
	NbTeams         int
	NbPrograms      int
	NbLines         int
	InstructionUses map[string]int
	SourceUses      map[int]int // distinct elements read per operand source, 0 is the register file
	ActionEdges     map[int64]int
}

func AnalyzePolicy(g *Graph, root *Vertex) PolicyStats {
	s := PolicyStats{
		InstructionUses: make(map[string]int),
		SourceUses:      make(map[int]int),
		ActionEdges:     make(map[int64]int),
	}
	seenOperand := make(map[Operand]bool)
	seenProgram := make(map[*Program]bool)
	for _, v := range g.Reachable(root) {
		if v.IsAction() {
			continue
		}
		s.NbTeams++
		for _, e := range v.Edges {
			if e.Dest.IsAction() {
				s.ActionEdges[e.Dest.Action]++
			}
			if seenProgram[e.Program] {
				continue
			}
			seenProgram[e.Program] = true
			s.NbPrograms++
			s.NbLines += len(e.Program.Lines)
			for _, l := range e.Program.Lines {
				instr := g.Set.At(l.Instruction)
				s.InstructionUses[instr.Name()]++
				for _, op := range l.Operands[:instr.NbOperands()] {
					if !seenOperand[op] {
						seenOperand[op] = true
						s.SourceUses[op.Source]++
					}
				}
			}
		}
	}
	return s
}

// WriteMarkdown renders the statistics as a markdown document
func (s PolicyStats) WriteMarkdown(w io.Writer) error {
	bw := bufio.NewWriter(w)
	avg := 0.0
	if s.NbPrograms > 0 {
		avg = float64(s.NbLines) / float64(s.NbPrograms)
	}
	fmt.Fprintln(bw, "# Policy statistics")
	fmt.Fprintln(bw)
	fmt.Fprintf(bw, "- Teams: %d\n", s.NbTeams)
	fmt.Fprintf(bw, "- Programs: %d\n", s.NbPrograms)
	fmt.Fprintf(bw, "- Lines: %d (%.2f per program)\n", s.NbLines, avg)
	fmt.Fprintf(bw, "- Actions: %d\n", len(s.ActionEdges))
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "## Instructions")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| instruction | uses |")
	fmt.Fprintln(bw, "|---|---|")
	for _, k := range slices.Sorted(maps.Keys(s.InstructionUses)) {
		fmt.Fprintf(bw, "| %s | %d |\n", k, s.InstructionUses[k])
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "## Data sources")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| source | elements |")
	fmt.Fprintln(bw, "|---|---|")
	for _, k := range slices.Sorted(maps.Keys(s.SourceUses)) {
		fmt.Fprintf(bw, "| %d | %d |\n", k, s.SourceUses[k])
	}
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "## Actions")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "| action | edges |")
	fmt.Fprintln(bw, "|---|---|")
	for _, k := range slices.Sorted(maps.Keys(s.ActionEdges)) {
		fmt.Fprintf(bw, "| %d | %d |\n", k, s.ActionEdges[k])
	}
	fmt.Fprintln(bw)
	return bw.Flush()
}
