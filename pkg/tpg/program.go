package tpg

import (
	"math"
	"slices"

	"github.com/boristopalov/tangle/pkg/core"
	"github.com/boristopalov/tangle/pkg/instructions"
)

// Operand addresses one value, or one 3x3 window, of a source. Source 0 is
// the register file; source i > 0 is the (i-1)th environment data source.
type Operand struct {
	Source int
	Index  int
}

// Line stores MaxOperands operands; an instruction reads the first
// NbOperands of them.
type Line struct {
	Instruction int
	Dest        int
	Operands    []Operand
	Param       float64
}

// Program is a register-machine program. Its bid is register 0 after the
// last line.
type Program struct {
	Lines []Line
}

func (p *Program) Clone() *Program {
	c := &Program{Lines: make([]Line, len(p.Lines))}
	for i, l := range p.Lines {
		l.Operands = slices.Clone(l.Operands)
		c.Lines[i] = l
	}
	return c
}

type registers []float64

func (r registers) Len() int               { return len(r) }
func (r registers) At(i int) float64       { return r[i] }
func (r registers) Dims() (rows, cols int) { return 1, len(r) }

// fetch appends the value at index, or the 3x3 window centred on it with
// borders clamped, to args.
func fetch(args []float64, src core.DataSource, index int, window bool) []float64 {
	if !window {
		return append(args, src.At(index))
	}
	rows, cols := src.Dims()
	row, col := index/cols, index%cols
	for dr := -1; dr <= 1; dr++ {
		r := min(max(row+dr, 0), rows-1)
		for dc := -1; dc <= 1; dc++ {
			c := min(max(col+dc, 0), cols-1)
			args = append(args, src.At(r*cols+c))
		}
	}
	return args
}

// Execute runs the program on sources using regs as scratch space.
// Non-finite results bid -Inf.
func (p *Program) Execute(set *instructions.Set, regs []float64, sources []core.DataSource) float64 {
	clear(regs)
	var buf [18]float64
	for _, l := range p.Lines {
		instr := set.At(l.Instruction)
		args := buf[:0]
		for _, op := range l.Operands[:instr.NbOperands()] {
			var src core.DataSource = registers(regs)
			if op.Source > 0 {
				src = sources[op.Source-1]
			}
			args = fetch(args, src, op.Index, instr.Window())
		}
		regs[l.Dest] = instr.Execute(args, l.Param)
	}
	bid := regs[0]
	if math.IsNaN(bid) || math.IsInf(bid, 0) {
		return math.Inf(-1)
	}
	return bid
}
