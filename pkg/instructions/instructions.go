// Package instructions defines the operations programs are built from.
package instructions

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnknownInstruction = errors.New("unknown instruction")

// Instruction computes one value from its operands. Scalar instructions
// receive NbOperands values; window instructions receive NbOperands 3x3
// windows flattened row-major, 9 values each.
type Instruction interface {
	Name() string
	NbOperands() int
	Window() bool
	Execute(args []float64, param float64) float64
}

// Const takes no operand
type Const struct {
	name  string
	value float64
}

func NewConst(name string, value float64) *Const {
	return &Const{name: name, value: value}
}

func (c *Const) Name() string                           { return c.name }
func (c *Const) NbOperands() int                        { return 0 }
func (c *Const) Window() bool                           { return false }
func (c *Const) Execute(_ []float64, _ float64) float64 { return c.value }

type Unary struct {
	name string
	fn   func(a float64) float64
}

func NewUnary(name string, fn func(a float64) float64) *Unary {
	return &Unary{name: name, fn: fn}
}

func (u *Unary) Name() string                              { return u.name }
func (u *Unary) NbOperands() int                           { return 1 }
func (u *Unary) Window() bool                              { return false }
func (u *Unary) Execute(args []float64, _ float64) float64 { return u.fn(args[0]) }

type Binary struct {
	name string
	fn   func(a, b float64) float64
}

func NewBinary(name string, fn func(a, b float64) float64) *Binary {
	return &Binary{name: name, fn: fn}
}

func (b *Binary) Name() string                              { return b.name }
func (b *Binary) NbOperands() int                           { return 2 }
func (b *Binary) Window() bool                              { return false }
func (b *Binary) Execute(args []float64, _ float64) float64 { return b.fn(args[0], args[1]) }

// Window3x3 reads one 3x3 neighbourhood of a 2D source
type Window3x3 struct {
	name string
	fn   func(w *[3][3]float64) float64
}

func NewWindow3x3(name string, fn func(w *[3][3]float64) float64) *Window3x3 {
	return &Window3x3{name: name, fn: fn}
}

func (w *Window3x3) Name() string    { return w.name }
func (w *Window3x3) NbOperands() int { return 1 }
func (w *Window3x3) Window() bool    { return true }

func (w *Window3x3) Execute(args []float64, _ float64) float64 {
	var win [3][3]float64
	for i := 0; i < 9; i++ {
		win[i/3][i%3] = args[i]
	}
	return w.fn(&win)
}

// MultByConst multiplies its operand by the line parameter
type MultByConst struct{}

func (MultByConst) Name() string    { return "multByConst" }
func (MultByConst) NbOperands() int { return 1 }
func (MultByConst) Window() bool    { return false }

func (MultByConst) Execute(args []float64, param float64) float64 {
	return args[0] * param
}

// Set is an ordered instruction list; programs refer to instructions by index
type Set struct {
	instructions []Instruction
}

func NewSet(instrs ...Instruction) *Set {
	s := &Set{}
	for _, i := range instrs {
		s.Add(i)
	}
	return s
}

func (s *Set) Add(i Instruction) {
	s.instructions = append(s.instructions, i)
}

func (s *Set) Len() int {
	return len(s.instructions)
}

func (s *Set) At(i int) Instruction {
	return s.instructions[i]
}

// Index returns the position of the instruction named name
func (s *Set) Index(name string) (int, error) {
	for i, instr := range s.instructions {
		if instr.Name() == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrUnknownInstruction, name)
}

// MaxOperands returns the largest operand count of the set
func (s *Set) MaxOperands() int {
	n := 0
	for _, i := range s.instructions {
		n = max(n, i.NbOperands())
	}
	return n
}

// Release drops every instruction. The set is empty afterwards.
func (s *Set) Release() {
	clear(s.instructions)
	s.instructions = nil
}

func sobel(a *[3][3]float64) (gx, gy float64) {
	gx = -a[0][0] + a[0][2] - 2*a[1][0] + 2*a[1][2] - a[2][0] + a[2][2]
	gy = -a[0][0] - 2*a[0][1] - a[0][2] + a[2][0] + 2*a[2][1] + a[2][2]
	return gx, gy
}

func arithmetic() []Instruction {
	return []Instruction{
		NewBinary("minus", func(a, b float64) float64 { return a - b }),
		NewBinary("add", func(a, b float64) float64 { return a + b }),
		NewBinary("mult", func(a, b float64) float64 { return a * b }),
		NewBinary("div", func(a, b float64) float64 { return a / b }),
		NewBinary("max", math.Max),
		NewUnary("exp", math.Exp),
		NewUnary("ln", math.Log),
	}
}

// MNIST returns the instruction set of the image classification experiment
func MNIST() *Set {
	s := NewSet(arithmetic()...)
	s.Add(NewWindow3x3("sobelMagn", func(w *[3][3]float64) float64 {
		gx, gy := sobel(w)
		return math.Sqrt(gx*gx + gy*gy)
	}))
	s.Add(NewWindow3x3("sobelDir", func(w *[3][3]float64) float64 {
		gx, gy := sobel(w)
		return math.Atan(gy / gx)
	}))
	return s
}

// Pendulum returns the instruction set of the control experiment
func Pendulum() *Set {
	s := NewSet(arithmetic()...)
	s.Add(NewUnary("cos", math.Cos))
	s.Add(NewUnary("sin", math.Sin))
	s.Add(NewUnary("tan", math.Tan))
	s.Add(MultByConst{})
	s.Add(NewConst("pi", math.Pi))
	return s
}
