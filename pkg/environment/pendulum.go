package environment

import (
	"fmt"
	"math"

	"github.com/boristopalov/tangle/pkg/core"
)

const (
	pendulumMaxSpeed  = 8.0
	pendulumMaxTorque = 2.0
	pendulumTimeDelta = 0.05
	pendulumGravity   = 9.81
	pendulumMass      = 1.0
	pendulumLength    = 1.0
)

// Pendulum is the swing-up task: keep a frictionless pendulum upright by
// applying discrete torques. Angle 0 is the upright position.
type Pendulum struct {
	actions []float64

	angle    float64
	velocity float64
	reward   float64
	state    *Buffer
	gen      generator
}

var _ core.LearningEnvironment = (*Pendulum)(nil)

// NewPendulum builds the task for the given torque fractions. Action 0 applies
// no torque, action i in [1, n] applies +actions[i-1]*maxTorque and action
// n+i applies the opposite torque.
func NewPendulum(actions []float64) *Pendulum {
	e := &Pendulum{
		actions: append([]float64(nil), actions...),
		state:   NewBuffer(1, 2),
	}
	e.Reset(0, core.Training)
	return e
}

func (e *Pendulum) NbActions() int {
	return 2*len(e.actions) + 1
}

// Torque returns the torque applied by actionID
func (e *Pendulum) Torque(actionID uint64) float64 {
	n := uint64(len(e.actions))
	switch {
	case actionID == 0:
		return 0
	case actionID <= n:
		return e.actions[actionID-1] * pendulumMaxTorque
	default:
		return -e.actions[actionID-n-1] * pendulumMaxTorque
	}
}

func (e *Pendulum) Reset(seed uint64, mode core.LearningMode) {
	e.gen = newGenerator(seed, uint64(mode))
	e.angle = e.gen.rng.Float64()*2*math.Pi - math.Pi
	e.velocity = e.gen.rng.Float64()*2 - 1
	e.reward = 0
	e.publish()
}

func (e *Pendulum) DoAction(actionID uint64) error {
	if actionID >= uint64(e.NbActions()) {
		return fmt.Errorf("pendulum: action %d out of range [0, %d)", actionID, e.NbActions())
	}
	torque := e.Torque(actionID)

	e.reward -= e.angle*e.angle + 0.1*e.velocity*e.velocity + 0.001*torque*torque

	accel := -3*pendulumGravity/(2*pendulumLength)*math.Sin(e.angle+math.Pi) +
		3/(pendulumMass*pendulumLength*pendulumLength)*torque
	e.velocity = clamp(e.velocity+accel*pendulumTimeDelta, -pendulumMaxSpeed, pendulumMaxSpeed)
	e.angle = normalizeAngle(e.angle + e.velocity*pendulumTimeDelta)
	e.publish()
	return nil
}

func (e *Pendulum) publish() {
	e.state.Set(0, e.angle)
	e.state.Set(1, e.velocity)
}

// Score is the reward accumulated since the last Reset. It is never positive.
func (e *Pendulum) Score() float64 {
	return e.reward
}

func (e *Pendulum) IsTerminal() bool {
	return false
}

func (e *Pendulum) IsCopyable() bool {
	return true
}

func (e *Pendulum) Clone() core.LearningEnvironment {
	return &Pendulum{
		actions:  e.actions,
		angle:    e.angle,
		velocity: e.velocity,
		reward:   e.reward,
		state:    e.state.clone(),
		gen:      e.gen.clone(),
	}
}

func (e *Pendulum) DataSources() []core.DataSource {
	return []core.DataSource{e.state}
}

func (e *Pendulum) Angle() float64 {
	return e.angle
}

func (e *Pendulum) Velocity() float64 {
	return e.velocity
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// normalizeAngle maps a to [-pi, pi)
func normalizeAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
