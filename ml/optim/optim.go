// optim.go - Optimierer fuer nn.Param
// Step liest Param.Grad und aktualisiert Param.Value. Zustand (Momente)
// wird pro Parameter ueber den Namen gefuehrt.
package optim

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/7blacky7/vae/ml/nn"
)

// Optimizer aktualisiert Parameter anhand ihrer Gradienten
type Optimizer interface {
	Step(params []*nn.Param) error
	Name() string
}

// New erzeugt einen Optimierer mit den Defaults der jeweiligen Bibliothek
func New(name string, lr float64) (Optimizer, error) {
	if lr <= 0 || math.IsNaN(lr) || math.IsInf(lr, 0) {
		return nil, fmt.Errorf("invalid learning rate %v", lr)
	}

	switch strings.ToLower(name) {
	case "rmsprop":
		return NewRMSProp(lr), nil
	case "adam":
		return NewAdam(lr), nil
	case "sgd":
		return &SGD{LearningRate: lr}, nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// GradNorm ist die globale L2-Norm aller Gradienten
func GradNorm(params []*nn.Param) float64 {
	var sum float64
	for _, p := range params {
		n := float64(blas32.Nrm2(blas32.Vector{N: p.Grad.Len(), Inc: 1, Data: p.Grad.Data}))
		sum += n * n
	}
	return math.Sqrt(sum)
}

// state haelt einen Puffer pro Parametername
type state map[string][]float32

func (s state) get(p *nn.Param, init float32) ([]float32, error) {
	buf, ok := s[p.Name]
	if !ok {
		buf = make([]float32, p.Value.Len())
		if init != 0 {
			for i := range buf {
				buf[i] = init
			}
		}
		s[p.Name] = buf
	}
	if len(buf) != p.Value.Len() {
		return nil, fmt.Errorf("optimizer state for %s has %d elements, parameter has %d", p.Name, len(buf), p.Value.Len())
	}
	return buf, nil
}

// SGD ist der einfache Gradientenabstieg
type SGD struct {
	LearningRate float64
}

func (o *SGD) Name() string { return "sgd" }

func (o *SGD) Step(params []*nn.Param) error {
	lr := float32(o.LearningRate)
	for _, p := range params {
		for i, g := range p.Grad.Data {
			p.Value.Data[i] -= lr * g
		}
	}
	return nil
}

// RMSProp folgt tf.train.RMSPropOptimizer: der Mittelwert der Quadrate
// startet bei 1 und epsilon steht unter der Wurzel.
type RMSProp struct {
	LearningRate float64
	Decay        float64
	Momentum     float64
	Epsilon      float64

	ms  state
	mom state
}

func NewRMSProp(lr float64) *RMSProp {
	return &RMSProp{LearningRate: lr, Decay: 0.9, Epsilon: 1e-10, ms: state{}, mom: state{}}
}

func (o *RMSProp) Name() string { return "rmsprop" }

func (o *RMSProp) Step(params []*nn.Param) error {
	for _, p := range params {
		ms, err := o.ms.get(p, 1)
		if err != nil {
			return err
		}
		mom, err := o.mom.get(p, 0)
		if err != nil {
			return err
		}

		for i, g := range p.Grad.Data {
			g := float64(g)
			m := o.Decay*float64(ms[i]) + (1-o.Decay)*g*g
			v := o.Momentum*float64(mom[i]) + o.LearningRate*g/math.Sqrt(m+o.Epsilon)
			ms[i], mom[i] = float32(m), float32(v)
			p.Value.Data[i] -= float32(v)
		}
	}
	return nil
}

// Adam mit den Keras-Defaults
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t int
	m state
	v state
}

func NewAdam(lr float64) *Adam {
	return &Adam{LearningRate: lr, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-7, m: state{}, v: state{}}
}

func (o *Adam) Name() string { return "adam" }

func (o *Adam) Step(params []*nn.Param) error {
	o.t++
	b1Corr := 1 - math.Pow(o.Beta1, float64(o.t))
	b2Corr := 1 - math.Pow(o.Beta2, float64(o.t))

	for _, p := range params {
		m, err := o.m.get(p, 0)
		if err != nil {
			return err
		}
		v, err := o.v.get(p, 0)
		if err != nil {
			return err
		}

		for i, g := range p.Grad.Data {
			g := float64(g)
			mi := o.Beta1*float64(m[i]) + (1-o.Beta1)*g
			vi := o.Beta2*float64(v[i]) + (1-o.Beta2)*g*g
			m[i], v[i] = float32(mi), float32(vi)
			p.Value.Data[i] -= float32(o.LearningRate * (mi / b1Corr) / (math.Sqrt(vi/b2Corr) + o.Epsilon))
		}
	}
	return nil
}
