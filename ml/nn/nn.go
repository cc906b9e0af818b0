// nn.go - Parameter, Layer-Interface und Initialisierung
// Jeder Layer merkt sich im Forward-Pass, was Backward braucht.
// Backward addiert auf Param.Grad, ZeroGrad muss vor jedem Schritt laufen.
package nn

import (
	"fmt"
	"math"

	"github.com/7blacky7/vae/ml"
)

// Param ist ein trainierbarer Tensor mit Gradient
type Param struct {
	Name  string
	Value *ml.Tensor
	Grad  *ml.Tensor
}

// NewParam legt Wert und Gradient mit Nullen an
func NewParam(name string, shape ...int) *Param {
	return &Param{Name: name, Value: ml.New(shape...), Grad: ml.New(shape...)}
}

// Layer ist ein differenzierbarer Baustein mit statischem Shape-Vertrag.
// Shapes enthalten die Batch-Dimension, OutputShape akzeptiert -1 als Batch.
type Layer interface {
	Forward(x *ml.Tensor) (*ml.Tensor, error)
	Backward(dy *ml.Tensor) (*ml.Tensor, error)
	Params() []*Param
	OutputShape(in ml.Shape) (ml.Shape, error)
}

// ZeroGrad setzt alle Gradienten auf 0
func ZeroGrad(params []*Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}

// NumParams zaehlt die skalaren Parameter
func NumParams(params []*Param) int {
	var n int
	for _, p := range params {
		n += p.Value.Len()
	}
	return n
}

// Init waehlt die Gewichtsinitialisierung
type Init string

const (
	// InitGlorotUniform ist der Keras-Default: U(-l, l), l = sqrt(6 / (fanIn + fanOut))
	InitGlorotUniform Init = "glorot_uniform"
	// InitGlorotNormal ist N(0, 1 / (fanIn / 2))
	InitGlorotNormal Init = "glorot_normal"
)

// ParseInit prueft den Namen einer Initialisierung
func ParseInit(s string) (Init, error) {
	switch Init(s) {
	case "", InitGlorotUniform:
		return InitGlorotUniform, nil
	case InitGlorotNormal:
		return InitGlorotNormal, nil
	default:
		return "", fmt.Errorf("unknown init %q", s)
	}
}

func (i Init) fill(rng *ml.RNG, t *ml.Tensor, fanIn, fanOut int) {
	switch i {
	case InitGlorotNormal:
		rng.FillNormal(t, 0, 1/math.Sqrt(float64(fanIn)/2))
	default:
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		rng.FillUniform(t, -limit, limit)
	}
}

func checkRank(op string, x *ml.Tensor, rank int) error {
	if x.Rank() != rank {
		return &ml.ShapeError{Op: op, Want: make(ml.Shape, rank), Got: x.Shape}
	}
	return nil
}
