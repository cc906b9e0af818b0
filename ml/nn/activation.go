package nn

import (
	"fmt"
	"math"

	"github.com/7blacky7/vae/ml"
)

// Activation ist der Name einer elementweisen Nichtlinearitaet
type Activation string

const (
	ActivationReLU     Activation = "relu"
	ActivationSigmoid  Activation = "sigmoid"
	ActivationIdentity Activation = "linear"
)

// ParseActivation akzeptiert die Keras-Namen, "" und "none" bedeuten linear
func ParseActivation(s string) (Activation, error) {
	switch Activation(s) {
	case ActivationReLU, ActivationSigmoid:
		return Activation(s), nil
	case "", "none", "identity", ActivationIdentity:
		return ActivationIdentity, nil
	default:
		return "", fmt.Errorf("unknown activation %q", s)
	}
}

// NewActivation gibt den passenden Layer zurueck
func NewActivation(a Activation) Layer {
	switch a {
	case ActivationReLU:
		return &ReLU{}
	case ActivationSigmoid:
		return &Sigmoid{}
	default:
		return Identity{}
	}
}

type ReLU struct {
	mask []bool
}

func (m *ReLU) OutputShape(in ml.Shape) (ml.Shape, error) { return in.Clone(), nil }
func (m *ReLU) Params() []*Param                          { return nil }

func (m *ReLU) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	y := x.Clone()
	if cap(m.mask) < len(y.Data) {
		m.mask = make([]bool, len(y.Data))
	}
	m.mask = m.mask[:len(y.Data)]
	for i, v := range y.Data {
		m.mask[i] = v > 0
		if !m.mask[i] {
			y.Data[i] = 0
		}
	}
	return y, nil
}

func (m *ReLU) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if len(dy.Data) != len(m.mask) {
		return nil, errNoForward("relu")
	}
	dx := dy.Clone()
	for i, on := range m.mask {
		if !on {
			dx.Data[i] = 0
		}
	}
	return dx, nil
}

type Sigmoid struct {
	y *ml.Tensor
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

func (m *Sigmoid) OutputShape(in ml.Shape) (ml.Shape, error) { return in.Clone(), nil }
func (m *Sigmoid) Params() []*Param                          { return nil }

func (m *Sigmoid) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	y := ml.New(x.Shape...)
	for i, v := range x.Data {
		y.Data[i] = sigmoid(v)
	}
	m.y = y
	return y, nil
}

func (m *Sigmoid) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.y == nil || len(dy.Data) != len(m.y.Data) {
		return nil, errNoForward("sigmoid")
	}
	dx := ml.New(dy.Shape...)
	for i, y := range m.y.Data {
		dx.Data[i] = dy.Data[i] * y * (1 - y)
	}
	return dx, nil
}

// Identity reicht Werte und Gradienten unveraendert durch
type Identity struct{}

func (Identity) OutputShape(in ml.Shape) (ml.Shape, error)  { return in.Clone(), nil }
func (Identity) Params() []*Param                           { return nil }
func (Identity) Forward(x *ml.Tensor) (*ml.Tensor, error)   { return x, nil }
func (Identity) Backward(dy *ml.Tensor) (*ml.Tensor, error) { return dy, nil }
