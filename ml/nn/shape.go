package nn

import (
	"github.com/7blacky7/vae/ml"
)

// Flatten macht aus [B, ...] ein [B, prod(...)]
type Flatten struct {
	in ml.Shape
}

func (m *Flatten) OutputShape(in ml.Shape) (ml.Shape, error) {
	if len(in) < 2 {
		return nil, &ml.ShapeError{Op: "flatten", Want: ml.Shape{-1, -1}, Got: in}
	}
	return ml.Shape{in[0], in[1:].Size()}, nil
}

func (m *Flatten) Params() []*Param { return nil }

func (m *Flatten) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	shape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	m.in = x.Shape.Clone()
	return x.Reshape(shape...)
}

func (m *Flatten) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.in == nil {
		return nil, errNoForward("flatten")
	}
	return dy.Reshape(m.in...)
}

// Reshape formt [B, n] in [B, Target...] um
type Reshape struct {
	Target ml.Shape

	in ml.Shape
}

func NewReshape(target ...int) *Reshape {
	return &Reshape{Target: ml.Shape(target).Clone()}
}

func (m *Reshape) OutputShape(in ml.Shape) (ml.Shape, error) {
	if len(in) < 1 || in[1:].Size() != m.Target.Size() {
		return nil, &ml.ShapeError{Op: "reshape", Want: append(ml.Shape{-1}, m.Target...), Got: in}
	}
	return append(ml.Shape{in[0]}, m.Target...), nil
}

func (m *Reshape) Params() []*Param { return nil }

func (m *Reshape) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	shape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	m.in = x.Shape.Clone()
	return x.Reshape(shape...)
}

func (m *Reshape) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.in == nil {
		return nil, errNoForward("reshape")
	}
	return dy.Reshape(m.in...)
}
