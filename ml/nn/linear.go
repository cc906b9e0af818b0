package nn

import (
	"github.com/7blacky7/vae/ml"
)

// Linear berechnet y = x W + b mit W als [in, out]
type Linear struct {
	Weight *Param
	Bias   *Param

	x *ml.Tensor
}

func NewLinear(name string, in, out int, init Init, rng *ml.RNG) *Linear {
	m := &Linear{
		Weight: NewParam(name+".weight", in, out),
		Bias:   NewParam(name+".bias", out),
	}
	init.fill(rng, m.Weight.Value, in, out)
	return m
}

func (m *Linear) in() int  { return m.Weight.Value.Dim(0) }
func (m *Linear) out() int { return m.Weight.Value.Dim(1) }

func (m *Linear) OutputShape(in ml.Shape) (ml.Shape, error) {
	if err := ml.CheckShape(m.Weight.Name, ml.Shape{-1, m.in()}, in); err != nil {
		return nil, err
	}
	return ml.Shape{in[0], m.out()}, nil
}

func (m *Linear) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	if _, err := m.OutputShape(x.Shape); err != nil {
		return nil, err
	}

	batch := x.Dim(0)
	y := ml.New(batch, m.out())
	for i := 0; i < batch; i++ {
		copy(y.Row(i), m.Bias.Value.Data)
	}
	ml.Gemm(false, false, batch, m.out(), m.in(), 1, x.Data, m.Weight.Value.Data, 1, y.Data)

	m.x = x
	return y, nil
}

func (m *Linear) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.x == nil {
		return nil, errNoForward(m.Weight.Name)
	}
	if err := ml.CheckShape(m.Weight.Name+" backward", ml.Shape{m.x.Dim(0), m.out()}, dy.Shape); err != nil {
		return nil, err
	}

	batch := dy.Dim(0)
	ml.Gemm(true, false, m.in(), m.out(), batch, 1, m.x.Data, dy.Data, 1, m.Weight.Grad.Data)
	for i := 0; i < batch; i++ {
		for j, v := range dy.Row(i) {
			m.Bias.Grad.Data[j] += v
		}
	}

	dx := ml.New(batch, m.in())
	ml.Gemm(false, true, batch, m.in(), m.out(), 1, dy.Data, m.Weight.Value.Data, 0, dx.Data)
	return dx, nil
}

func (m *Linear) Params() []*Param {
	return []*Param{m.Weight, m.Bias}
}
