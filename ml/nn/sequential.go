package nn

import (
	"fmt"

	"github.com/7blacky7/vae/ml"
)

// Sequential verkettet Layer. Backward laeuft in umgekehrter Reihenfolge.
type Sequential struct {
	Layers []Layer
}

func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{Layers: layers}
}

// Add haengt Layer an
func (s *Sequential) Add(layers ...Layer) {
	s.Layers = append(s.Layers, layers...)
}

func (s *Sequential) OutputShape(in ml.Shape) (ml.Shape, error) {
	shape := in
	for i, l := range s.Layers {
		next, err := l.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		shape = next
	}
	return shape, nil
}

// Shapes gibt die Ausgabe-Shape jedes Layers zurueck
func (s *Sequential) Shapes(in ml.Shape) ([]ml.Shape, error) {
	shapes := make([]ml.Shape, 0, len(s.Layers))
	shape := in
	for i, l := range s.Layers {
		next, err := l.OutputShape(shape)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		shapes = append(shapes, next)
		shape = next
	}
	return shapes, nil
}

func (s *Sequential) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	var err error
	for i, l := range s.Layers {
		if x, err = l.Forward(x); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return x, nil
}

func (s *Sequential) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	var err error
	for i := len(s.Layers) - 1; i >= 0; i-- {
		if dy, err = s.Layers[i].Backward(dy); err != nil {
			return nil, fmt.Errorf("layer %d backward: %w", i, err)
		}
	}
	return dy, nil
}

func (s *Sequential) Params() []*Param {
	var params []*Param
	for _, l := range s.Layers {
		params = append(params, l.Params()...)
	}
	return params
}
