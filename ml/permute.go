// permute.go - Achsen-Permutation ueber pdevine/tensor
package ml

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
)

// Permute gibt eine materialisierte Kopie von t mit vertauschten Achsen zurueck.
// Ausgabe-Dimension i entspricht Eingabe-Dimension axes[i].
func Permute(t *Tensor, axes ...int) (*Tensor, error) {
	if len(axes) != t.Rank() {
		return nil, &ShapeError{Op: "permute", Want: make(Shape, len(axes)), Got: t.Shape}
	}

	seen := make([]bool, len(axes))
	shape := make(Shape, len(axes))
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return nil, fmt.Errorf("permute: invalid axes %v", axes)
		}
		seen[a] = true
		shape[i] = t.Shape[a]
	}

	if t.Rank() < 2 {
		return t.Clone(), nil
	}

	var tt tensor.Tensor = tensor.New(tensor.WithShape(t.Shape...), tensor.WithBacking(slices.Clone(t.Data)))
	tt, err := tensor.Transpose(tt, axes...)
	if err != nil {
		return nil, err
	}

	// flach machen, damit native.VectorF32 einen Vektor bekommt
	if err := tt.Reshape(tt.Shape().TotalSize()); err != nil {
		return nil, err
	}

	data, err := native.VectorF32(tt.(*tensor.Dense))
	if err != nil {
		return nil, err
	}

	return &Tensor{Shape: shape, Data: data}, nil
}
