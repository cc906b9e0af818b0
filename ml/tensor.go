// tensor.go - Dichter float32-Tensor im Row-Major-Layout
// Dieses Modul definiert Shape und Tensor, die Grundbausteine aller Layer.
// Bilder liegen immer als NHWC vor: [batch, height, width, channels].
package ml

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Shape beschreibt die Dimensionen eines Tensors, aeusserste Dimension zuerst.
type Shape []int

// Size gibt die Anzahl der Elemente zurueck
func (s Shape) Size() int {
	return mul(s...)
}

// Equal vergleicht zwei Shapes elementweise
func (s Shape) Equal(o Shape) bool {
	return slices.Equal(s, o)
}

// Clone kopiert die Shape
func (s Shape) Clone() Shape {
	return slices.Clone(s)
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Tensor ist ein zusammenhaengender float32-Puffer mit Shape.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New legt einen mit Nullen gefuellten Tensor an
func New(shape ...int) *Tensor {
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("ml: negative dimension in shape %v", shape))
		}
	}
	return &Tensor{Shape: Shape(slices.Clone(shape)), Data: make([]float32, mul(shape...))}
}

// Zeros ist ein Alias fuer New mit einer vorhandenen Shape
func Zeros(shape Shape) *Tensor {
	return New(shape...)
}

// Full legt einen Tensor an, dessen Elemente alle v sind
func Full(v float32, shape ...int) *Tensor {
	t := New(shape...)
	t.Fill(v)
	return t
}

// FromSlice umhuellt data ohne Kopie. Die Laenge muss zur Shape passen.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	if len(data) != mul(shape...) {
		return nil, &ShapeError{Op: "from slice", Want: Shape{len(data)}, Got: Shape(shape)}
	}
	return &Tensor{Shape: Shape(slices.Clone(shape)), Data: data}, nil
}

// Dim gibt die Groesse der Dimension i zurueck
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Rank gibt die Anzahl der Dimensionen zurueck
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Len gibt die Anzahl der Elemente zurueck
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Clone kopiert Shape und Daten
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: t.Shape.Clone(), Data: slices.Clone(t.Data)}
}

// Reshape gibt eine View mit neuer Shape zurueck. Die Daten werden geteilt.
// Eine Dimension darf -1 sein und wird dann abgeleitet.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	shape = slices.Clone(shape)
	infer := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && infer < 0:
			infer = i
		case d < 0:
			return nil, &ShapeError{Op: "reshape", Want: t.Shape, Got: Shape(shape)}
		default:
			known *= d
		}
	}

	if infer >= 0 {
		if known == 0 || len(t.Data)%known != 0 {
			return nil, &ShapeError{Op: "reshape", Want: t.Shape, Got: Shape(shape)}
		}
		shape[infer] = len(t.Data) / known
	}

	if mul(shape...) != len(t.Data) {
		return nil, &ShapeError{Op: "reshape", Want: t.Shape, Got: Shape(shape)}
	}

	return &Tensor{Shape: Shape(shape), Data: t.Data}, nil
}

// Row gibt die Daten des i-ten Elements der aeussersten Dimension zurueck (View)
func (t *Tensor) Row(i int) []float32 {
	n := t.RowSize()
	return t.Data[i*n : (i+1)*n]
}

// RowSize ist die Anzahl der Elemente pro Eintrag der aeussersten Dimension
func (t *Tensor) RowSize() int {
	if len(t.Shape) == 0 {
		return 1
	}
	return mul(t.Shape[1:]...)
}

// Fill setzt alle Elemente auf v
func (t *Tensor) Fill(v float32) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Zero setzt alle Elemente auf 0
func (t *Tensor) Zero() {
	clear(t.Data)
}

// Sum summiert alle Elemente in float64
func (t *Tensor) Sum() float64 {
	var s float64
	for _, v := range t.Data {
		s += float64(v)
	}
	return s
}

// Max gibt das groesste Element zurueck
func (t *Tensor) Max() float32 {
	return slices.Max(t.Data)
}

// Min gibt das kleinste Element zurueck
func (t *Tensor) Min() float32 {
	return slices.Min(t.Data)
}

// AllFinite prueft, ob kein Element NaN oder Inf ist
func (t *Tensor) AllFinite() bool {
	for _, v := range t.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

// AddInPlace addiert o elementweise auf t
func (t *Tensor) AddInPlace(o *Tensor) error {
	if err := CheckShape("add", t.Shape, o.Shape); err != nil {
		return err
	}
	for i, v := range o.Data {
		t.Data[i] += v
	}
	return nil
}

// Scale multipliziert alle Elemente mit s
func (t *Tensor) Scale(s float32) {
	for i := range t.Data {
		t.Data[i] *= s
	}
}

func (t *Tensor) String() string {
	return Dump(t, DumpWithThreshold(16), DumpWithEdgeItems(2))
}
