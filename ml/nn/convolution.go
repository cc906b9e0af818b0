// convolution.go - Conv2D und ConvTranspose2D im NHWC-Layout
// Beide Layer laufen ueber im2col und Gemm. Kernel liegen als
// [kh, kw, cin, cout] vor, flach also eine [kh*kw*cin, cout] Matrix.
// ConvTranspose2D ist die adjungierte Operation zu Conv2D.
package nn

import (
	"fmt"

	"github.com/7blacky7/vae/ml"
)

// Padding entspricht den TensorFlow-Modi "valid" und "same"
type Padding string

const (
	PaddingValid Padding = "valid"
	PaddingSame  Padding = "same"
)

// geometry beschreibt eine Faltung vom grossen Gitter (in) aufs kleine (out)
type geometry struct {
	inH, inW   int
	outH, outW int
	kH, kW     int
	stride     int
	padT, padL int
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// convGeometry rechnet wie TensorFlow: bei "same" wird unten/rechts
// ein Pixel mehr aufgefuellt, wenn das Gesamtpadding ungerade ist.
func convGeometry(h, w, kh, kw, stride int, pad Padding) (geometry, error) {
	g := geometry{inH: h, inW: w, kH: kh, kW: kw, stride: stride}
	if stride < 1 || kh < 1 || kw < 1 {
		return g, fmt.Errorf("invalid convolution: kernel %dx%d stride %d", kh, kw, stride)
	}

	switch pad {
	case PaddingSame:
		g.outH, g.outW = ceilDiv(h, stride), ceilDiv(w, stride)
		g.padT = max((g.outH-1)*stride+kh-h, 0) / 2
		g.padL = max((g.outW-1)*stride+kw-w, 0) / 2
	case PaddingValid, "":
		if h < kh || w < kw {
			return g, fmt.Errorf("%w: input %dx%d smaller than kernel %dx%d", ml.ErrShapeMismatch, h, w, kh, kw)
		}
		g.outH, g.outW = (h-kh)/stride+1, (w-kw)/stride+1
	default:
		return g, fmt.Errorf("unknown padding %q", pad)
	}
	return g, nil
}

// ConvOutput rechnet die Ausgabe-Shape einer quadratischen Conv2D auf
// [B, H, W, C], ohne Gewichte anzulegen
func ConvOutput(in ml.Shape, kernel, filters, stride int, pad Padding) (ml.Shape, error) {
	if len(in) != 4 {
		return nil, &ml.ShapeError{Op: "conv2d", Want: ml.Shape{-1, -1, -1, -1}, Got: in}
	}
	g, err := convGeometry(in[1], in[2], kernel, kernel, stride, pad)
	if err != nil {
		return nil, err
	}
	return ml.Shape{in[0], g.outH, g.outW, filters}, nil
}

// ConvTransposeOutput ist das Gegenstueck zu ConvOutput fuer ConvTranspose2D
func ConvTransposeOutput(in ml.Shape, kernel, filters, stride int, pad Padding) (ml.Shape, error) {
	if len(in) != 4 {
		return nil, &ml.ShapeError{Op: "conv2d transpose", Want: ml.Shape{-1, -1, -1, -1}, Got: in}
	}
	g, err := transposedGeometry(in[1], in[2], kernel, kernel, stride, pad)
	if err != nil {
		return nil, err
	}
	return ml.Shape{in[0], g.inH, g.inW, filters}, nil
}

// transposedGeometry liefert die Faltung vom Ausgabegitter zurueck auf das Eingabegitter
func transposedGeometry(h, w, kh, kw, stride int, pad Padding) (geometry, error) {
	oh := transposedSize(h, kh, stride, pad)
	ow := transposedSize(w, kw, stride, pad)
	g, err := convGeometry(oh, ow, kh, kw, stride, pad)
	if err != nil {
		return g, err
	}
	if g.outH != h || g.outW != w {
		return g, fmt.Errorf("%w: transposed geometry %dx%d does not invert to %dx%d", ml.ErrShapeMismatch, oh, ow, h, w)
	}
	return g, nil
}

// transposedSize gibt die Ausgabegroesse einer transponierten Faltung zurueck
func transposedSize(n, k, stride int, pad Padding) int {
	if pad == PaddingSame {
		return n * stride
	}
	return (n-1)*stride + k
}

// im2col schreibt fuer jede Ausgabeposition das Eingabefenster als Zeile
func im2col(src []float32, g geometry, c int, dst []float32) {
	cols := g.kH * g.kW * c
	for oh := 0; oh < g.outH; oh++ {
		for ow := 0; ow < g.outW; ow++ {
			row := dst[(oh*g.outW+ow)*cols : (oh*g.outW+ow+1)*cols]
			for kh := 0; kh < g.kH; kh++ {
				ih := oh*g.stride + kh - g.padT
				for kw := 0; kw < g.kW; kw++ {
					iw := ow*g.stride + kw - g.padL
					seg := row[(kh*g.kW+kw)*c : (kh*g.kW+kw+1)*c]
					if ih < 0 || ih >= g.inH || iw < 0 || iw >= g.inW {
						clear(seg)
						continue
					}
					copy(seg, src[(ih*g.inW+iw)*c:(ih*g.inW+iw+1)*c])
				}
			}
		}
	}
}

// col2im addiert die Zeilen zurueck auf das Eingabegitter
func col2im(cols []float32, g geometry, c int, dst []float32) {
	n := g.kH * g.kW * c
	for oh := 0; oh < g.outH; oh++ {
		for ow := 0; ow < g.outW; ow++ {
			row := cols[(oh*g.outW+ow)*n : (oh*g.outW+ow+1)*n]
			for kh := 0; kh < g.kH; kh++ {
				ih := oh*g.stride + kh - g.padT
				if ih < 0 || ih >= g.inH {
					continue
				}
				for kw := 0; kw < g.kW; kw++ {
					iw := ow*g.stride + kw - g.padL
					if iw < 0 || iw >= g.inW {
						continue
					}
					seg := row[(kh*g.kW+kw)*c : (kh*g.kW+kw+1)*c]
					out := dst[(ih*g.inW+iw)*c : (ih*g.inW+iw+1)*c]
					for i, v := range seg {
						out[i] += v
					}
				}
			}
		}
	}
}

func addBias(y []float32, bias []float32) {
	c := len(bias)
	for i := 0; i < len(y); i += c {
		for j, b := range bias {
			y[i+j] += b
		}
	}
}

func sumBias(dy []float32, grad []float32) {
	c := len(grad)
	for i := 0; i < len(dy); i += c {
		for j := range grad {
			grad[j] += dy[i+j]
		}
	}
}

// Conv2D faltet [B, H, W, Cin] zu [B, OH, OW, Cout]
type Conv2D struct {
	Weight  *Param
	Bias    *Param
	Stride  int
	Padding Padding

	x   *ml.Tensor
	g   geometry
	buf []float32
}

func NewConv2D(name string, kh, kw, cin, cout, stride int, pad Padding, init Init, rng *ml.RNG) *Conv2D {
	m := &Conv2D{
		Weight:  NewParam(name+".weight", kh, kw, cin, cout),
		Bias:    NewParam(name+".bias", cout),
		Stride:  stride,
		Padding: pad,
	}
	init.fill(rng, m.Weight.Value, kh*kw*cin, kh*kw*cout)
	return m
}

func (m *Conv2D) kernel() (kh, kw, cin, cout int) {
	s := m.Weight.Value.Shape
	return s[0], s[1], s[2], s[3]
}

func (m *Conv2D) OutputShape(in ml.Shape) (ml.Shape, error) {
	kh, kw, cin, cout := m.kernel()
	if err := ml.CheckShape(m.Weight.Name, ml.Shape{-1, -1, -1, cin}, in); err != nil {
		return nil, err
	}
	g, err := convGeometry(in[1], in[2], kh, kw, m.Stride, m.Padding)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Weight.Name, err)
	}
	return ml.Shape{in[0], g.outH, g.outW, cout}, nil
}

func (m *Conv2D) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	if err := checkRank(m.Weight.Name, x, 4); err != nil {
		return nil, err
	}
	shape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}

	kh, kw, cin, cout := m.kernel()
	g, _ := convGeometry(x.Dim(1), x.Dim(2), kh, kw, m.Stride, m.Padding)
	k := kh * kw * cin
	positions := g.outH * g.outW

	m.buf = grow(m.buf, positions*k)
	y := ml.New(shape...)
	for b := 0; b < x.Dim(0); b++ {
		im2col(x.Row(b), g, cin, m.buf)
		ml.Gemm(false, false, positions, cout, k, 1, m.buf, m.Weight.Value.Data, 0, y.Row(b))
	}
	addBias(y.Data, m.Bias.Value.Data)

	m.x, m.g = x, g
	return y, nil
}

func (m *Conv2D) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.x == nil {
		return nil, errNoForward(m.Weight.Name)
	}
	kh, kw, cin, cout := m.kernel()
	g := m.g
	if err := ml.CheckShape(m.Weight.Name+" backward", ml.Shape{m.x.Dim(0), g.outH, g.outW, cout}, dy.Shape); err != nil {
		return nil, err
	}

	k := kh * kw * cin
	positions := g.outH * g.outW
	m.buf = grow(m.buf, 2*positions*k)
	cols, dcols := m.buf[:positions*k], m.buf[positions*k:2*positions*k]

	dx := ml.New(m.x.Shape...)
	for b := 0; b < dy.Dim(0); b++ {
		im2col(m.x.Row(b), g, cin, cols)
		ml.Gemm(true, false, k, cout, positions, 1, cols, dy.Row(b), 1, m.Weight.Grad.Data)
		ml.Gemm(false, true, positions, k, cout, 1, dy.Row(b), m.Weight.Value.Data, 0, dcols)
		col2im(dcols, g, cin, dx.Row(b))
	}
	sumBias(dy.Data, m.Bias.Grad.Data)

	return dx, nil
}

func (m *Conv2D) Params() []*Param {
	return []*Param{m.Weight, m.Bias}
}

// ConvTranspose2D vergroessert [B, H, W, Cin] zu [B, OH, OW, Cout].
// Weight ist [kh, kw, cout, cin], also der Kernel der zugehoerigen Conv2D.
type ConvTranspose2D struct {
	Weight  *Param
	Bias    *Param
	Stride  int
	Padding Padding

	x   *ml.Tensor
	g   geometry
	buf []float32
}

func NewConvTranspose2D(name string, kh, kw, cin, cout, stride int, pad Padding, init Init, rng *ml.RNG) *ConvTranspose2D {
	m := &ConvTranspose2D{
		Weight:  NewParam(name+".weight", kh, kw, cout, cin),
		Bias:    NewParam(name+".bias", cout),
		Stride:  stride,
		Padding: pad,
	}
	init.fill(rng, m.Weight.Value, kh*kw*cin, kh*kw*cout)
	return m
}

func (m *ConvTranspose2D) kernel() (kh, kw, cin, cout int) {
	s := m.Weight.Value.Shape
	return s[0], s[1], s[3], s[2]
}

func (m *ConvTranspose2D) geometry(h, w int) (geometry, error) {
	kh, kw, _, _ := m.kernel()
	g, err := transposedGeometry(h, w, kh, kw, m.Stride, m.Padding)
	if err != nil {
		return g, fmt.Errorf("%s: %w", m.Weight.Name, err)
	}
	return g, nil
}

func (m *ConvTranspose2D) OutputShape(in ml.Shape) (ml.Shape, error) {
	_, _, cin, cout := m.kernel()
	if err := ml.CheckShape(m.Weight.Name, ml.Shape{-1, -1, -1, cin}, in); err != nil {
		return nil, err
	}
	g, err := m.geometry(in[1], in[2])
	if err != nil {
		return nil, err
	}
	return ml.Shape{in[0], g.inH, g.inW, cout}, nil
}

func (m *ConvTranspose2D) Forward(x *ml.Tensor) (*ml.Tensor, error) {
	if err := checkRank(m.Weight.Name, x, 4); err != nil {
		return nil, err
	}
	shape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}

	kh, kw, cin, cout := m.kernel()
	g, _ := m.geometry(x.Dim(1), x.Dim(2))
	k := kh * kw * cout
	positions := g.outH * g.outW

	m.buf = grow(m.buf, positions*k)
	y := ml.New(shape...)
	for b := 0; b < x.Dim(0); b++ {
		ml.Gemm(false, true, positions, k, cin, 1, x.Row(b), m.Weight.Value.Data, 0, m.buf)
		col2im(m.buf, g, cout, y.Row(b))
	}
	addBias(y.Data, m.Bias.Value.Data)

	m.x, m.g = x, g
	return y, nil
}

func (m *ConvTranspose2D) Backward(dy *ml.Tensor) (*ml.Tensor, error) {
	if m.x == nil {
		return nil, errNoForward(m.Weight.Name)
	}
	kh, kw, cin, cout := m.kernel()
	g := m.g
	if err := ml.CheckShape(m.Weight.Name+" backward", ml.Shape{m.x.Dim(0), g.inH, g.inW, cout}, dy.Shape); err != nil {
		return nil, err
	}

	k := kh * kw * cout
	positions := g.outH * g.outW
	m.buf = grow(m.buf, positions*k)

	dx := ml.New(m.x.Shape...)
	for b := 0; b < dy.Dim(0); b++ {
		im2col(dy.Row(b), g, cout, m.buf)
		ml.Gemm(true, false, k, cin, positions, 1, m.buf, m.x.Row(b), 1, m.Weight.Grad.Data)
		ml.Gemm(false, false, positions, cin, k, 1, m.buf, m.Weight.Value.Data, 0, dx.Row(b))
	}
	sumBias(dy.Data, m.Bias.Grad.Data)

	return dx, nil
}

func (m *ConvTranspose2D) Params() []*Param {
	return []*Param{m.Weight, m.Bias}
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}
