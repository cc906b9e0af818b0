package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/7blacky7/vae/ml"
)

// dot ist die Testverlustfunktion sum(y * r)
func dot(y, r *ml.Tensor) float64 {
	var s float64
	for i := range y.Data {
		s += float64(y.Data[i]) * float64(r.Data[i])
	}
	return s
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-2+1e-2*math.Max(math.Abs(a), math.Abs(b))
}

// gradCheck vergleicht Backward mit zentralen Differenzen fuer Eingabe und Parameter
func gradCheck(t *testing.T, layer Layer, x *ml.Tensor, rng *ml.RNG) {
	t.Helper()

	y, err := layer.Forward(x)
	if err != nil {
		t.Fatalf("Forward fehlgeschlagen: %v", err)
	}
	r := rng.Normal(y.Shape...)

	ZeroGrad(layer.Params())
	dx, err := layer.Backward(r)
	if err != nil {
		t.Fatalf("Backward fehlgeschlagen: %v", err)
	}
	if !dx.Shape.Equal(x.Shape) {
		t.Fatalf("dx Shape %v, erwartet %v", dx.Shape, x.Shape)
	}

	const eps = 1e-2
	loss := func() float64 {
		y, err := layer.Forward(x)
		if err != nil {
			t.Fatalf("Forward fehlgeschlagen: %v", err)
		}
		return dot(y, r)
	}
	numeric := func(data []float32, i int) float64 {
		orig := data[i]
		data[i] = orig + eps
		plus := loss()
		data[i] = orig - eps
		minus := loss()
		data[i] = orig
		return (plus - minus) / (2 * eps)
	}

	for i := range x.Data {
		if n := numeric(x.Data, i); !closeEnough(n, float64(dx.Data[i])) {
			t.Errorf("dx[%d] = %v, numerisch %v", i, dx.Data[i], n)
		}
	}
	for _, p := range layer.Params() {
		for i := range p.Value.Data {
			if n := numeric(p.Value.Data, i); !closeEnough(n, float64(p.Grad.Data[i])) {
				t.Errorf("%s grad[%d] = %v, numerisch %v", p.Name, i, p.Grad.Data[i], n)
			}
		}
	}
}

func TestLinearGradients(t *testing.T) {
	rng := ml.NewRNG(1)
	l := NewLinear("dense", 5, 3, InitGlorotUniform, rng)
	rng.FillNormal(l.Bias.Value, 0, 0.1)
	gradCheck(t, l, rng.Normal(4, 5), rng)
}

func TestLinearShape(t *testing.T) {
	l := NewLinear("dense", 5, 3, InitGlorotNormal, ml.NewRNG(1))
	if _, err := l.Forward(ml.New(2, 4)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("Falsche Eingabebreite sollte ErrShapeMismatch liefern, bekam %v", err)
	}
	if _, err := NewLinear("fresh", 2, 2, InitGlorotUniform, ml.NewRNG(1)).Backward(ml.New(1, 2)); err == nil {
		t.Error("Backward ohne Forward sollte fehlschlagen")
	}

	shape, err := l.OutputShape(ml.Shape{-1, 5})
	if err != nil || !shape.Equal(ml.Shape{-1, 3}) {
		t.Errorf("OutputShape = %v, %v", shape, err)
	}
}

func TestConvGeometry(t *testing.T) {
	cases := []struct {
		name         string
		h, k, stride int
		pad          Padding
		out, padT    int
	}{
		{"valid 2x2", 64, 2, 1, PaddingValid, 63, 0},
		{"valid 3x3", 63, 3, 1, PaddingValid, 61, 0},
		{"same 3x3", 64, 3, 1, PaddingSame, 64, 1},
		{"same 2x2", 64, 2, 1, PaddingSame, 64, 0},
		{"same stride 2", 7, 3, 2, PaddingSame, 4, 1},
		{"valid stride 2", 7, 3, 2, PaddingValid, 3, 0},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			g, err := convGeometry(tt.h, tt.h, tt.k, tt.k, tt.stride, tt.pad)
			if err != nil {
				t.Fatal(err)
			}
			if g.outH != tt.out || g.outW != tt.out {
				t.Errorf("Ausgabe %dx%d, erwartet %d", g.outH, g.outW, tt.out)
			}
			if g.padT != tt.padT {
				t.Errorf("padT = %d, erwartet %d", g.padT, tt.padT)
			}
		})
	}

	if _, err := convGeometry(2, 2, 3, 3, 1, PaddingValid); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("Kernel groesser als Eingabe sollte ErrShapeMismatch liefern, bekam %v", err)
	}
}

func TestConv2DKnownValues(t *testing.T) {
	// 3x3 Eingabe, 2x2 Kernel aus Einsen: jede Ausgabe ist die Fenstersumme
	conv := NewConv2D("conv", 2, 2, 1, 1, 1, PaddingValid, InitGlorotUniform, ml.NewRNG(1))
	conv.Weight.Value.Fill(1)
	conv.Bias.Value.Data[0] = 0.5

	x, _ := ml.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 3, 3, 1)
	y, err := conv.Forward(x)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{12.5, 16.5, 24.5, 28.5}
	if !y.Shape.Equal(ml.Shape{1, 2, 2, 1}) {
		t.Fatalf("Shape %v", y.Shape)
	}
	for i, w := range want {
		if y.Data[i] != w {
			t.Errorf("y[%d] = %v, erwartet %v", i, y.Data[i], w)
		}
	}
}

func TestConv2DGradients(t *testing.T) {
	for _, pad := range []Padding{PaddingValid, PaddingSame} {
		t.Run(string(pad), func(t *testing.T) {
			rng := ml.NewRNG(2)
			conv := NewConv2D("conv", 3, 2, 2, 3, 1, pad, InitGlorotUniform, rng)
			rng.FillNormal(conv.Bias.Value, 0, 0.1)
			gradCheck(t, conv, rng.Normal(2, 5, 4, 2), rng)
		})
	}

	t.Run("stride", func(t *testing.T) {
		rng := ml.NewRNG(3)
		conv := NewConv2D("conv", 3, 3, 1, 2, 2, PaddingSame, InitGlorotNormal, rng)
		gradCheck(t, conv, rng.Normal(1, 5, 5, 1), rng)
	})
}

func TestConvTranspose2DShapes(t *testing.T) {
	cases := []struct {
		name string
		k, s int
		pad  Padding
		in   ml.Shape
		want ml.Shape
	}{
		{"same", 3, 1, PaddingSame, ml.Shape{2, 8, 8, 4}, ml.Shape{2, 8, 8, 3}},
		{"same stride 2", 3, 2, PaddingSame, ml.Shape{2, 4, 4, 4}, ml.Shape{2, 8, 8, 3}},
		{"valid", 3, 1, PaddingValid, ml.Shape{2, 4, 4, 4}, ml.Shape{2, 6, 6, 3}},
		{"valid stride 2", 2, 2, PaddingValid, ml.Shape{1, 3, 3, 4}, ml.Shape{1, 6, 6, 3}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			ct := NewConvTranspose2D("deconv", tt.k, tt.k, 4, 3, tt.s, tt.pad, InitGlorotUniform, ml.NewRNG(1))
			got, err := ct.OutputShape(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("OutputShape = %v, erwartet %v", got, tt.want)
			}

			y, err := ct.Forward(ml.New(tt.in...))
			if err != nil {
				t.Fatal(err)
			}
			if !y.Shape.Equal(tt.want) {
				t.Errorf("Forward Shape = %v, erwartet %v", y.Shape, tt.want)
			}
		})
	}
}

// Die transponierte Faltung muss adjungiert zur Faltung mit demselben Kernel sein:
// <conv(x), y> == <x, convT(y)>
func TestConvTransposeIsAdjoint(t *testing.T) {
	rng := ml.NewRNG(4)
	conv := NewConv2D("conv", 3, 3, 2, 3, 2, PaddingSame, InitGlorotUniform, rng)
	ct := NewConvTranspose2D("deconv", 3, 3, 3, 2, 2, PaddingSame, InitGlorotUniform, rng)
	copy(ct.Weight.Value.Data, conv.Weight.Value.Data)

	x := rng.Normal(1, 6, 6, 2)
	y := rng.Normal(1, 3, 3, 3)

	cx, err := conv.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	ty, err := ct.Forward(y)
	if err != nil {
		t.Fatal(err)
	}

	if a, b := dot(cx, y), dot(x, ty); !closeEnough(a, b) {
		t.Errorf("<conv(x), y> = %v, <x, convT(y)> = %v", a, b)
	}
}

func TestConvTranspose2DGradients(t *testing.T) {
	for _, pad := range []Padding{PaddingValid, PaddingSame} {
		t.Run(string(pad), func(t *testing.T) {
			rng := ml.NewRNG(5)
			ct := NewConvTranspose2D("deconv", 3, 3, 2, 2, 1, pad, InitGlorotUniform, rng)
			rng.FillNormal(ct.Bias.Value, 0, 0.1)
			gradCheck(t, ct, rng.Normal(2, 3, 4, 2), rng)
		})
	}
}

func TestActivations(t *testing.T) {
	rng := ml.NewRNG(6)
	gradCheck(t, &Sigmoid{}, rng.Normal(3, 4), rng)

	x, _ := ml.FromSlice([]float32{-2, -0.5, 0.5, 2}, 1, 4)
	relu := &ReLU{}
	y, _ := relu.Forward(x)
	want := []float32{0, 0, 0.5, 2}
	for i := range want {
		if y.Data[i] != want[i] {
			t.Errorf("relu[%d] = %v, erwartet %v", i, y.Data[i], want[i])
		}
	}
	gradCheck(t, relu, x, rng)

	if x.Data[0] != -2 {
		t.Error("ReLU darf die Eingabe nicht veraendern")
	}
}

func TestParseActivation(t *testing.T) {
	for in, want := range map[string]Activation{
		"relu": ActivationReLU, "sigmoid": ActivationSigmoid, "": ActivationIdentity, "linear": ActivationIdentity,
	} {
		got, err := ParseActivation(in)
		if err != nil || got != want {
			t.Errorf("ParseActivation(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseActivation("tanh"); err == nil {
		t.Error("unbekannte Aktivierung sollte fehlschlagen")
	}
}

func TestSequentialShapes(t *testing.T) {
	rng := ml.NewRNG(7)
	seq := NewSequential(
		NewConv2D("c1", 2, 2, 3, 4, 1, PaddingValid, InitGlorotUniform, rng),
		&ReLU{},
		&Flatten{},
		NewLinear("d1", 7*7*4, 6, InitGlorotUniform, rng),
		NewReshape(1, 2, 3),
	)

	shapes, err := seq.Shapes(ml.Shape{-1, 8, 8, 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []ml.Shape{{-1, 7, 7, 4}, {-1, 7, 7, 4}, {-1, 196}, {-1, 6}, {-1, 1, 2, 3}}
	for i := range want {
		if !shapes[i].Equal(want[i]) {
			t.Errorf("Layer %d Shape %v, erwartet %v", i, shapes[i], want[i])
		}
	}

	if _, err := seq.OutputShape(ml.Shape{-1, 9, 9, 3}); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("falsche Bildgroesse sollte ErrShapeMismatch liefern, bekam %v", err)
	}

	if NumParams(seq.Params()) != 2*2*3*4+4+196*6+6 {
		t.Errorf("NumParams = %d", NumParams(seq.Params()))
	}
}

func TestSequentialGradients(t *testing.T) {
	rng := ml.NewRNG(8)
	seq := NewSequential(
		NewConv2D("c1", 2, 2, 1, 2, 1, PaddingSame, InitGlorotUniform, rng),
		&Sigmoid{},
		&Flatten{},
		NewLinear("d1", 4*4*2, 3, InitGlorotUniform, rng),
	)
	gradCheck(t, seq, rng.Normal(2, 4, 4, 1), rng)
}
