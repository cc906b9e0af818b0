package vae

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"gonum.org/v1/gonum/stat"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
	"github.com/7blacky7/vae/ml/optim"
)

// smallSceneConfig behaelt die Bild- und Latent-Shapes des Szenen-Presets,
// aber mit wenigen Kanaelen
func smallSceneConfig() Config {
	cfg := SceneConfig()
	for i := range cfg.Encoder {
		cfg.Encoder[i].Filters = 4
	}
	cfg.DecoderDense = []int{16}
	for i := range cfg.Decoder {
		cfg.Decoder[i].Filters = 4
	}
	return cfg
}

// tinyConfig ist glatt (nur Sigmoid), damit numerische Ableitungen stabil sind
func tinyConfig() Config {
	return Config{
		Name:      "tiny",
		Height:    8,
		Width:     8,
		Channels:  1,
		LatentDim: 2,
		Encoder: []ConvSpec{
			{Filters: 2, Kernel: 3, Stride: 2, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		},
		EncoderDense:    []int{6},
		DecoderDense:    []int{5},
		DenseActivation: nn.ActivationSigmoid,
		SeedHeight:      4,
		SeedWidth:       4,
		SeedChannels:    2,
		Decoder: []ConvSpec{
			{Filters: 3, Kernel: 3, Stride: 2, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		},
		Output:         ConvSpec{Filters: 1, Kernel: 2, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		Reconstruction: ReconstructionBCE,
		LogVarMin:      -20,
		LogVarMax:      20,
		Init:           nn.InitGlorotUniform,
		Optimizer:      "adam",
		LearningRate:   0.01,
	}
}

func uniformBatch(rng *ml.RNG, shape ...int) *ml.Tensor {
	t := ml.New(shape...)
	rng.FillUniform(t, 0, 1)
	return t
}

var approx = cmpopts.EquateApprox(1e-6, 1e-6)

func TestReparameterize(t *testing.T) {
	mean, _ := ml.FromSlice([]float32{0, 1, -2, 3}, 2, 2)
	logVar, _ := ml.FromSlice([]float32{0, 0, float32(math.Log(4)), -2}, 2, 2)
	eps, _ := ml.FromSlice([]float32{1, -1, 0.5, 2}, 2, 2)

	z, err := Reparameterize(mean, logVar, eps)
	if err != nil {
		t.Fatal(err)
	}

	want := []float32{1, 0, -1, 3 + 2*float32(math.Exp(-1))}
	if diff := cmp.Diff(want, z.Data, approx); diff != "" {
		t.Errorf("z stimmt nicht (-want +got):\n%s", diff)
	}

	// Null-Rauschen ergibt genau den Mittelwert
	z, _ = Reparameterize(mean, logVar, ml.New(2, 2))
	if diff := cmp.Diff(mean.Data, z.Data); diff != "" {
		t.Errorf("z mit eps=0 sollte mean sein:\n%s", diff)
	}

	if _, err := Reparameterize(mean, logVar, ml.New(2, 3)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("falsche eps-Shape sollte ErrShapeMismatch liefern, bekam %v", err)
	}
}

func TestReparameterizeGrad(t *testing.T) {
	logVar, _ := ml.FromSlice([]float32{0, float32(math.Log(4))}, 1, 2)
	eps, _ := ml.FromSlice([]float32{1, -1}, 1, 2)
	dz, _ := ml.FromSlice([]float32{2, 3}, 1, 2)

	dMean, dLogVar, err := ReparameterizeGrad(dz, logVar, eps)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float32{2, 3}, dMean.Data, approx); diff != "" {
		t.Errorf("dMean (-want +got):\n%s", diff)
	}
	// 0.5 * exp(0.5 * lv) * eps * dz
	if diff := cmp.Diff([]float32{1, -3}, dLogVar.Data, approx); diff != "" {
		t.Errorf("dLogVar (-want +got):\n%s", diff)
	}
}

func TestKLDivergence(t *testing.T) {
	cases := []struct {
		name         string
		mean, logVar []float32
		want         float64
	}{
		{"standard normal", []float32{0, 0}, []float32{0, 0}, 0},
		{"shifted mean", []float32{1, 0}, []float32{0, 0}, 0.5},
		{"wider", []float32{0, 0}, []float32{float32(math.Log(2)), 0}, -0.5 * (1 + math.Log(2) - 2)},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			mean, _ := ml.FromSlice(tt.mean, 1, 2)
			logVar, _ := ml.FromSlice(tt.logVar, 1, 2)
			kl, err := KLDivergence(Posterior{Mean: mean, LogVar: logVar})
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(kl[0]-tt.want) > 1e-6 {
				t.Errorf("KL = %v, erwartet %v", kl[0], tt.want)
			}
		})
	}
}

func TestKLNonNegative(t *testing.T) {
	rng := ml.NewRNG(11)
	mean := rng.Normal(256, 4)
	logVar := ml.New(256, 4)
	rng.FillNormal(logVar, 0, 3)

	kl, err := KLDivergence(Posterior{Mean: mean, LogVar: logVar})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range kl {
		if v <= 0 {
			t.Errorf("KL[%d] = %v, erwartet > 0 fuer zufaellige Parameter", i, v)
		}
	}
}

func TestReconstructionLoss(t *testing.T) {
	recon, _ := ml.FromSlice([]float32{0.5, 0.5, 0.9, 0.1}, 2, 2)
	target, _ := ml.FromSlice([]float32{1, 0, 1, 0}, 2, 2)

	bce, err := ReconstructionLoss(ReconstructionBCE, recon, target)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2 * math.Ln2, -2 * math.Log(0.9)}
	if diff := cmp.Diff(want, bce, cmpopts.EquateApprox(1e-6, 1e-6)); diff != "" {
		t.Errorf("BCE (-want +got):\n%s", diff)
	}

	mse, err := ReconstructionLoss(ReconstructionMSE, recon, target)
	if err != nil {
		t.Fatal(err)
	}
	want = []float64{0.5, 0.02}
	if diff := cmp.Diff(want, mse, cmpopts.EquateApprox(1e-6, 1e-6)); diff != "" {
		t.Errorf("MSE (-want +got):\n%s", diff)
	}

	// geklemmte Wahrscheinlichkeiten halten BCE endlich
	hard, _ := ml.FromSlice([]float32{0, 1}, 1, 2)
	opposite, _ := ml.FromSlice([]float32{1, 0}, 1, 2)
	bce, err = ReconstructionLoss(ReconstructionBCE, hard, opposite)
	if err != nil {
		t.Fatal(err)
	}
	if math.IsInf(bce[0], 0) || math.IsNaN(bce[0]) {
		t.Errorf("BCE sollte endlich sein, bekam %v", bce[0])
	}

	if _, err := ReconstructionLoss(ReconstructionBCE, recon, ml.New(2, 3)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("falsche Ziel-Shape sollte ErrShapeMismatch liefern, bekam %v", err)
	}
}

func TestLossReduction(t *testing.T) {
	// Summe ueber Merkmale, Mittel ueber den Batch
	recon, _ := ml.FromSlice([]float32{0, 0, 1, 1}, 2, 2)
	target := ml.New(2, 2)
	mean, _ := ml.FromSlice([]float32{1, 0, 0, 0}, 2, 2)
	logVar := ml.New(2, 2)

	res, err := Loss(ReconstructionMSE, recon, target, Posterior{Mean: mean, LogVar: logVar})
	if err != nil {
		t.Fatal(err)
	}
	want := LossResult{Total: 1.25, Reconstruction: 1, KL: 0.25}
	if diff := cmp.Diff(want, res, cmpopts.EquateApprox(1e-9, 1e-9)); diff != "" {
		t.Errorf("Loss (-want +got):\n%s", diff)
	}

	nan, _ := ml.FromSlice([]float32{float32(math.NaN()), 0, 0, 0}, 2, 2)
	if _, err := Loss(ReconstructionMSE, nan, target, Posterior{Mean: mean, LogVar: logVar}); !errors.Is(err, ErrNumericInstability) {
		t.Errorf("NaN sollte ErrNumericInstability liefern, bekam %v", err)
	}
}

func TestSamplerStatistics(t *testing.T) {
	const n = 20000
	cases := []struct {
		name             string
		mean, logVar     float32
		wantMean, wantSD float64
	}{
		{"standard", 0, 0, 0, 1},
		{"shifted", 2, float32(math.Log(0.25)), 2, 0.5},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSampler(ml.NewRNG(3))
			p := Posterior{Mean: ml.Full(tt.mean, n, 1), LogVar: ml.Full(tt.logVar, n, 1)}
			z, eps, err := s.Sample(p)
			if err != nil {
				t.Fatal(err)
			}

			values := make([]float64, n)
			for i, v := range z.Data {
				values[i] = float64(v)
			}
			m, sd := stat.MeanStdDev(values, nil)
			if math.Abs(m-tt.wantMean) > 0.03 || math.Abs(sd-tt.wantSD) > 0.03 {
				t.Errorf("z ~ N(%.3f, %.3f), erwartet N(%v, %v)", m, sd, tt.wantMean, tt.wantSD)
			}

			// frisches Rauschen bei jedem Aufruf
			_, eps2, _ := s.Sample(p)
			if cmp.Equal(eps.Data, eps2.Data) {
				t.Error("zwei Aufrufe lieferten dasselbe eps")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	for _, cfg := range []Config{SceneConfig(), MNISTConfig(), tinyConfig(), smallSceneConfig()} {
		if err := cfg.Validate(); err != nil {
			t.Errorf("%s: %v", cfg.Name, err)
		}
	}

	mse := MNISTConfig()
	mse.UseMSE()
	if err := mse.Validate(); err != nil {
		t.Errorf("mse: %v", err)
	}

	cases := []struct {
		name   string
		modify func(*Config)
	}{
		{"bce with linear output", func(c *Config) { c.Output.Activation = nn.ActivationIdentity }},
		{"mse with sigmoid output", func(c *Config) { c.Reconstruction = ReconstructionMSE }},
		{"output channels", func(c *Config) { c.Output.Filters = 3 }},
		{"seed does not reach image size", func(c *Config) { c.SeedHeight = 3 }},
		{"kernel larger than image", func(c *Config) { c.Encoder[0].Kernel = 9; c.Encoder[0].Padding = nn.PaddingValid }},
		{"zero latent", func(c *Config) { c.LatentDim = 0 }},
		{"clamp", func(c *Config) { c.LogVarMin = c.LogVarMax }},
		{"unknown activation", func(c *Config) { c.DenseActivation = "tanh" }},
		{"unknown reconstruction", func(c *Config) { c.Reconstruction = "l1" }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tinyConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("erwartet ErrInvalidConfig, bekam %v", err)
			}
			if _, err := New(cfg, ml.NewRNG(1)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New sollte ErrInvalidConfig liefern, bekam %v", err)
			}
		})
	}
}

func TestShapeChains(t *testing.T) {
	cfg := SceneConfig()

	enc, err := cfg.EncoderShapes()
	if err != nil {
		t.Fatal(err)
	}
	want := []ml.Shape{{-1, 63, 63, 64}, {-1, 61, 61, 64}, {-1, 59, 59, 64}, {-1, 59 * 59 * 64}, {-1, 2}}
	if diff := cmp.Diff(want, enc); diff != "" {
		t.Errorf("Encoder-Shapes (-want +got):\n%s", diff)
	}

	dec, err := cfg.DecoderShapes()
	if err != nil {
		t.Fatal(err)
	}
	want = []ml.Shape{{-1, 4096}, {-1, 12288}, {-1, 64, 64, 3}, {-1, 64, 64, 64}, {-1, 64, 64, 64}, {-1, 64, 64, 3}}
	if diff := cmp.Diff(want, dec); diff != "" {
		t.Errorf("Decoder-Shapes (-want +got):\n%s", diff)
	}
}

func TestEndToEndShapes(t *testing.T) {
	rng := ml.NewRNG(5)
	m, err := New(smallSceneConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}

	x := uniformBatch(rng, 8, 64, 64, 3)
	p, err := m.Forward(x)
	if err != nil {
		t.Fatal(err)
	}

	for name, got := range map[string]ml.Shape{"mean": p.Mean.Shape, "log_var": p.LogVar.Shape, "z": p.Z.Shape} {
		if !got.Equal(ml.Shape{8, 2}) {
			t.Errorf("%s Shape %v, erwartet [8, 2]", name, got)
		}
	}
	if !p.Recon.Shape.Equal(ml.Shape{8, 64, 64, 3}) {
		t.Errorf("Rekonstruktion Shape %v", p.Recon.Shape)
	}
	if p.Recon.Min() < 0 || p.Recon.Max() > 1 {
		t.Errorf("Sigmoid-Ausgabe ausserhalb [0, 1]: [%v, %v]", p.Recon.Min(), p.Recon.Max())
	}

	res, err := m.Loss(p)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Finite() || res.Total < 0 || res.KL < 0 {
		t.Errorf("Verlust %+v sollte endlich und >= 0 sein", res)
	}

	if _, err := m.Forward(ml.New(8, 32, 32, 3)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("falsche Bildgroesse sollte ErrShapeMismatch liefern, bekam %v", err)
	}
	if _, err := m.Decode(ml.New(8, 3)); !errors.Is(err, ml.ErrShapeMismatch) {
		t.Errorf("falsche Latent-Breite sollte ErrShapeMismatch liefern, bekam %v", err)
	}
}

// fixedNoise laesst jeden Forward-Pass dasselbe eps ziehen
func fixedNoise(m *Model, x *ml.Tensor) func() (LossResult, error) {
	return func() (LossResult, error) {
		m.Sampler = NewSampler(ml.NewRNG(42))
		p, err := m.Forward(x)
		if err != nil {
			return LossResult{}, err
		}
		return m.Loss(p)
	}
}

func TestModelGradients(t *testing.T) {
	rng := ml.NewRNG(9)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}
	x := uniformBatch(rng, 3, 8, 8, 1)
	loss := fixedNoise(m, x)

	m.Sampler = NewSampler(ml.NewRNG(42))
	nn.ZeroGrad(m.Params())
	p, err := m.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(p); err != nil {
		t.Fatal(err)
	}

	const eps = 1e-2
	for _, param := range m.Params() {
		for i := 0; i < min(4, param.Value.Len()); i++ {
			orig := param.Value.Data[i]
			param.Value.Data[i] = orig + eps
			plus, err := loss()
			if err != nil {
				t.Fatal(err)
			}
			param.Value.Data[i] = orig - eps
			minus, err := loss()
			if err != nil {
				t.Fatal(err)
			}
			param.Value.Data[i] = orig

			numeric := (plus.Total - minus.Total) / (2 * eps)
			analytic := float64(param.Grad.Data[i])
			if math.Abs(numeric-analytic) > 1e-2+5e-2*math.Abs(numeric) {
				t.Errorf("%s[%d]: analytisch %v, numerisch %v", param.Name, i, analytic, numeric)
			}
		}
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	rng := ml.NewRNG(13)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}
	opt, err := optim.New("adam", 0.01)
	if err != nil {
		t.Fatal(err)
	}

	x := uniformBatch(rng, 4, 8, 8, 1)
	for i := range x.Data {
		x.Data[i] = float32(math.Round(float64(x.Data[i])))
	}

	average := func() float64 {
		var s float64
		for range 10 {
			res, err := m.Evaluate(x)
			if err != nil {
				t.Fatal(err)
			}
			s += res.Total
		}
		return s / 10
	}

	before := average()
	for range 200 {
		if _, err := m.TrainStep(x, opt); err != nil {
			t.Fatal(err)
		}
	}
	after := average()

	if after >= before {
		t.Errorf("Verlust sank nicht: vorher %v, nachher %v", before, after)
	}
}

func TestStalePass(t *testing.T) {
	rng := ml.NewRNG(1)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}
	x := uniformBatch(rng, 2, 8, 8, 1)

	old, _ := m.Forward(x)
	if _, err := m.Forward(x); err != nil {
		t.Fatal(err)
	}
	if err := m.Backward(old); err == nil {
		t.Error("Backward mit veraltetem Pass sollte fehlschlagen")
	}
}

func TestLogVarClamp(t *testing.T) {
	rng := ml.NewRNG(2)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}
	m.Encoder.LogVar.Bias.Value.Fill(1000)

	x := uniformBatch(rng, 2, 8, 8, 1)
	nn.ZeroGrad(m.Params())
	p, err := m.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if p.LogVar.Max() != m.Config.LogVarMax {
		t.Errorf("log_var nicht geklemmt: max %v", p.LogVar.Max())
	}
	if !p.Z.AllFinite() {
		t.Error("z sollte trotz grossem log_var endlich sein")
	}

	if err := m.Backward(p); err != nil {
		t.Fatal(err)
	}
	for i, g := range m.Encoder.LogVar.Bias.Grad.Data {
		if g != 0 {
			t.Errorf("geklemmtes log_var[%d] sollte keinen Gradienten haben, bekam %v", i, g)
		}
	}
}

func TestNonFiniteWeights(t *testing.T) {
	rng := ml.NewRNG(3)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}
	m.Encoder.Mean.Bias.Value.Data[0] = float32(math.Inf(1))

	if _, err := m.Forward(uniformBatch(rng, 2, 8, 8, 1)); !errors.Is(err, ErrNumericInstability) {
		t.Errorf("Inf-Gewicht sollte ErrNumericInstability liefern, bekam %v", err)
	}
}

func TestLatentGrid(t *testing.T) {
	if diff := cmp.Diff([]float64{-3, -1.5, 0, 1.5, 3}, LatentGrid(5, -3, 3), approx); diff != "" {
		t.Errorf("LatentGrid (-want +got):\n%s", diff)
	}
	if got := LatentGrid(1, -4, 4); len(got) != 1 || got[0] != 0 {
		t.Errorf("LatentGrid(1) = %v", got)
	}
	if got := LatentGrid(0, -4, 4); got != nil {
		t.Errorf("LatentGrid(0) = %v", got)
	}
}

func TestManifold(t *testing.T) {
	rng := ml.NewRNG(4)
	cfg := tinyConfig()
	cfg.Channels = 3
	cfg.Output.Filters = 3
	m, err := New(cfg, rng)
	if err != nil {
		t.Fatal(err)
	}

	const n = 3
	canvas, err := Manifold(m, n, -2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !canvas.Shape.Equal(ml.Shape{n * 8, n * 8, 3}) {
		t.Fatalf("Leinwand Shape %v", canvas.Shape)
	}

	// Kachel oben rechts: groesstes x, groesstes y
	z, _ := ml.FromSlice([]float32{2, 2}, 1, 2)
	tile, err := m.Decode(z)
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			for c := 0; c < 3; c++ {
				got := canvas.Data[(y*n*8+(n-1)*8+x)*3+c]
				want := tile.Data[(y*8+x)*3+c]
				if math.Abs(float64(got-want)) > 1e-6 {
					t.Fatalf("Pixel (%d, %d, %d) = %v, erwartet %v", y, x, c, got, want)
				}
			}
		}
	}

	if _, err := Manifold(m, 0, -2, 2); err == nil {
		t.Error("Gittergroesse 0 sollte fehlschlagen")
	}
}

func TestRoundTripShape(t *testing.T) {
	rng := ml.NewRNG(6)
	m, err := New(tinyConfig(), rng)
	if err != nil {
		t.Fatal(err)
	}

	for _, batch := range []int{1, 2, 5} {
		x := uniformBatch(rng, batch, 8, 8, 1)
		post, err := m.Encode(x)
		if err != nil {
			t.Fatal(err)
		}
		recon, err := m.Decode(post.Mean)
		if err != nil {
			t.Fatal(err)
		}
		if !recon.Shape.Equal(x.Shape) {
			t.Errorf("Batch %d: Rekonstruktion %v, Eingabe %v", batch, recon.Shape, x.Shape)
		}
	}
}
