// MODUL: config
// ZWECK: Statische Architektur-Beschreibung eines VAE und deren Validierung
// INPUT: Bildgroesse, Latent-Dimension, Layer-Stapel, Verlustart
// OUTPUT: Config, Shape-Kette von Encoder und Decoder
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: ml, ml/nn
// HINWEISE: Alle Shapes stehen vor dem ersten Batch fest. Validate rechnet die
//           komplette Kette durch und lehnt inkonsistente Configs ab.

package vae

import (
	"errors"
	"fmt"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
)

// ErrInvalidConfig wird von Validate fuer jede inkonsistente Config gemeldet
var ErrInvalidConfig = errors.New("invalid vae config")

// Reconstruction waehlt den Rekonstruktionsterm des Verlusts
type Reconstruction string

const (
	// ReconstructionBCE ist binaere Kreuzentropie, verlangt Sigmoid-Ausgabe
	ReconstructionBCE Reconstruction = "bce"
	// ReconstructionMSE ist quadratischer Fehler, verlangt lineare Ausgabe
	ReconstructionMSE Reconstruction = "mse"
)

// ConvSpec beschreibt einen Faltungs-Layer samt Aktivierung
type ConvSpec struct {
	Filters    int           `json:"filters"`
	Kernel     int           `json:"kernel"`
	Stride     int           `json:"stride,omitempty"`
	Padding    nn.Padding    `json:"padding"`
	Activation nn.Activation `json:"activation"`
}

func (c ConvSpec) stride() int {
	return max(c.Stride, 1)
}

// Config ist die vollstaendige Architektur. Sie wird als Metadatum in
// Checkpoints abgelegt, deshalb die JSON-Tags.
type Config struct {
	Name      string `json:"name"`
	Height    int    `json:"height"`
	Width     int    `json:"width"`
	Channels  int    `json:"channels"`
	LatentDim int    `json:"latent_dim"`

	// Encoder: Faltungen, Flatten, optionale Dense-Layer, dann zwei lineare Koepfe
	Encoder      []ConvSpec `json:"encoder"`
	EncoderDense []int      `json:"encoder_dense,omitempty"`

	// Decoder: Dense-Layer, Reshape auf das Seed-Gitter, transponierte Faltungen
	// und eine abschliessende Faltung auf Channels
	DecoderDense    []int         `json:"decoder_dense"`
	DenseActivation nn.Activation `json:"dense_activation"`
	SeedHeight      int           `json:"seed_height"`
	SeedWidth       int           `json:"seed_width"`
	SeedChannels    int           `json:"seed_channels"`
	Decoder         []ConvSpec    `json:"decoder"`
	Output          ConvSpec      `json:"output"`

	Reconstruction Reconstruction `json:"reconstruction"`
	LogVarMin      float32        `json:"log_var_min"`
	LogVarMax      float32        `json:"log_var_max"`
	Init           nn.Init        `json:"init"`

	Optimizer    string  `json:"optimizer"`
	LearningRate float64 `json:"learning_rate"`
}

// SceneConfig: 64x64 RGB-Szenen, RMSProp, BCE
func SceneConfig() Config {
	return Config{
		Name:      "scene",
		Height:    64,
		Width:     64,
		Channels:  3,
		LatentDim: 2,
		Encoder: []ConvSpec{
			{Filters: 64, Kernel: 2, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
		},
		DecoderDense:    []int{64 * 64},
		DenseActivation: nn.ActivationReLU,
		SeedHeight:      64,
		SeedWidth:       64,
		SeedChannels:    3,
		Decoder: []ConvSpec{
			{Filters: 64, Kernel: 3, Padding: nn.PaddingSame, Activation: nn.ActivationReLU},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingSame, Activation: nn.ActivationReLU},
		},
		Output:         ConvSpec{Filters: 3, Kernel: 2, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		Reconstruction: ReconstructionBCE,
		LogVarMin:      -20,
		LogVarMax:      20,
		Init:           nn.InitGlorotUniform,
		Optimizer:      "rmsprop",
		LearningRate:   0.001,
	}
}

// MNISTConfig: 28x28 Graustufen, Adam, BCE
func MNISTConfig() Config {
	return Config{
		Name:      "mnist",
		Height:    28,
		Width:     28,
		Channels:  1,
		LatentDim: 2,
		Encoder: []ConvSpec{
			{Filters: 64, Kernel: 2, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingValid, Activation: nn.ActivationReLU},
		},
		DecoderDense:    []int{784},
		DenseActivation: nn.ActivationReLU,
		SeedHeight:      28,
		SeedWidth:       28,
		SeedChannels:    64,
		Decoder: []ConvSpec{
			{Filters: 64, Kernel: 3, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
			{Filters: 64, Kernel: 3, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		},
		Output:         ConvSpec{Filters: 1, Kernel: 2, Padding: nn.PaddingSame, Activation: nn.ActivationSigmoid},
		Reconstruction: ReconstructionBCE,
		LogVarMin:      -20,
		LogVarMax:      20,
		Init:           nn.InitGlorotUniform,
		Optimizer:      "adam",
		LearningRate:   0.001,
	}
}

// Preset gibt eine benannte Config zurueck
func Preset(name string) (Config, error) {
	switch name {
	case "scene", "":
		return SceneConfig(), nil
	case "mnist":
		return MNISTConfig(), nil
	default:
		return Config{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidConfig, name)
	}
}

// UseMSE schaltet auf MSE mit linearer Ausgabe um
func (c *Config) UseMSE() {
	c.Reconstruction = ReconstructionMSE
	c.Output.Activation = nn.ActivationIdentity
}

// ImageShape ist die Shape eines Bild-Batches, Batch als -1
func (c Config) ImageShape() ml.Shape {
	return ml.Shape{-1, c.Height, c.Width, c.Channels}
}

// LatentShape ist die Shape von mean, log_var und z, Batch als -1
func (c Config) LatentShape() ml.Shape {
	return ml.Shape{-1, c.LatentDim}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate prueft Parameter und Shape-Kette von Encoder und Decoder
func (c Config) Validate() error {
	if c.Height < 1 || c.Width < 1 || c.Channels < 1 {
		return invalid("image shape %dx%dx%d", c.Height, c.Width, c.Channels)
	}
	if c.LatentDim < 1 {
		return invalid("latent_dim %d", c.LatentDim)
	}
	if c.SeedHeight < 1 || c.SeedWidth < 1 || c.SeedChannels < 1 {
		return invalid("decoder seed %dx%dx%d", c.SeedHeight, c.SeedWidth, c.SeedChannels)
	}
	if c.LogVarMin >= c.LogVarMax {
		return invalid("log_var clamp [%v, %v]", c.LogVarMin, c.LogVarMax)
	}
	if _, err := nn.ParseInit(string(c.Init)); err != nil {
		return invalid("%v", err)
	}

	for i, w := range append(append([]int{}, c.EncoderDense...), c.DecoderDense...) {
		if w < 1 {
			return invalid("dense layer %d has width %d", i, w)
		}
	}
	for _, s := range append(append(append([]ConvSpec{}, c.Encoder...), c.Decoder...), c.Output) {
		if s.Filters < 1 || s.Kernel < 1 || s.Stride < 0 {
			return invalid("conv layer %+v", s)
		}
		if _, err := nn.ParseActivation(string(s.Activation)); err != nil {
			return invalid("%v", err)
		}
	}
	if _, err := nn.ParseActivation(string(c.DenseActivation)); err != nil {
		return invalid("%v", err)
	}

	if c.Output.Filters != c.Channels {
		return invalid("output conv has %d filters, image has %d channels", c.Output.Filters, c.Channels)
	}

	out, err := nn.ParseActivation(string(c.Output.Activation))
	if err != nil {
		return invalid("%v", err)
	}
	switch c.Reconstruction {
	case ReconstructionBCE:
		if out != nn.ActivationSigmoid {
			return invalid("bce reconstruction needs a sigmoid output, got %q", out)
		}
	case ReconstructionMSE:
		if out != nn.ActivationIdentity {
			return invalid("mse reconstruction needs a linear output, got %q", out)
		}
	default:
		return invalid("unknown reconstruction %q", c.Reconstruction)
	}

	if _, err := c.EncoderShapes(); err != nil {
		return fmt.Errorf("%w: encoder: %w", ErrInvalidConfig, err)
	}
	if _, err := c.DecoderShapes(); err != nil {
		return fmt.Errorf("%w: decoder: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EncoderShapes gibt die Ausgabe-Shapes der Encoder-Layer zurueck, ohne
// Gewichte anzulegen. Der letzte Eintrag ist die Shape von mean und log_var.
func (c Config) EncoderShapes() ([]ml.Shape, error) {
	shape := c.ImageShape()
	var shapes []ml.Shape
	for i, s := range c.Encoder {
		next, err := nn.ConvOutput(shape, s.Kernel, s.Filters, s.stride(), s.Padding)
		if err != nil {
			return nil, fmt.Errorf("conv %d: %w", i, err)
		}
		shapes = append(shapes, next)
		shape = next
	}

	shape = ml.Shape{-1, shape[1:].Size()}
	shapes = append(shapes, shape)
	for _, w := range c.EncoderDense {
		shape = ml.Shape{-1, w}
		shapes = append(shapes, shape)
	}
	return append(shapes, c.LatentShape()), nil
}

// DecoderShapes gibt die Ausgabe-Shapes der Decoder-Layer zurueck. Der letzte
// Eintrag muss der Bild-Shape entsprechen.
func (c Config) DecoderShapes() ([]ml.Shape, error) {
	var shapes []ml.Shape
	for _, w := range c.DecoderDense {
		shapes = append(shapes, ml.Shape{-1, w})
	}
	shapes = append(shapes, ml.Shape{-1, c.SeedHeight * c.SeedWidth * c.SeedChannels})

	shape := ml.Shape{-1, c.SeedHeight, c.SeedWidth, c.SeedChannels}
	shapes = append(shapes, shape)
	for i, s := range c.Decoder {
		next, err := nn.ConvTransposeOutput(shape, s.Kernel, s.Filters, s.stride(), s.Padding)
		if err != nil {
			return nil, fmt.Errorf("transposed conv %d: %w", i, err)
		}
		shapes = append(shapes, next)
		shape = next
	}

	out, err := nn.ConvOutput(shape, c.Output.Kernel, c.Output.Filters, c.Output.stride(), c.Output.Padding)
	if err != nil {
		return nil, fmt.Errorf("output conv: %w", err)
	}
	if err := ml.CheckShape("decoder output", c.ImageShape(), out); err != nil {
		return nil, err
	}
	return append(shapes, out), nil
}
