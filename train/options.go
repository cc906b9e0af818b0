package train

import (
	"fmt"

	"github.com/7blacky7/vae/ml"
)

// Options steuert einen Trainingslauf
type Options struct {
	// Steps ist die maximale Anzahl an Optimierungsschritten
	Steps     int
	BatchSize int
	// LogEvery ist zugleich das Intervall der Konvergenzpruefung
	LogEvery int
	// CheckpointEvery 0 speichert nur am Ende
	CheckpointEvery int
	// Tolerance ist die minimale relative Aenderung des geglaetteten
	// Verlusts zwischen zwei Log-Intervallen, 0 schaltet die Pruefung ab
	Tolerance float64
	// Smoothing ist der Gewichtungsfaktor des gleitenden Mittels
	Smoothing float64
}

// Option veraendert Options
type Option func(*Options)

// DefaultOptions entspricht dem Szenen-Skript: 36er Batches, Log alle 100 Schritte
func DefaultOptions() Options {
	return Options{
		Steps:     1000,
		BatchSize: 36,
		LogEvery:  100,
		Smoothing: 0.9,
	}
}

func WithSteps(n int) Option {
	return func(o *Options) { o.Steps = n }
}

func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

func WithLogEvery(n int) Option {
	return func(o *Options) { o.LogEvery = n }
}

func WithCheckpointEvery(n int) Option {
	return func(o *Options) { o.CheckpointEvery = n }
}

func WithTolerance(tol float64) Option {
	return func(o *Options) { o.Tolerance = tol }
}

func WithSmoothing(alpha float64) Option {
	return func(o *Options) { o.Smoothing = alpha }
}

// Validate prueft die Optionen gegen die erwartete Bild-Shape
func (o Options) Validate() error {
	switch {
	case o.Steps < 1:
		return fmt.Errorf("steps must be positive, got %d", o.Steps)
	case o.BatchSize < 1:
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	case o.LogEvery < 1:
		return fmt.Errorf("log interval must be positive, got %d", o.LogEvery)
	case o.CheckpointEvery < 0:
		return fmt.Errorf("checkpoint interval must not be negative, got %d", o.CheckpointEvery)
	case o.Tolerance < 0:
		return fmt.Errorf("tolerance must not be negative, got %v", o.Tolerance)
	case o.Smoothing < 0 || o.Smoothing >= 1:
		return fmt.Errorf("smoothing must be in [0,1), got %v", o.Smoothing)
	}
	return nil
}

// batchShape ist die Shape, die jeder Batch haben muss
func (o Options) batchShape(image ml.Shape) ml.Shape {
	s := image.Clone()
	s[0] = o.BatchSize
	return s
}
