// MODUL: options
// ZWECK: Functional Options fuer die Umwandlung von Bildern in Tensoren
// INPUT: Zielgroesse, Kanalzahl, Zuschnitt, Hintergrundfarbe
// OUTPUT: LoadOptions Struct mit Konfiguration
// NEBENEFFEKTE: Keine
// ABHAENGIGKEITEN: image/color (Standard-Library)
// HINWEISE: Ohne Zielgroesse bleibt das Bild unskaliert

package vision

import (
	"errors"
	"image/color"
)

// LoadOptions steuert, wie ein Bild zu einem [H, W, C] Tensor wird
type LoadOptions struct {
	Width      int         // Zielbreite, 0 = unveraendert
	Height     int         // Zielhoehe, 0 = unveraendert
	Channels   int         // 1 (Graustufen) oder 3 (RGB)
	CenterCrop bool        // vor dem Skalieren quadratisch zuschneiden
	Background color.Color // ersetzt Transparenz
}

// Option ist eine funktionale Option fuer LoadOptions
type Option func(*LoadOptions)

var (
	ErrInvalidChannels = errors.New("vision: channels must be 1 or 3")
	ErrInvalidSize     = errors.New("vision: invalid target size")
)

// DefaultLoadOptions: RGB in Originalgroesse auf weissem Hintergrund
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Channels: 3, Background: color.White}
}

// WithSize setzt die Zielgroesse
func WithSize(width, height int) Option {
	return func(o *LoadOptions) {
		o.Width, o.Height = width, height
	}
}

// WithChannels setzt die Kanalzahl des Tensors
func WithChannels(c int) Option {
	return func(o *LoadOptions) {
		o.Channels = c
	}
}

// WithCenterCrop schneidet vor dem Skalieren auf das Seitenverhaeltnis des Ziels zu
func WithCenterCrop(enabled bool) Option {
	return func(o *LoadOptions) {
		o.CenterCrop = enabled
	}
}

// WithBackground setzt die Farbe unter transparenten Pixeln
func WithBackground(c color.Color) Option {
	return func(o *LoadOptions) {
		o.Background = c
	}
}

// Apply wendet alle Options an
func (o *LoadOptions) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}

// Validate prueft ob die LoadOptions gueltig sind
func (o *LoadOptions) Validate() error {
	if o.Channels != 1 && o.Channels != 3 {
		return ErrInvalidChannels
	}
	if o.Width < 0 || o.Height < 0 || (o.Width == 0) != (o.Height == 0) {
		return ErrInvalidSize
	}
	return nil
}
