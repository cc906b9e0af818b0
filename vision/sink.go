// MODUL: sink
// ZWECK: Ausgabe zusammengesetzter Bilder (Manifold-Leinwand, Rekonstruktionen)
// INPUT: ml.Tensor [H, W, C] mit Werten in [0,1], Zielpfad
// OUTPUT: PNG-Datei
// NEBENEFFEKTE: Schreibt ins Dateisystem
// ABHAENGIGKEITEN: image/png
// HINWEISE: PNGSink schreibt in eine temporaere Datei und benennt sie um

package vision

import (
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/7blacky7/vae/ml"
)

// Sink nimmt ein Bild und einen Zielpfad entgegen
type Sink interface {
	Write(img *ml.Tensor, path string) error
}

// EncodePNG schreibt einen Bild-Tensor als PNG
func EncodePNG(w io.Writer, t *ml.Tensor) error {
	img, err := FromFloat32Tensor(t)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// PNGSink schreibt PNG-Dateien, Verzeichnisse werden angelegt
type PNGSink struct{}

func (PNGSink) Write(t *ml.Tensor, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".canvas-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := EncodePNG(f, t); err != nil {
		f.Close()
		return fmt.Errorf("png kodieren fehlgeschlagen: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}

	slog.Info("image written", "path", path, "shape", t.Shape)
	return nil
}
