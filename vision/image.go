// MODUL: image
// ZWECK: Bilder laden, zuschneiden und skalieren
// INPUT: Dateipfad, Bytes oder io.Reader
// OUTPUT: ImageInput Struktur mit dekodiertem Bild
// NEBENEFFEKTE: Dateisystem-Lesezugriff bei LoadImage
// ABHAENGIGKEITEN: golang.org/x/image/draw (extern), image/jpeg, image/png
// HINWEISE: Alle Bilder werden als RGBA konvertiert, WebP benoetigt x/image/webp

package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	// Standard-Decoder registrieren
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageInput enthaelt ein dekodiertes Bild mit Metadaten
type ImageInput struct {
	Image  *image.RGBA
	Width  int
	Height int
	Format ImageFormat
}

// LoadImage laedt ein Bild von einem Dateipfad
func LoadImage(path string) (*ImageInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("datei lesen fehlgeschlagen: %w", err)
	}
	return LoadImageFromBytes(data)
}

// LoadImageFromBytes dekodiert ein Bild aus Byte-Daten
func LoadImageFromBytes(data []byte) (*ImageInput, error) {
	format := DetectFormat(data)
	if err := ValidateFormat(format); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("bild dekodieren fehlgeschlagen: %w", err)
	}
	return newInput(toRGBA(img), format), nil
}

// DecodeImage dekodiert ein Bild aus einem io.Reader
func DecodeImage(reader io.Reader) (*ImageInput, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("daten lesen fehlgeschlagen: %w", err)
	}
	return LoadImageFromBytes(data)
}

func newInput(rgba *image.RGBA, format ImageFormat) *ImageInput {
	b := rgba.Bounds()
	return &ImageInput{Image: rgba, Width: b.Dx(), Height: b.Dy(), Format: format}
}

// toRGBA konvertiert ein beliebiges image.Image zu *image.RGBA mit Ursprung (0, 0)
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

// ResizeImage skaliert ein Bild auf die angegebene Groesse
func ResizeImage(img *ImageInput, width, height int) (*ImageInput, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if width == img.Width && height == img.Height {
		return img, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Image, img.Image.Bounds(), draw.Src, nil)
	return newInput(dst, img.Format), nil
}

// CenterCrop schneidet den groessten zentrierten Bereich mit dem
// Seitenverhaeltnis width:height aus
func CenterCrop(img *ImageInput, width, height int) *ImageInput {
	w, h := img.Width, img.Height
	if w*height > h*width {
		w = h * width / height
	} else {
		h = w * height / width
	}
	if w == img.Width && h == img.Height {
		return img
	}

	x0, y0 := (img.Width-w)/2, (img.Height-h)/2
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img.Image, image.Pt(x0, y0), draw.Src)
	return newInput(dst, img.Format)
}

// Composite legt das Bild ueber eine einfarbige Flaeche und entfernt so Alpha
func Composite(img *ImageInput, bg color.Color) *ImageInput {
	bounds := img.Image.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, &image.Uniform{bg}, image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img.Image, bounds.Min, draw.Over)
	return newInput(dst, img.Format)
}

// Prepare wendet Composite, Zuschnitt und Skalierung laut Options an
func Prepare(img *ImageInput, opts ...Option) (*ImageInput, error) {
	o := DefaultLoadOptions()
	o.Apply(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	if o.Background != nil {
		img = Composite(img, o.Background)
	}
	if o.Width == 0 {
		return img, nil
	}
	if o.CenterCrop {
		img = CenterCrop(img, o.Width, o.Height)
	}
	return ResizeImage(img, o.Width, o.Height)
}
