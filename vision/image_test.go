// MODUL: image_test
// ZWECK: Tests fuer Bild-Lade- und Verarbeitungsfunktionen
// INPUT: Synthetische Bilder und PNG-Bytes
// OUTPUT: Testresultate
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: testing, image, image/png, bytes
// HINWEISE: Testet Resize, Crop, Composite und Prepare

package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// createPNGBytes erzeugt PNG-Bytes aus einem einfarbigen Testbild
func createPNGBytes(w, h int, c color.Color) []byte {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rgba.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	_ = png.Encode(&buf, rgba)
	return buf.Bytes()
}

func TestLoadImageFromBytes(t *testing.T) {
	img, err := LoadImageFromBytes(createPNGBytes(100, 50, color.RGBA{255, 0, 0, 255}))
	if err != nil {
		t.Fatalf("LoadImageFromBytes() error = %v", err)
	}
	if img.Width != 100 || img.Height != 50 {
		t.Errorf("Groesse = %dx%d, erwartet 100x50", img.Width, img.Height)
	}
	if img.Format != FormatPNG {
		t.Errorf("Format = %v, erwartet %v", img.Format, FormatPNG)
	}

	if _, err := LoadImageFromBytes([]byte{0, 0, 0, 0}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Erwartet ErrUnknownFormat, bekam %v", err)
	}
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "white.png")
	if err := os.WriteFile(path, createPNGBytes(8, 6, color.White), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage() error = %v", err)
	}
	if img.Width != 8 || img.Height != 6 {
		t.Errorf("Groesse = %dx%d, erwartet 8x6", img.Width, img.Height)
	}

	if _, err := LoadImage(filepath.Join(t.TempDir(), "fehlt.png")); err == nil {
		t.Error("Erwartet Fehler bei fehlender Datei")
	}
}

func TestResizeImage(t *testing.T) {
	img, _ := LoadImageFromBytes(createPNGBytes(100, 100, color.White))

	resized, err := ResizeImage(img, 50, 20)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	if resized.Width != 50 || resized.Height != 20 {
		t.Errorf("Groesse = %dx%d, erwartet 50x20", resized.Width, resized.Height)
	}
	if c := resized.Image.RGBAAt(10, 10); c.R != 255 {
		t.Errorf("Weiss sollte weiss bleiben, bekam %v", c)
	}

	if _, err := ResizeImage(img, 0, 10); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Erwartet ErrInvalidSize, bekam %v", err)
	}
}

func TestCenterCrop(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 30, 10))
	// mittleres Drittel rot
	for y := 0; y < 10; y++ {
		for x := 10; x < 20; x++ {
			rgba.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}
	img := newInput(rgba, FormatPNG)

	cropped := CenterCrop(img, 1, 1)
	if cropped.Width != 10 || cropped.Height != 10 {
		t.Fatalf("Groesse = %dx%d, erwartet 10x10", cropped.Width, cropped.Height)
	}
	if c := cropped.Image.RGBAAt(0, 0); c.R != 255 {
		t.Errorf("Zuschnitt sollte die rote Mitte enthalten, bekam %v", c)
	}
}

func TestComposite(t *testing.T) {
	img, _ := LoadImageFromBytes(createPNGBytes(4, 4, color.RGBA{0, 0, 0, 0}))

	out := Composite(img, color.White)
	if c := out.Image.RGBAAt(1, 1); c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Transparenz sollte weiss werden, bekam %v", c)
	}
}

func TestPrepare(t *testing.T) {
	img, _ := LoadImageFromBytes(createPNGBytes(40, 20, color.White))

	out, err := Prepare(img, WithSize(8, 8), WithCenterCrop(true))
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 8 || out.Height != 8 {
		t.Errorf("Groesse = %dx%d, erwartet 8x8", out.Width, out.Height)
	}

	if _, err := Prepare(img, WithChannels(2)); !errors.Is(err, ErrInvalidChannels) {
		t.Errorf("Erwartet ErrInvalidChannels, bekam %v", err)
	}
	if _, err := Prepare(img, WithSize(8, 0)); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Erwartet ErrInvalidSize, bekam %v", err)
	}
}
