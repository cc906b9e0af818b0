package dataset

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/7blacky7/vae/ml"
)

// idxImages ist der Magic-Wert einer IDX-Datei mit uint8-Daten und drei Dimensionen
const idxImages = 0x00000803

var errNotIDX = errors.New("not an idx image file")

// LoadMNIST liest eine IDX-Bilddatei (z.B. train-images-idx3-ubyte, auch
// gzip-komprimiert) und gibt [n, rows, cols, 1] mit Werten in [0,1] zurueck
func LoadMNIST(path string) (*ml.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	images, err := ReadIDX(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return images, nil
}

// ReadIDX dekodiert IDX-Bilddaten aus r
func ReadIDX(r io.Reader) (*ml.Tensor, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(br, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("idx header: %w", err)
	}
	if header.Magic != idxImages {
		return nil, fmt.Errorf("%w: magic %#08x", errNotIDX, header.Magic)
	}
	if header.Count == 0 || header.Rows == 0 || header.Cols == 0 || header.Rows > 1<<12 || header.Cols > 1<<12 {
		return nil, fmt.Errorf("%w: dimensions %dx%dx%d", errNotIDX, header.Count, header.Rows, header.Cols)
	}

	n, h, w := int(header.Count), int(header.Rows), int(header.Cols)
	pixels := make([]byte, n*h*w)
	if _, err := io.ReadFull(br, pixels); err != nil {
		return nil, fmt.Errorf("idx data: %w", err)
	}

	images := ml.New(n, h, w, 1)
	for i, p := range pixels {
		images.Data[i] = float32(p) / 255
	}
	return images, nil
}

// WriteIDX schreibt [n, rows, cols, 1] mit Werten in [0,1] als IDX
func WriteIDX(w io.Writer, images *ml.Tensor) error {
	if err := ml.CheckShape("write idx", ml.Shape{-1, -1, -1, 1}, images.Shape); err != nil {
		return err
	}

	header := [4]uint32{idxImages, uint32(images.Dim(0)), uint32(images.Dim(1)), uint32(images.Dim(2))}
	if err := binary.Write(w, binary.BigEndian, header); err != nil {
		return err
	}

	pixels := make([]byte, images.Len())
	for i, v := range images.Data {
		pixels[i] = byte(min(max(v, 0), 1)*255 + 0.5)
	}
	_, err := w.Write(pixels)
	return err
}
