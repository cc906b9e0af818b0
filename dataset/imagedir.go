package dataset

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/vision"
)

// ImageDir liest Bilder (png, jpeg, webp) aus einem Verzeichnisbaum. Jedes
// Bild wird mittig zugeschnitten und auf die Zielgroesse skaliert.
type ImageDir struct {
	Root  string
	paths []string
	cur   *cursor
	opts  []vision.Option
	shape ml.Shape
}

// OpenImageDir sucht alle Bilder unter root
func OpenImageDir(root string, height, width, channels int, rng *ml.RNG) (*ImageDir, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && vision.FormatFromPath(path) != vision.FormatUnknown {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", root)
	}
	slices.Sort(paths)

	slog.Debug("image directory opened", "root", root, "images", len(paths))
	return &ImageDir{
		Root:  root,
		paths: paths,
		cur:   newCursor(len(paths), rng),
		opts: []vision.Option{
			vision.WithSize(width, height),
			vision.WithChannels(channels),
			vision.WithCenterCrop(true),
		},
		shape: ml.Shape{height, width, channels},
	}, nil
}

// Len ist die Anzahl gefundener Bilder
func (d *ImageDir) Len() int {
	return len(d.paths)
}

func (d *ImageDir) Read(ctx context.Context, batchSize int) (Query, *ml.Tensor, error) {
	if err := checkBatchSize(batchSize); err != nil {
		return Query{}, nil, err
	}

	batch := ml.New(append(ml.Shape{batchSize}, d.shape...)...)
	for b := 0; b < batchSize; b++ {
		if err := ctx.Err(); err != nil {
			return Query{}, nil, err
		}

		path := d.paths[d.cur.next()]
		img, err := vision.Load(path, d.opts...)
		if err != nil {
			return Query{}, nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := ml.CheckShape(path, d.shape, img.Shape); err != nil {
			return Query{}, nil, err
		}
		copy(batch.Row(b), img.Data)
	}
	return Query{}, batch, nil
}
