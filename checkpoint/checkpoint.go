// MODUL: checkpoint
// ZWECK: Speichern und Laden aller VAE-Parameter im safetensors-Format
// INPUT: vae.Model, Zielpfad, Speicher-Datentyp (F32, F16, BF16)
// OUTPUT: .safetensors Datei mit Config und Trainingsstand als Metadaten
// NEBENEFFEKTE: Schreibt ins Dateisystem
// ABHAENGIGKEITEN: github.com/x448/float16, github.com/d4l3k/go-bfloat16
// HINWEISE: Save schreibt in eine temporaere Datei im Zielverzeichnis und
//           benennt sie danach um. Load prueft alle Namen und Shapes, bevor
//           ein einziger Parameter ueberschrieben wird.

package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/7blacky7/vae/ml"
	"github.com/7blacky7/vae/ml/nn"
	"github.com/7blacky7/vae/model/vae"
)

// ErrParamMismatch meldet fehlende, ueberzaehlige oder falsch geformte Parameter
var ErrParamMismatch = errors.New("checkpoint does not match model")

// maxHeaderSize schuetzt vor kaputten Dateien
const maxHeaderSize = 100 << 20

// Metadata steht im __metadata__ Block
type Metadata struct {
	Config  vae.Config
	Step    int
	Loss    float64
	RunID   string
	Created time.Time
}

// tensorInfo ist ein Eintrag im safetensors-Header
type tensorInfo struct {
	Dtype       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

func (m Metadata) encode() (map[string]string, error) {
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return nil, err
	}
	out := map[string]string{
		"format":  "vae",
		"config":  string(cfg),
		"step":    strconv.Itoa(m.Step),
		"loss":    strconv.FormatFloat(m.Loss, 'g', -1, 64),
		"run_id":  m.RunID,
		"created": m.Created.UTC().Format(time.RFC3339),
	}
	return out, nil
}

func decodeMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	if raw["format"] != "vae" {
		return m, fmt.Errorf("not a vae checkpoint (format %q)", raw["format"])
	}
	if err := json.Unmarshal([]byte(raw["config"]), &m.Config); err != nil {
		return m, fmt.Errorf("config: %w", err)
	}

	var err error
	if s := raw["step"]; s != "" {
		if m.Step, err = strconv.Atoi(s); err != nil {
			return m, fmt.Errorf("step: %w", err)
		}
	}
	if s := raw["loss"]; s != "" {
		if m.Loss, err = strconv.ParseFloat(s, 64); err != nil {
			return m, fmt.Errorf("loss: %w", err)
		}
	}
	if s := raw["created"]; s != "" {
		if m.Created, err = time.Parse(time.RFC3339, s); err != nil {
			return m, fmt.Errorf("created: %w", err)
		}
	}
	m.RunID = raw["run_id"]
	return m, nil
}

// encodeValues kodiert float32-Werte little-endian im gewuenschten Typ
func encodeValues(dtype ml.DType, values []float32) ([]byte, error) {
	switch dtype {
	case ml.DTypeF32:
		buf := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		return buf, nil
	case ml.DTypeF16:
		buf := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(v).Bits())
		}
		return buf, nil
	case ml.DTypeBF16:
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %v", dtype)
	}
}

func decodeValues(dtype ml.DType, buf []byte) ([]float32, error) {
	switch dtype {
	case ml.DTypeF32:
		values := make([]float32, len(buf)/4)
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, values); err != nil {
			return nil, err
		}
		return values, nil
	case ml.DTypeF16:
		values := make([]float32, len(buf)/2)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32()
		}
		return values, nil
	case ml.DTypeBF16:
		return bfloat16.DecodeFloat32(buf), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %v", dtype)
	}
}

// Save schreibt alle Parameter von m atomar nach path
func Save(path string, m *vae.Model, meta Metadata, dtype ml.DType) error {
	meta.Config = m.Config
	if meta.Created.IsZero() {
		meta.Created = time.Now()
	}
	rawMeta, err := meta.encode()
	if err != nil {
		return err
	}

	params := sortedParams(m.Params())
	header := map[string]any{"__metadata__": rawMeta}
	blobs := make([][]byte, len(params))
	var offset int64
	for i, p := range params {
		if blobs[i], err = encodeValues(dtype, p.Value.Data); err != nil {
			return err
		}
		header[p.Name] = tensorInfo{
			Dtype:       dtype.String(),
			Shape:       p.Value.Shape,
			DataOffsets: [2]int64{offset, offset + int64(len(blobs[i]))},
		}
		offset += int64(len(blobs[i]))
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// Header auf 8 Byte ausrichten
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, []byte(strings.Repeat(" ", 8-pad))...)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.partial")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		f.Close()
		return err
	}
	w.Write(headerJSON)
	for _, b := range blobs {
		w.Write(b)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}

	slog.Debug("checkpoint saved", "path", path, "step", meta.Step, "dtype", dtype, "bytes", offset)
	return nil
}

func sortedParams(params []*nn.Param) []*nn.Param {
	params = slices.Clone(params)
	slices.SortFunc(params, func(a, b *nn.Param) int { return strings.Compare(a.Name, b.Name) })
	return params
}

type file struct {
	meta    map[string]string
	tensors map[string]tensorInfo
	// dataStart ist der Byte-Offset hinter dem Header
	dataStart int64
}

func readHeader(r io.Reader) (*file, error) {
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if size == 0 || size > maxHeaderSize {
		return nil, fmt.Errorf("invalid header size %d", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	f := &file{tensors: make(map[string]tensorInfo, len(raw)), dataStart: 8 + int64(size)}
	for name, msg := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(msg, &f.meta); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		f.tensors[name] = info
	}
	return f, nil
}

// ReadMetadata liest nur den Header und gibt die Metadaten zurueck
func ReadMetadata(path string) (Metadata, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer fh.Close()

	f, err := readHeader(bufio.NewReader(fh))
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	return decodeMetadata(f.meta)
}

// Load ueberschreibt alle Parameter von m mit den Werten aus path.
// Bei jedem Fehler bleibt m unveraendert.
func Load(path string, m *vae.Model) (Metadata, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer fh.Close()

	f, err := readHeader(bufio.NewReader(fh))
	if err != nil {
		return Metadata{}, fmt.Errorf("%s: %w", path, err)
	}
	meta, err := decodeMetadata(f.meta)
	if err != nil {
		return meta, fmt.Errorf("%s: %w", path, err)
	}

	if err := compatible(meta.Config, m.Config); err != nil {
		return meta, fmt.Errorf("%s: %w", path, err)
	}
	params := sortedParams(m.Params())
	if err := validate(f, params); err != nil {
		return meta, fmt.Errorf("%s: %w", path, err)
	}

	values := make([][]float32, len(params))
	for i, p := range params {
		info := f.tensors[p.Name]
		dtype, _ := ml.ParseDType(info.Dtype)
		buf := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
		if _, err := fh.ReadAt(buf, f.dataStart+info.DataOffsets[0]); err != nil {
			return meta, fmt.Errorf("%s: tensor %s: %w", path, p.Name, err)
		}
		if values[i], err = decodeValues(dtype, buf); err != nil {
			return meta, fmt.Errorf("%s: tensor %s: %w", path, p.Name, err)
		}
	}

	for i, p := range params {
		copy(p.Value.Data, values[i])
	}
	slog.Debug("checkpoint loaded", "path", path, "step", meta.Step, "params", len(params))
	return meta, nil
}

// compatible vergleicht, was die Parameter-Shapes nicht verraten:
// Verlustart und Aktivierungen
func compatible(stored, model vae.Config) error {
	var problems []string
	if stored.Reconstruction != model.Reconstruction {
		problems = append(problems, fmt.Sprintf("trained with %s loss, model uses %s", stored.Reconstruction, model.Reconstruction))
	}
	if stored.Output.Activation != model.Output.Activation {
		problems = append(problems, fmt.Sprintf("output activation %q, model uses %q", stored.Output.Activation, model.Output.Activation))
	}
	if stored.DenseActivation != model.DenseActivation {
		problems = append(problems, fmt.Sprintf("dense activation %q, model uses %q", stored.DenseActivation, model.DenseActivation))
	}
	for name, pair := range map[string][2][]vae.ConvSpec{
		"encoder": {stored.Encoder, model.Encoder},
		"decoder": {stored.Decoder, model.Decoder},
	} {
		a, b := pair[0], pair[1]
		for i := range min(len(a), len(b)) {
			if a[i].Activation != b[i].Activation {
				problems = append(problems, fmt.Sprintf("%s conv %d activation %q, model uses %q", name, i, a[i].Activation, b[i].Activation))
			}
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("%w: %s", ErrParamMismatch, strings.Join(problems, "; "))
	}
	return nil
}

func validate(f *file, params []*nn.Param) error {
	var problems []string
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
		info, ok := f.tensors[p.Name]
		if !ok {
			problems = append(problems, "missing "+p.Name)
			continue
		}
		if !p.Value.Shape.Equal(info.Shape) {
			problems = append(problems, fmt.Sprintf("%s has shape %v, model expects %v", p.Name, ml.Shape(info.Shape), p.Value.Shape))
			continue
		}
		dtype, err := ml.ParseDType(info.Dtype)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", p.Name, err))
			continue
		}
		if want := int64(dtype.Size() * p.Value.Len()); info.DataOffsets[1]-info.DataOffsets[0] != want || info.DataOffsets[0] < 0 {
			problems = append(problems, fmt.Sprintf("%s has %d bytes, expected %d", p.Name, info.DataOffsets[1]-info.DataOffsets[0], want))
		}
	}
	for name := range f.tensors {
		if !known[name] {
			problems = append(problems, "unexpected "+name)
		}
	}

	if len(problems) > 0 {
		slices.Sort(problems)
		return fmt.Errorf("%w: %s", ErrParamMismatch, strings.Join(problems, "; "))
	}
	return nil
}

// Open baut ein Modell aus der gespeicherten Config und laedt die Gewichte
func Open(path string, rng *ml.RNG) (*vae.Model, Metadata, error) {
	meta, err := ReadMetadata(path)
	if err != nil {
		return nil, meta, err
	}
	m, err := vae.New(meta.Config, rng)
	if err != nil {
		return nil, meta, err
	}
	if _, err := Load(path, m); err != nil {
		return nil, meta, err
	}
	return m, meta, nil
}
