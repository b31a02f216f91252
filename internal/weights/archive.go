// Package weights stores and loads named network tensors as a single
// archive file. The container is CBOR; tensor payloads are raw
// little-endian element data, either f32 or f16.
package weights

import (
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/wuyize25/oidn/internal/device"
	"github.com/wuyize25/oidn/internal/tensor"
)

// Tensor is one stored tensor record.
type Tensor struct {
	Dims     []int  `cbor:"dims"`
	Layout   string `cbor:"layout"`
	DataType string `cbor:"dataType"`
	Data     []byte `cbor:"data"`
}

// Archive is a set of named tensors.
type Archive struct {
	Tensors map[string]Tensor `cbor:"tensors"`
}

func NewArchive() *Archive {
	return &Archive{Tensors: make(map[string]Tensor)}
}

// Add stores f32 data under a name.
func (a *Archive) Add(name string, desc tensor.Desc, data []float32) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("weights %q: %w", name, err)
	}
	if len(data) != desc.NumElements() {
		return fmt.Errorf("weights %q: %d elements, descriptor wants %d",
			name, len(data), desc.NumElements())
	}
	var payload []byte
	switch desc.DataType {
	case tensor.Float32:
		payload = make([]byte, len(data)*4)
		for i, v := range data {
			bits := math.Float32bits(v)
			payload[4*i] = byte(bits)
			payload[4*i+1] = byte(bits >> 8)
			payload[4*i+2] = byte(bits >> 16)
			payload[4*i+3] = byte(bits >> 24)
		}
	case tensor.Float16:
		payload = tensor.FloatsToHalf(data)
	default:
		return fmt.Errorf("weights %q: unsupported datatype %s", name, desc.DataType)
	}
	a.Tensors[name] = Tensor{
		Dims:     desc.Dims,
		Layout:   desc.Layout.String(),
		DataType: desc.DataType.String(),
		Data:     payload,
	}
	return nil
}

// Desc reconstructs the descriptor of a stored tensor.
func (a *Archive) Desc(name string) (tensor.Desc, error) {
	rec, ok := a.Tensors[name]
	if !ok {
		return tensor.Desc{}, fmt.Errorf("weights %q: not found", name)
	}
	layout, err := parseLayout(rec.Layout)
	if err != nil {
		return tensor.Desc{}, fmt.Errorf("weights %q: %w", name, err)
	}
	dtype, err := parseDataType(rec.DataType)
	if err != nil {
		return tensor.Desc{}, fmt.Errorf("weights %q: %w", name, err)
	}
	d := tensor.Desc{Dims: rec.Dims, Layout: layout, DataType: dtype}
	if err := d.Validate(); err != nil {
		return tensor.Desc{}, fmt.Errorf("weights %q: %w", name, err)
	}
	if len(rec.Data) != d.ByteSize() {
		return tensor.Desc{}, fmt.Errorf("weights %q: payload is %d bytes, descriptor wants %d",
			name, len(rec.Data), d.ByteSize())
	}
	return d, nil
}

// Floats returns a stored tensor widened to f32.
func (a *Archive) Floats(name string) ([]float32, error) {
	d, err := a.Desc(name)
	if err != nil {
		return nil, err
	}
	rec := a.Tensors[name]
	switch d.DataType {
	case tensor.Float16:
		return tensor.HalfToFloats(rec.Data), nil
	default:
		out := make([]float32, d.NumElements())
		for i := range out {
			bits := uint32(rec.Data[4*i]) | uint32(rec.Data[4*i+1])<<8 |
				uint32(rec.Data[4*i+2])<<16 | uint32(rec.Data[4*i+3])<<24
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	}
}

// Upload materializes a stored tensor on a device as f32, which is what
// the CPU kernel catalog consumes.
func (a *Archive) Upload(dev device.Device, name string, storage device.Storage) (*device.Tensor, error) {
	d, err := a.Desc(name)
	if err != nil {
		return nil, err
	}
	data, err := a.Floats(name)
	if err != nil {
		return nil, err
	}
	d.DataType = tensor.Float32
	t, err := dev.NewTensor(d, storage)
	if err != nil {
		return nil, err
	}
	if err := device.WriteFloats(t, data); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// Load reads an archive from disk.
func Load(path string) (*Archive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Archive
	if err := cbor.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("weights archive %s: %w", path, err)
	}
	return &a, nil
}

// Save writes the archive to disk.
func (a *Archive) Save(path string) error {
	raw, err := cbor.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func parseLayout(s string) (tensor.Layout, error) {
	switch s {
	case "x":
		return tensor.X, nil
	case "chw":
		return tensor.CHW, nil
	case "hwc":
		return tensor.HWC, nil
	case "oihw":
		return tensor.OIHW, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", s)
	}
}

func parseDataType(s string) (tensor.DataType, error) {
	switch s {
	case "f32":
		return tensor.Float32, nil
	case "f16":
		return tensor.Float16, nil
	default:
		return 0, fmt.Errorf("unknown datatype %q", s)
	}
}
