package classifier

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Checkpoint schema: a strict, versioned binary layout. Unlike the lenient
// partial matching used when the head was first trained against a generic
// base checkpoint, loading here rejects anything that is not an exact match:
// wrong magic, wrong version, unknown tensors, missing tensors, or shape
// mismatches all fail hard. The parameter set is either complete and
// internally consistent, or the bundle does not load.
//
// Layout (little-endian):
//
//	magic      [4]byte  "TXHD"
//	version    uint32   currently 1
//	dim        uint32
//	heads      uint32
//	hidden1    uint32
//	hidden2    uint32
//	calibration float32
//	temperature float32
//	tensors    uint32   must equal len(tensorOrder)
//	per tensor: nameLen uint16, name []byte, rank uint8,
//	            dims []uint32, data []float32

const checkpointVersion = 1

var checkpointMagic = [4]byte{'T', 'X', 'H', 'D'}

// tensorOrder is the canonical serialization order and the exact required
// tensor set.
var tensorOrder = []string{
	"attn.query.weight", "attn.query.bias",
	"attn.key.weight", "attn.key.bias",
	"attn.value.weight", "attn.value.bias",
	"attn.out.weight", "attn.out.bias",
	"ffn.fc1.weight", "ffn.fc1.bias",
	"ffn.fc2.weight", "ffn.fc2.bias",
	"ffn.final.weight", "ffn.final.bias",
}

// maxTensorElems bounds a single tensor allocation while decoding untrusted
// checkpoint files.
const maxTensorElems = 64 << 20

// LoadCheckpointFile reads a head checkpoint from disk.
func LoadCheckpointFile(path string) (*Head, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: open checkpoint: %w", err)
	}
	defer f.Close()
	h, err := LoadCheckpoint(f)
	if err != nil {
		return nil, fmt.Errorf("classifier: checkpoint %s: %w", path, err)
	}
	return h, nil
}

// LoadCheckpoint decodes a head from r, enforcing the strict schema.
func LoadCheckpoint(r io.Reader) (*Head, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("bad magic %q, not a head checkpoint", magic[:])
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d, want %d", version, checkpointVersion)
	}

	var dims [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Config{
		Dim:     int(dims[0]),
		Heads:   int(dims[1]),
		Hidden1: int(dims[2]),
		Hidden2: int(dims[3]),
	}

	var scalars [2]float32
	if err := binary.Read(r, binary.LittleEndian, &scalars); err != nil {
		return nil, fmt.Errorf("read calibration scalars: %w", err)
	}
	if scalars[1] <= 0 {
		return nil, fmt.Errorf("temperature %v must be positive", scalars[1])
	}

	h, err := NewHead(cfg)
	if err != nil {
		return nil, err
	}
	h.Calibration = scalars[0]
	h.Temperature = scalars[1]

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	if int(count) != len(tensorOrder) {
		return nil, fmt.Errorf("checkpoint has %d tensors, schema requires %d", count, len(tensorOrder))
	}

	targets := h.tensorTargets()
	seen := make(map[string]bool, len(tensorOrder))
	for i := uint32(0); i < count; i++ {
		name, data, shape, err := readTensor(r)
		if err != nil {
			return nil, err
		}
		target, ok := targets[name]
		if !ok {
			return nil, fmt.Errorf("unknown tensor %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate tensor %q", name)
		}
		seen[name] = true
		if err := target.fill(name, shape, data); err != nil {
			return nil, err
		}
	}
	for _, name := range tensorOrder {
		if !seen[name] {
			return nil, fmt.Errorf("missing tensor %q", name)
		}
	}
	return h, nil
}

// SaveCheckpoint writes the head in the canonical layout.
func SaveCheckpoint(w io.Writer, h *Head) error {
	if _, err := w.Write(checkpointMagic[:]); err != nil {
		return fmt.Errorf("classifier: write magic: %w", err)
	}
	header := []any{
		uint32(checkpointVersion),
		[4]uint32{uint32(h.cfg.Dim), uint32(h.cfg.Heads), uint32(h.cfg.Hidden1), uint32(h.cfg.Hidden2)},
		[2]float32{h.Calibration, h.Temperature},
		uint32(len(tensorOrder)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("classifier: write header: %w", err)
		}
	}

	targets := h.tensorTargets()
	for _, name := range tensorOrder {
		t := targets[name]
		if err := writeTensor(w, name, t.shape(), t.data()); err != nil {
			return err
		}
	}
	return nil
}

// SaveCheckpointFile writes the head checkpoint to disk.
func SaveCheckpointFile(h *Head, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("classifier: create checkpoint: %w", err)
	}
	if err := SaveCheckpoint(f, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// tensorTarget binds a tensor name to storage inside the head.
type tensorTarget struct {
	matrix *[][]float32 // weight, nil for bias
	vector *[]float32   // bias, nil for weight
}

func (t tensorTarget) shape() []uint32 {
	if t.matrix != nil {
		m := *t.matrix
		return []uint32{uint32(len(m)), uint32(len(m[0]))}
	}
	return []uint32{uint32(len(*t.vector))}
}

func (t tensorTarget) data() []float32 {
	if t.matrix != nil {
		m := *t.matrix
		flat := make([]float32, 0, len(m)*len(m[0]))
		for _, row := range m {
			flat = append(flat, row...)
		}
		return flat
	}
	return *t.vector
}

func (t tensorTarget) fill(name string, shape []uint32, data []float32) error {
	if t.matrix != nil {
		m := *t.matrix
		if len(shape) != 2 || int(shape[0]) != len(m) || int(shape[1]) != len(m[0]) {
			return fmt.Errorf("tensor %q has shape %v, want [%d %d]", name, shape, len(m), len(m[0]))
		}
		cols := int(shape[1])
		for i := range m {
			copy(m[i], data[i*cols:(i+1)*cols])
		}
		return nil
	}
	v := *t.vector
	if len(shape) != 1 || int(shape[0]) != len(v) {
		return fmt.Errorf("tensor %q has shape %v, want [%d]", name, shape, len(v))
	}
	copy(v, data)
	return nil
}

func (h *Head) tensorTargets() map[string]tensorTarget {
	return map[string]tensorTarget{
		"attn.query.weight": {matrix: &h.Query.W},
		"attn.query.bias":   {vector: &h.Query.B},
		"attn.key.weight":   {matrix: &h.Key.W},
		"attn.key.bias":     {vector: &h.Key.B},
		"attn.value.weight": {matrix: &h.Value.W},
		"attn.value.bias":   {vector: &h.Value.B},
		"attn.out.weight":   {matrix: &h.Out.W},
		"attn.out.bias":     {vector: &h.Out.B},
		"ffn.fc1.weight":    {matrix: &h.FC1.W},
		"ffn.fc1.bias":      {vector: &h.FC1.B},
		"ffn.fc2.weight":    {matrix: &h.FC2.W},
		"ffn.fc2.bias":      {vector: &h.FC2.B},
		"ffn.final.weight":  {matrix: &h.Final.W},
		"ffn.final.bias":    {vector: &h.Final.B},
	}
}

func readTensor(r io.Reader) (name string, data []float32, shape []uint32, err error) {
	var nameLen uint16
	if err = binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return "", nil, nil, fmt.Errorf("read tensor name length: %w", err)
	}
	nameBuf := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nameBuf); err != nil {
		return "", nil, nil, fmt.Errorf("read tensor name: %w", err)
	}
	name = string(nameBuf)

	var rank uint8
	if err = binary.Read(r, binary.LittleEndian, &rank); err != nil {
		return "", nil, nil, fmt.Errorf("tensor %q: read rank: %w", name, err)
	}
	if rank == 0 || rank > 2 {
		return "", nil, nil, fmt.Errorf("tensor %q: unsupported rank %d", name, rank)
	}
	shape = make([]uint32, rank)
	if err = binary.Read(r, binary.LittleEndian, shape); err != nil {
		return "", nil, nil, fmt.Errorf("tensor %q: read shape: %w", name, err)
	}

	elems := 1
	for _, d := range shape {
		if d == 0 {
			return "", nil, nil, fmt.Errorf("tensor %q: zero dimension", name)
		}
		elems *= int(d)
	}
	if elems > maxTensorElems {
		return "", nil, nil, fmt.Errorf("tensor %q: %d elements exceeds limit", name, elems)
	}
	data = make([]float32, elems)
	if err = binary.Read(r, binary.LittleEndian, data); err != nil {
		return "", nil, nil, fmt.Errorf("tensor %q: read data: %w", name, err)
	}
	return name, data, shape, nil
}

func writeTensor(w io.Writer, name string, shape []uint32, data []float32) error {
	parts := []any{
		uint16(len(name)),
		[]byte(name),
		uint8(len(shape)),
		shape,
		data,
	}
	for _, v := range parts {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("classifier: write tensor %q: %w", name, err)
		}
	}
	return nil
}
