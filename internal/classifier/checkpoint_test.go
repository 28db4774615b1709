package classifier

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

// testHead returns a head with a deterministic non-trivial parameter fill.
func testHead(t *testing.T) *Head {
	t.Helper()
	h, err := NewHead(Config{Dim: 4, Heads: 2, Hidden1: 3, Hidden2: 2})
	if err != nil {
		t.Fatal(err)
	}
	fill := func(l *Linear, seed float32) {
		for i := range l.W {
			for j := range l.W[i] {
				l.W[i][j] = seed + float32(i)*0.1 + float32(j)*0.01
			}
			l.B[i] = seed - float32(i)*0.05
		}
	}
	fill(&h.Query, 0.1)
	fill(&h.Key, 0.2)
	fill(&h.Value, 0.3)
	fill(&h.Out, 0.4)
	fill(&h.FC1, 0.5)
	fill(&h.FC2, 0.6)
	fill(&h.Final, 0.7)
	h.Calibration = 1.25
	h.Temperature = 2.5
	return h
}

func saveBytes(t *testing.T, h *Head) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := SaveCheckpoint(&buf, h); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCheckpointRoundTrip(t *testing.T) {
	h := testHead(t)
	loaded, err := LoadCheckpoint(bytes.NewReader(saveBytes(t, h)))
	if err != nil {
		t.Fatal(err)
	}

	if loaded.Config() != h.Config() {
		t.Fatalf("config %+v, want %+v", loaded.Config(), h.Config())
	}
	if loaded.Calibration != h.Calibration || loaded.Temperature != h.Temperature {
		t.Fatalf("scalars (%v, %v), want (%v, %v)",
			loaded.Calibration, loaded.Temperature, h.Calibration, h.Temperature)
	}

	in := [][]float32{{0.1, 0.2, 0.3, 0.4}, {-0.4, -0.3, -0.2, -0.1}}
	a, err := h.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := loaded.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("loaded head computes %v, original %v", b, a)
	}
}

func TestCheckpointFileRoundTrip(t *testing.T) {
	h := testHead(t)
	path := filepath.Join(t.TempDir(), "head.ckpt")
	if err := SaveCheckpointFile(h, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadCheckpointFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Calibration != h.Calibration {
		t.Fatalf("calibration %v, want %v", loaded.Calibration, h.Calibration)
	}
}

func TestCheckpointRejectsBadMagic(t *testing.T) {
	data := saveBytes(t, testHead(t))
	data[0] = 'X'
	if _, err := LoadCheckpoint(bytes.NewReader(data)); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestCheckpointRejectsWrongVersion(t *testing.T) {
	data := saveBytes(t, testHead(t))
	data[4] = 99 // version field, little-endian low byte
	if _, err := LoadCheckpoint(bytes.NewReader(data)); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestCheckpointRejectsTruncation(t *testing.T) {
	data := saveBytes(t, testHead(t))
	if _, err := LoadCheckpoint(bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Fatal("expected error for truncated checkpoint")
	}
}

func TestCheckpointRejectsUnknownTensor(t *testing.T) {
	// Renaming a tensor makes it unknown AND leaves the original missing;
	// strict loading must reject it either way.
	data := saveBytes(t, testHead(t))
	mutated := bytes.Replace(data, []byte("attn.query.bias"), []byte("attn.query.bios"), 1)
	if bytes.Equal(mutated, data) {
		t.Fatal("test setup: tensor name not found in serialized form")
	}
	_, err := LoadCheckpoint(bytes.NewReader(mutated))
	if err == nil {
		t.Fatal("expected error for unknown tensor name")
	}
	if !strings.Contains(err.Error(), "attn.query.bios") {
		t.Fatalf("error should name the offending tensor, got: %v", err)
	}
}

func TestCheckpointRejectsNonPositiveTemperature(t *testing.T) {
	h := testHead(t)
	h.Temperature = 0
	if _, err := LoadCheckpoint(bytes.NewReader(saveBytes(t, h))); err == nil {
		t.Fatal("expected error for zero temperature")
	}
}
