package classifier

import (
	"math"
	"testing"
)

// zeroHead returns a head with zeroed weights on a small config.
func zeroHead(t *testing.T) *Head {
	t.Helper()
	h, err := NewHead(Config{Dim: 4, Heads: 2, Hidden1: 3, Hidden2: 2})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func frames(rows ...[]float32) [][]float32 { return rows }

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Dim: 8, Heads: 2, Hidden1: 4, Hidden2: 4}, true},
		{"indivisible", Config{Dim: 6, Heads: 4, Hidden1: 4, Hidden2: 4}, false},
		{"zero dim", Config{Dim: 0, Heads: 1, Hidden1: 1, Hidden2: 1}, false},
		{"negative hidden", Config{Dim: 4, Heads: 1, Hidden1: -1, Hidden2: 1}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestForwardBiasAndCalibration(t *testing.T) {
	// With zero weights everywhere, the logit is exactly the final bias and
	// the calibrated probability is sigmoid(bias * calibration / temperature).
	h := zeroHead(t)
	h.Final.B[0] = 1.5
	h.Calibration = 2
	h.Temperature = 4

	prob, err := h.Forward(frames([]float32{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	want := 1 / (1 + math.Exp(-1.5*2/4))
	if math.Abs(prob-want) > 1e-12 {
		t.Fatalf("probability = %v, want %v", prob, want)
	}
}

func TestForwardUniformAttentionIsTemporalMean(t *testing.T) {
	// Zero query/key weights make the attention distribution uniform, and
	// identity value/out projections pass the frames through: pooling must
	// reduce to the plain temporal mean.
	h, err := NewHead(Config{Dim: 2, Heads: 1, Hidden1: 2, Hidden2: 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		h.Value.W[i][i] = 1
		h.Out.W[i][i] = 1
		h.FC1.W[i][i] = 1
		h.FC2.W[i][i] = 1
	}
	h.Final.W[0][0] = 1

	// Mean of first dims: (0.2 + 0.6) / 2 = 0.4, carried straight to the
	// logit through identity layers and ReLU (non-negative throughout).
	prob, err := h.Forward(frames([]float32{0.2, 0}, []float32{0.6, 0}))
	if err != nil {
		t.Fatal(err)
	}
	want := 1 / (1 + math.Exp(-0.4))
	if math.Abs(prob-want) > 1e-6 {
		t.Fatalf("probability = %v, want %v", prob, want)
	}
}

func TestForwardTemperaturePullsTowardBoundary(t *testing.T) {
	h := zeroHead(t)
	h.Final.B[0] = 2

	sharp, err := h.Forward(frames([]float32{0, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	h.Temperature = 10
	soft, err := h.Forward(frames([]float32{0, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}
	if !(soft < sharp && soft > 0.5) {
		t.Fatalf("temperature should pull %v toward 0.5, got %v", sharp, soft)
	}
}

func TestForwardIdempotent(t *testing.T) {
	h := zeroHead(t)
	// Deterministic non-trivial parameter fill.
	fill := func(l *Linear, seed float32) {
		for i := range l.W {
			for j := range l.W[i] {
				l.W[i][j] = seed * float32(i+1) / float32(j+2)
			}
			l.B[i] = seed / float32(i+1)
		}
	}
	fill(&h.Query, 0.3)
	fill(&h.Key, -0.2)
	fill(&h.Value, 0.5)
	fill(&h.Out, 0.1)
	fill(&h.FC1, 0.7)
	fill(&h.FC2, -0.4)
	fill(&h.Final, 0.9)
	h.Calibration = 1.3
	h.Temperature = 0.8

	in := frames(
		[]float32{0.1, -0.2, 0.3, -0.4},
		[]float32{0.5, 0.6, -0.7, 0.8},
		[]float32{-0.9, 1.0, 0.11, -0.12},
	)
	a, err := h.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("identical input produced %v then %v, want bit-identical", a, b)
	}
}

func TestForwardRejectsBadInput(t *testing.T) {
	h := zeroHead(t)
	if _, err := h.Forward(nil); err == nil {
		t.Fatal("expected error for empty frame sequence")
	}
	if _, err := h.Forward(frames([]float32{1, 2})); err == nil {
		t.Fatal("expected error for frame dimension mismatch")
	}
}
