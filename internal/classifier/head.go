// Package classifier implements the audio toxicity classification head: a
// multi-head self-attention pooling layer over the encoder's per-frame hidden
// states, a temporal mean, and a two-hidden-layer feed-forward network that
// maps the pooled vector to a single calibrated logit.
//
// Raw mean-pooling loses salience information about which frames carry the
// toxic signal; self-attention reweights frames before collapsing them.
// Dropout and normalization layers are training-time constructs and are not
// represented in this inference-only implementation.
package classifier

import (
	"fmt"
	"math"
)

// Config fixes the head dimensions. Dim must be divisible by Heads.
type Config struct {
	Dim     int // encoder hidden size
	Heads   int // attention heads
	Hidden1 int // first FFN hidden width
	Hidden2 int // second FFN hidden width
}

// Validate checks the dimension constraints.
func (c Config) Validate() error {
	if c.Dim <= 0 || c.Heads <= 0 || c.Hidden1 <= 0 || c.Hidden2 <= 0 {
		return fmt.Errorf("classifier: config dimensions must be positive: %+v", c)
	}
	if c.Dim%c.Heads != 0 {
		return fmt.Errorf("classifier: dim %d not divisible by heads %d", c.Dim, c.Heads)
	}
	return nil
}

// Linear is a dense layer y = Wx + b with W shaped [out][in].
type Linear struct {
	W [][]float32
	B []float32
}

// NewLinear allocates a zeroed layer.
func NewLinear(out, in int) Linear {
	w := make([][]float32, out)
	for i := range w {
		w[i] = make([]float32, in)
	}
	return Linear{W: w, B: make([]float32, out)}
}

// Apply computes Wx + b.
func (l *Linear) Apply(x []float32) []float32 {
	y := make([]float32, len(l.W))
	for i, row := range l.W {
		sum := l.B[i]
		for j, w := range row {
			sum += w * x[j]
		}
		y[i] = sum
	}
	return y
}

// Head holds the full parameter set of the toxicity classifier. It is
// immutable after load and safe for concurrent Forward calls.
type Head struct {
	cfg Config

	// Self-attention projections, each Dim -> Dim.
	Query, Key, Value, Out Linear

	// Feed-forward classifier.
	FC1, FC2, Final Linear

	// Calibration scales the raw logit; Temperature divides it. Both are
	// learned jointly with the head to correct over/under-confidence
	// without retraining.
	Calibration float32
	Temperature float32
}

// NewHead allocates a head with zeroed weights, unit calibration and unit
// temperature. Callers fill the parameters directly or via LoadCheckpoint.
func NewHead(cfg Config) (*Head, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Head{
		cfg:         cfg,
		Query:       NewLinear(cfg.Dim, cfg.Dim),
		Key:         NewLinear(cfg.Dim, cfg.Dim),
		Value:       NewLinear(cfg.Dim, cfg.Dim),
		Out:         NewLinear(cfg.Dim, cfg.Dim),
		FC1:         NewLinear(cfg.Hidden1, cfg.Dim),
		FC2:         NewLinear(cfg.Hidden2, cfg.Hidden1),
		Final:       NewLinear(1, cfg.Hidden2),
		Calibration: 1,
		Temperature: 1,
	}, nil
}

// Config returns the head dimensions.
func (h *Head) Config() Config { return h.cfg }

// Forward runs the head over the encoder's per-frame hidden states and
// returns the toxicity probability. It is a pure function of the parameters
// and input: identical input yields bit-identical output.
func (h *Head) Forward(frames [][]float32) (float64, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("classifier: no encoder frames")
	}
	for i, f := range frames {
		if len(f) != h.cfg.Dim {
			return 0, fmt.Errorf("classifier: frame %d has dim %d, head expects %d", i, len(f), h.cfg.Dim)
		}
	}

	attended := h.selfAttend(frames)

	// Temporal mean over the context-weighted frame representations.
	pooled := make([]float32, h.cfg.Dim)
	for _, f := range attended {
		for j, v := range f {
			pooled[j] += v
		}
	}
	inv := 1 / float32(len(attended))
	for j := range pooled {
		pooled[j] *= inv
	}

	x := relu(h.FC1.Apply(pooled))
	x = relu(h.FC2.Apply(x))
	logit := h.Final.Apply(x)[0]

	calibrated := float64(logit) * float64(h.Calibration) / float64(h.Temperature)
	return sigmoid(calibrated), nil
}

// selfAttend applies multi-head attention of the frame sequence against
// itself and returns one context-weighted vector per frame.
func (h *Head) selfAttend(frames [][]float32) [][]float32 {
	t := len(frames)
	dim := h.cfg.Dim
	heads := h.cfg.Heads
	dk := dim / heads
	scale := 1 / math.Sqrt(float64(dk))

	q := make([][]float32, t)
	k := make([][]float32, t)
	v := make([][]float32, t)
	for i, f := range frames {
		q[i] = h.Query.Apply(f)
		k[i] = h.Key.Apply(f)
		v[i] = h.Value.Apply(f)
	}

	attended := make([][]float32, t)
	scores := make([]float64, t)
	for i := 0; i < t; i++ {
		ctxVec := make([]float32, dim)
		for hd := 0; hd < heads; hd++ {
			off := hd * dk

			for j := 0; j < t; j++ {
				var dot float64
				for d := 0; d < dk; d++ {
					dot += float64(q[i][off+d]) * float64(k[j][off+d])
				}
				scores[j] = dot * scale
			}
			weights := softmax(scores)

			for j := 0; j < t; j++ {
				w := float32(weights[j])
				for d := 0; d < dk; d++ {
					ctxVec[off+d] += w * v[j][off+d]
				}
			}
		}
		attended[i] = h.Out.Apply(ctxVec)
	}
	return attended
}

func relu(x []float32) []float32 {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
	return x
}

// softmax is numerically stable: shifts by the row max before exponentiating.
func softmax(x []float64) []float64 {
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		e := math.Exp(v - max)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
