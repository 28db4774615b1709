package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV writes interleaved float samples as a 16-bit PCM WAV file.
func writeTestWAV(t *testing.T, path string, rate, channels int, samples []float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeDownmixAverage(t *testing.T) {
	// Stereo frames (L, R): averages 0.6 and 0.3, so after peak
	// normalization the mono signal is 1.0, 0.5.
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, 16000, 2, []float32{0.8, 0.4, 0.4, 0.2})

	n := NewNormalizer(Options{})
	w, err := n.FromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Samples) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(w.Samples))
	}
	if math.Abs(float64(w.Samples[0])-1.0) > 1e-3 {
		t.Fatalf("sample[0] = %v, want ~1.0", w.Samples[0])
	}
	if math.Abs(float64(w.Samples[1])-0.5) > 1e-3 {
		t.Fatalf("sample[1] = %v, want ~0.5", w.Samples[1])
	}
}

func TestNormalizeSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "silence.wav")
	writeTestWAV(t, path, 16000, 1, make([]float32, 1600))

	n := NewNormalizer(Options{})
	w, err := n.FromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range w.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 (silence must stay silent)", i, s)
		}
		if math.IsNaN(float64(s)) {
			t.Fatalf("sample %d is NaN", i)
		}
	}
}

func TestNormalizeTruncatesToDurationBound(t *testing.T) {
	// 90 seconds at 16 kHz, truncated to the 60 second bound before any
	// inference would run.
	rate := 16000
	samples := make([]float32, 90*rate)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 50))
	}
	path := filepath.Join(t.TempDir(), "long.wav")
	writeTestWAV(t, path, rate, 1, samples)

	n := NewNormalizer(Options{})
	w, err := n.FromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Samples) != 60*rate {
		t.Fatalf("expected %d samples after truncation, got %d", 60*rate, len(w.Samples))
	}
	if w.Duration() != 60.0 {
		t.Fatalf("duration = %v, want exactly 60.0", w.Duration())
	}
}

func TestNormalizePeakBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quiet.wav")
	writeTestWAV(t, path, 16000, 1, []float32{0.25, -0.1, 0.05})

	n := NewNormalizer(Options{})
	w, err := n.FromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	peak := w.Peak()
	if peak > 1.0 {
		t.Fatalf("peak = %v, exceeds 1.0", peak)
	}
	if math.Abs(float64(peak)-1.0) > 1e-3 {
		t.Fatalf("peak = %v, non-silent input should normalize to full scale", peak)
	}
}

func TestNormalizeResamples(t *testing.T) {
	// One second of a 440 Hz tone at 8 kHz must come out at 16 kHz with
	// duration preserved, not merely truncated.
	srcRate := 8000
	samples := make([]float32, srcRate)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(srcRate)))
	}
	path := filepath.Join(t.TempDir(), "8khz.wav")
	writeTestWAV(t, path, srcRate, 1, samples)

	n := NewNormalizer(Options{})
	w, err := n.FromFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if w.SampleRate != 16000 {
		t.Fatalf("sample rate = %d, want 16000", w.SampleRate)
	}
	if d := w.Duration(); d < 0.9 || d > 1.1 {
		t.Fatalf("duration = %v, want ~1.0 second", d)
	}
}

func TestResampleFailureIsAnError(t *testing.T) {
	// A 1 Hz source is outside the resampler's working range. The failure must
	// surface, never fall back to unresampled samples stamped with the target
	// rate.
	if _, err := resample(make([]float32, 4), 1, 16000); err == nil {
		t.Fatal("expected error for unresamplable source rate")
	}
}

func TestNormalizeUnresamplableRateIsDecodeError(t *testing.T) {
	// Clips whose declared rate cannot be converted must be rejected: a
	// waveform labeled 16 kHz has to actually be 16 kHz, or the duration
	// bound and downstream timing math are computed against the wrong rate.
	for _, rate := range []int{1, 100} {
		path := filepath.Join(t.TempDir(), "odd-rate.wav")
		writeTestWAV(t, path, rate, 1, []float32{0.5, -0.5, 0.25, -0.25})

		n := NewNormalizer(Options{})
		w, err := n.FromFile(context.Background(), path)
		if err == nil {
			t.Fatalf("rate %d: got %d samples labeled %d Hz with no error",
				rate, len(w.Samples), w.SampleRate)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("rate %d: expected DecodeError, got %v", rate, err)
		}
	}
}

func TestNormalizeCorruptInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.wav")
	if err := os.WriteFile(path, []byte("RIFFgarbage-not-a-wave-file"), 0o644); err != nil {
		t.Fatal(err)
	}

	n := NewNormalizer(Options{})
	_, err := n.FromFile(context.Background(), path)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestFromBytesWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 16000, 1, []float32{0.5, -0.25})
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	n := NewNormalizer(Options{})
	w, err := n.FromBytes(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(w.Samples))
	}
}

func TestFromBytesEmpty(t *testing.T) {
	n := NewNormalizer(Options{})
	_, err := n.FromBytes(context.Background(), nil)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError for empty buffer, got %v", err)
	}
}

func TestNormalizeToFileWritesConformantWAV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	writeTestWAV(t, src, 8000, 2, []float32{0.5, 0.3, -0.2, -0.4})
	out := filepath.Join(dir, "normalized.wav")

	n := NewNormalizer(Options{})
	if _, err := n.NormalizeToFile(context.Background(), src, out); err != nil {
		t.Fatal(err)
	}

	info, err := ProbeWAV(out)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Conformant(16000) {
		t.Fatalf("normalized copy not conformant: %+v", info)
	}
}

func TestProbeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.wav")
	writeTestWAV(t, path, 44100, 2, []float32{0.1, 0.2})

	info, err := ProbeWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Channels != 2 || info.SampleRate != 44100 || info.BitDepth != 16 {
		t.Fatalf("unexpected format info: %+v", info)
	}
	if info.Conformant(16000) {
		t.Fatal("44.1 kHz stereo must not report as conformant")
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := downmix(in, 1)
	if &out[0] != &in[0] {
		t.Fatal("mono downmix should be a passthrough")
	}
}

func TestPeakNormalizeSilenceNoDivide(t *testing.T) {
	s := make([]float32, 100)
	peakNormalize(s)
	for i, v := range s {
		if v != 0 || math.IsNaN(float64(v)) {
			t.Fatalf("sample %d = %v after normalizing silence", i, v)
		}
	}
}
