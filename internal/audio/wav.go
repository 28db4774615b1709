package audio

import (
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// rawClip is decoded but not yet normalized audio: interleaved samples at the
// source rate and channel layout.
type rawClip struct {
	samples  []float32 // interleaved, already scaled to [-1, 1]
	channels int
	rate     int
}

// FormatInfo describes a WAV file's container format as reported by its
// header, before any decoding work.
type FormatInfo struct {
	Channels   int
	SampleRate int
	BitDepth   int
}

// Conformant reports whether the format already matches the pipeline target
// layout: mono, targetRate, 16-bit PCM. Conformant input lets the Normalizer
// skip downmix and resampling; it is a short-circuit, not a correctness
// requirement.
func (f FormatInfo) Conformant(targetRate int) bool {
	return f.Channels == 1 && f.SampleRate == targetRate && f.BitDepth == 16
}

// decodeWAV reads a complete RIFF/WAV stream into a rawClip.
func decodeWAV(rs io.ReadSeeker, source string) (rawClip, error) {
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return rawClip{}, &DecodeError{Source: source, Err: fmt.Errorf("not a valid WAV stream")}
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return rawClip{}, &DecodeError{Source: source, Err: err}
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return rawClip{}, &DecodeError{Source: source, Err: fmt.Errorf("empty PCM payload")}
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth != 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return rawClip{
		samples:  samples,
		channels: buf.Format.NumChannels,
		rate:     buf.Format.SampleRate,
	}, nil
}

// ProbeWAV inspects a WAV file's header without decoding the payload.
func ProbeWAV(path string) (FormatInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatInfo{}, &DecodeError{Source: path, Err: err}
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if dec.Err() != nil {
		return FormatInfo{}, &DecodeError{Source: path, Err: dec.Err()}
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return FormatInfo{}, &DecodeError{Source: path, Err: fmt.Errorf("missing WAV format header")}
	}
	return FormatInfo{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

// WriteWAV16 persists a waveform as 16-bit PCM WAV. Samples are clipped to
// [-1, 1] and scaled to the int16 range.
func WriteWAV16(w *Waveform, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, 1)
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		data[i] = int(s * 32767)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("audio: write %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("audio: finalize %s: %w", path, err)
	}
	return f.Close()
}

// isRIFFWave sniffs the 12-byte RIFF/WAVE header.
func isRIFFWave(b []byte) bool {
	return len(b) >= 12 &&
		string(b[0:4]) == "RIFF" &&
		string(b[8:12]) == "WAVE"
}
