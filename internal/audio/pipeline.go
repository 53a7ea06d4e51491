package audio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// DefaultTargetRate is the canonical sample rate recognizers consume.
	DefaultTargetRate = 16000

	normalizeTarget = 0.8
	canonicalDepth  = 16
)

// Preprocessed is the canonical recognition artifact: uncompressed mono
// 16-bit WAV at the target rate, plus everything that was done to get there.
// It belongs solely to the caller; the pipeline keeps no reference.
type Preprocessed struct {
	WAV            []byte
	Applied        []string
	Metrics        Metrics
	SampleRate     int
	OriginalBytes  int
	ProcessedBytes int
	Elapsed        time.Duration
}

// Pipeline measures and conditionally corrects recorded speech before it
// reaches a recognizer. Safe for concurrent use; it holds only configuration.
type Pipeline struct {
	TargetRate int
}

// NewPipeline returns a pipeline resampling to targetRate, defaulting to
// DefaultTargetRate when non-positive.
func NewPipeline(targetRate int) *Pipeline {
	if targetRate <= 0 {
		targetRate = DefaultTargetRate
	}
	return &Pipeline{TargetRate: targetRate}
}

// PreprocessForRecognition decodes a WAV payload, analyzes it, then applies
// in fixed order only the corrections the analysis calls for: mono mix when
// multi-channel, peak normalization when the level is off, resampling when
// the source rate differs from the target.
func (p *Pipeline) PreprocessForRecognition(raw []byte) (*Preprocessed, error) {
	start := time.Now()

	samples, sampleRate, channels, err := decodeWAV(raw)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	metrics := Analyze(samples, sampleRate)
	metrics.Channels = channels

	pre := &Preprocessed{
		Metrics:       metrics,
		SampleRate:    p.TargetRate,
		OriginalBytes: len(raw),
	}

	mono := samples
	if channels > 1 {
		mono = mixToMono(samples, channels)
		pre.Applied = append(pre.Applied, "mono-mix")
	}

	if metrics.TooQuiet || metrics.TooLoud {
		mono = normalizePeak(mono, normalizeTarget)
		pre.Applied = append(pre.Applied, "normalize")
	}

	if sampleRate != p.TargetRate {
		mono = resampleLinear(mono, sampleRate, p.TargetRate)
		pre.Applied = append(pre.Applied, "resample")
	}

	encoded, err := encodeWAV(mono, p.TargetRate)
	if err != nil {
		return nil, fmt.Errorf("encode audio: %w", err)
	}
	pre.WAV = encoded
	pre.ProcessedBytes = len(encoded)
	pre.Elapsed = time.Since(start)
	return pre, nil
}

// decodeWAV returns interleaved samples normalized to [-1,1].
func decodeWAV(raw []byte) ([]float64, int, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("empty wav payload")
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = canonicalDepth
	}
	scale := float64(int(1) << (depth - 1))
	samples := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float64(v) / scale
	}
	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func mixToMono(samples []float64, channels int) []float64 {
	frames := len(samples) / channels
	mono := make([]float64, frames)
	for f := 0; f < frames; f++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += samples[f*channels+c]
		}
		mono[f] = sum / float64(channels)
	}
	return mono
}

func normalizePeak(samples []float64, target float64) []float64 {
	var peak float64
	for _, s := range samples {
		if mag := math.Abs(s); mag > peak {
			peak = mag
		}
	}
	if peak == 0 {
		return samples
	}
	gain := target / peak
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}

func resampleLinear(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	outLen := int(float64(len(samples)) / ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

func encodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		v := int(math.Round(s * 32767))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = v
	}

	var ws seekBuffer
	enc := wav.NewEncoder(&ws, sampleRate, canonicalDepth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.data, nil
}

// SamplesFromPCM16 converts raw little-endian 16-bit PCM into normalized
// samples for analysis.
func SamplesFromPCM16(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		samples[i] = float64(v) / 32768
	}
	return samples
}

// EncodePCM16 wraps raw little-endian 16-bit PCM in a WAV container. Used by
// capture paths that accumulate bare PCM chunks.
func EncodePCM16(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, len(pcm)/2),
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
	}

	var ws seekBuffer
	enc := wav.NewEncoder(&ws, sampleRate, canonicalDepth, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return ws.data, nil
}

// seekBuffer is the minimal in-memory io.WriteSeeker the wav encoder needs
// to patch up the RIFF header after writing.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	b.pos = int(next)
	return next, nil
}
