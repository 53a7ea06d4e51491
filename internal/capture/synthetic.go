package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"sync"
	"time"

	"github.com/ablelabs/able-core/internal/audio"
)

// SyntheticCamera renders deterministic frames in software. It stands in
// for real hardware in tests and in daemons running without a camera.
type SyntheticCamera struct {
	// Uniform renders a flat frame at Level instead of the test card.
	Uniform bool
	Level   uint8
}

func (p *SyntheticCamera) RequestAccess(_ context.Context, cfg StreamConfig) (FrameStream, error) {
	w, h := cfg.Width, cfg.Height
	if w <= 0 {
		w = 640
	}
	if h <= 0 {
		h = 480
	}
	return &syntheticFrameStream{width: w, height: h, uniform: p.Uniform, level: p.Level}, nil
}

func (p *SyntheticCamera) EnumerateDevices(_ context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "synthetic-camera-0", Kind: "camera", Label: "Synthetic Camera"}}, nil
}

type syntheticFrameStream struct {
	mu      sync.Mutex
	stopped bool
	width   int
	height  int
	uniform bool
	level   uint8
}

// Grab renders one frame: either a flat field or a checkered test card with
// enough contrast and edges to pass the quality gate.
func (s *syntheticFrameStream) Grab(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("frame stream is stopped")
	}

	img := image.NewGray(image.Rect(0, 0, s.width, s.height))
	if s.uniform {
		for i := range img.Pix {
			img.Pix[i] = s.level
		}
	} else {
		for y := 0; y < s.height; y++ {
			for x := 0; x < s.width; x++ {
				v := uint8(200)
				if (x/8+y/8)%2 == 0 {
					v = 60
				}
				img.Pix[y*img.Stride+x] = v
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *syntheticFrameStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// SyntheticMicrophone generates a continuous sine tone. It stands in for
// real hardware in tests and in daemons running without a microphone.
type SyntheticMicrophone struct {
	// Frequency in Hz; 440 when zero. Amplitude in [0,1]; 0.5 when zero.
	Frequency float64
	Amplitude float64
	// ChunkMS is the block size handed out per Chunk call; 100 when zero.
	ChunkMS int
}

func (p *SyntheticMicrophone) RequestAccess(_ context.Context, cfg StreamConfig) (PCMStream, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultTargetRate
	}
	freq := p.Frequency
	if freq == 0 {
		freq = 440
	}
	amp := p.Amplitude
	if amp == 0 {
		amp = 0.5
	}
	chunkMS := p.ChunkMS
	if chunkMS <= 0 {
		chunkMS = 100
	}
	return &syntheticPCMStream{rate: rate, freq: freq, amp: amp, chunkMS: chunkMS}, nil
}

func (p *SyntheticMicrophone) EnumerateDevices(_ context.Context) ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "synthetic-mic-0", Kind: "microphone", Label: "Synthetic Microphone"}}, nil
}

type syntheticPCMStream struct {
	mu      sync.Mutex
	stopped bool
	rate    int
	freq    float64
	amp     float64
	chunkMS int
	phase   float64
}

// Chunk paces itself to real time the way a hardware stream would.
func (s *syntheticPCMStream) Chunk(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(s.chunkMS) * time.Millisecond):
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, fmt.Errorf("pcm stream is stopped")
	}

	samples := s.rate * s.chunkMS / 1000
	out := make([]byte, samples*2)
	step := 2 * math.Pi * s.freq / float64(s.rate)
	for i := 0; i < samples; i++ {
		v := int16(s.amp * math.Sin(s.phase) * 32767)
		out[i*2] = byte(uint16(v))
		out[i*2+1] = byte(uint16(v) >> 8)
		s.phase += step
	}
	return out, nil
}

func (s *syntheticPCMStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
