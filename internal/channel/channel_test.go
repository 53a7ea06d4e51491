package channel

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ablelabs/able-core/internal/audio"
	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/ocr"
	"github.com/ablelabs/able-core/internal/sign"
	"github.com/ablelabs/able-core/internal/stt"
	"github.com/ablelabs/able-core/internal/vision"
)

func sineWAV(t *testing.T, sampleRate int, dur time.Duration) []byte {
	t.Helper()
	frames := int(float64(sampleRate) * dur.Seconds())
	pcm := make([]byte, frames*2)
	for f := 0; f < frames; f++ {
		v := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(f)/float64(sampleRate)))
		pcm[f*2] = byte(v)
		pcm[f*2+1] = byte(v >> 8)
	}
	data, err := audio.EncodePCM16(pcm, sampleRate, 1)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return data
}

func checkerPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x+y)%2 == 0 {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func TestTextProcessorTrims(t *testing.T) {
	p := NewTextProcessor()
	env := &input.Envelope{Channel: input.ChannelText, Text: "  hello world \n", Timestamp: time.Now()}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Content != "hello world" {
		t.Fatalf("expected trimmed content, got %q", res.Content)
	}
	if res.Confidence != 1.0 {
		t.Fatalf("expected full confidence, got %v", res.Confidence)
	}
}

func TestTextFallbackDegrades(t *testing.T) {
	p := NewTextProcessor()
	env := &input.Envelope{Channel: input.ChannelText, Text: "raw", Timestamp: time.Now()}

	res := p.Fallback(env)
	if res.Confidence != 0.5 {
		t.Fatalf("expected reduced confidence, got %v", res.Confidence)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected a diagnostic warning")
	}
}

func TestIconProcessorJoinsLabelsAndPhrases(t *testing.T) {
	p := NewIconProcessor()
	env := &input.Envelope{
		Channel: input.ChannelIcon,
		Icons: &input.IconSequence{
			Icons:   []input.Icon{{ID: "1", Label: "want"}, {ID: "2", Label: "eat"}, {ID: "3", Label: "apple"}},
			Phrases: []string{"please"},
		},
		Timestamp: time.Now(),
	}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Content != "want eat apple please" {
		t.Fatalf("unexpected content %q", res.Content)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("unexpected confidence %v", res.Confidence)
	}

	fb := p.Fallback(env)
	if fb.Content != "want eat apple" {
		t.Fatalf("fallback should drop phrases, got %q", fb.Content)
	}
	if fb.Confidence >= res.Confidence {
		t.Fatalf("fallback confidence %v not reduced", fb.Confidence)
	}
}

func TestVoiceProcessorEndToEnd(t *testing.T) {
	p := NewVoiceProcessor(audio.NewPipeline(16000), stt.NewMockRecognizer())
	env := &input.Envelope{
		Channel:   input.ChannelVoice,
		Audio:     &input.Binary{Data: sineWAV(t, 44100, time.Second), MIME: "audio/wav"},
		Timestamp: time.Now(),
	}
	if !p.Validate(env) {
		t.Fatal("expected envelope accepted")
	}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Content == "" {
		t.Fatal("expected transcript content")
	}
	if res.Confidence != 0.85 {
		t.Fatalf("expected default confidence when backend reports none, got %v", res.Confidence)
	}
	ops := res.Metadata["applied_operations"]
	if !strings.Contains(ops, "resample") {
		t.Fatalf("expected resample recorded for 44.1k input, got %q", ops)
	}
}

func TestVoiceProcessorHonorsHintedConfidence(t *testing.T) {
	p := NewVoiceProcessor(audio.NewPipeline(16000), stt.NewMockRecognizer())
	hint := 0.42
	env := &input.Envelope{
		Channel:    input.ChannelVoice,
		Audio:      &input.Binary{Data: sineWAV(t, 16000, time.Second), MIME: "audio/wav"},
		Confidence: &hint,
		Timestamp:  time.Now(),
	}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Confidence != hint {
		t.Fatalf("expected hinted confidence %v, got %v", hint, res.Confidence)
	}
}

func TestVoiceProcessorRejectsUndecodableAudio(t *testing.T) {
	p := NewVoiceProcessor(audio.NewPipeline(16000), stt.NewMockRecognizer())
	env := &input.Envelope{
		Channel:   input.ChannelVoice,
		Audio:     &input.Binary{Data: []byte("garbage"), MIME: "audio/wav"},
		Timestamp: time.Now(),
	}
	if _, err := p.Process(context.Background(), env); err == nil {
		t.Fatal("expected decode failure")
	}

	fb := p.Fallback(env)
	if fb.Confidence != 0 {
		t.Fatalf("voice fallback must report zero confidence, got %v", fb.Confidence)
	}
	if fb.Content == "" || len(fb.Errors) == 0 {
		t.Fatalf("voice fallback must carry a marker and error: %+v", fb)
	}
}

func TestCameraProcessorEndToEnd(t *testing.T) {
	p := NewCameraProcessor(vision.NewPipeline(), ocr.NewMockExtractor())
	env := &input.Envelope{
		Channel:   input.ChannelCamera,
		Image:     &input.Binary{Data: checkerPNG(t), MIME: "image/png"},
		Timestamp: time.Now(),
	}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Content == "" {
		t.Fatal("expected extracted content")
	}
	if res.Confidence <= 0 {
		t.Fatalf("expected backend confidence, got %v", res.Confidence)
	}
	if !strings.Contains(res.Metadata["applied_operations"], "grayscale") {
		t.Fatalf("expected grayscale recorded, got %q", res.Metadata["applied_operations"])
	}
}

func TestSignProcessorUsesRecognizer(t *testing.T) {
	p := NewSignProcessor(sign.NewMockRecognizer())
	env := &input.Envelope{
		Channel:   input.ChannelSign,
		Video:     &input.Binary{Data: []byte{1, 2, 3}, MIME: "video/mp4"},
		Timestamp: time.Now(),
	}

	res, err := p.Process(context.Background(), env)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Content == "" {
		t.Fatal("expected transcript content")
	}
	if res.Confidence != 0.75 {
		t.Fatalf("expected default confidence, got %v", res.Confidence)
	}

	fb := p.Fallback(env)
	if fb.Confidence != 0 || len(fb.Errors) == 0 {
		t.Fatalf("sign fallback must be zero confidence with an error: %+v", fb)
	}
}
