// Command able-submit sends one input envelope to a running daemon over the
// bus and prints the processed result. It is the quickest way to exercise a
// deployment from the shell:
//
//	able-submit -channel text -text "turn on the lights"
//	able-submit -channel voice -file clip.wav
//	able-submit -channel camera -file page.png
//	able-submit -channel icon -icons "want,eat,apple"
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/ablelabs/able-core/internal/input"
	"github.com/ablelabs/able-core/internal/protocol"
)

func main() {
	var (
		server     string
		channel    string
		text       string
		file       string
		icons      string
		sampleRate int
		channels   int
		timeout    time.Duration
	)

	flag.StringVar(&server, "server", nats.DefaultURL, "NATS server URL")
	flag.StringVar(&channel, "channel", "text", "Input channel (text, voice, icon, sign, camera)")
	flag.StringVar(&text, "text", "", "Text content for the text channel")
	flag.StringVar(&file, "file", "", "Media file for voice, sign or camera channels")
	flag.StringVar(&icons, "icons", "", "Comma-separated icon labels for the icon channel")
	flag.IntVar(&sampleRate, "sample-rate", 0, "Audio sample rate hint")
	flag.IntVar(&channels, "channels", 0, "Audio channel count hint")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	_ = godotenv.Load()

	env, err := buildEnvelope(channel, text, file, icons, sampleRate, channels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode envelope: %v\n", err)
		os.Exit(1)
	}

	conn, err := nats.Connect(server, nats.Name("able-submit"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect to %s: %v\n", server, err)
		os.Exit(1)
	}
	defer conn.Close()

	msg, err := conn.Request(protocol.SubjectInputEnvelope, payload, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: request failed: %v\n", err)
		os.Exit(1)
	}

	var res input.Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		fmt.Fprintf(os.Stderr, "error: decode result: %v\n", err)
		os.Exit(1)
	}
	res.Input = nil // the caller already has the envelope

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if len(res.Errors) > 0 {
		os.Exit(2)
	}
}

func buildEnvelope(channel, text, file, icons string, sampleRate, channels int) (*input.Envelope, error) {
	env := &input.Envelope{
		ID:        uuid.NewString(),
		Channel:   input.Channel(channel),
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{"source": "able-submit"},
	}

	switch env.Channel {
	case input.ChannelText:
		if text == "" {
			return nil, fmt.Errorf("text channel requires -text")
		}
		env.Text = text
	case input.ChannelIcon:
		if icons == "" {
			return nil, fmt.Errorf("icon channel requires -icons")
		}
		seq := &input.IconSequence{}
		for _, label := range strings.Split(icons, ",") {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			seq.Icons = append(seq.Icons, input.Icon{ID: label, Label: label})
		}
		env.Icons = seq
	case input.ChannelVoice, input.ChannelSign, input.ChannelCamera:
		if file == "" {
			return nil, fmt.Errorf("%s channel requires -file", channel)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		bin := &input.Binary{
			Data: data,
			MIME: mediaType(file),
		}
		switch env.Channel {
		case input.ChannelVoice:
			bin.SampleRate = sampleRate
			bin.Channels = channels
			env.Audio = bin
		case input.ChannelSign:
			env.Video = bin
		case input.ChannelCamera:
			env.Image = bin
		}
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}

	return env, nil
}

// mediaType resolves the MIME type by extension. The system table misses a
// few media extensions we care about, so those are pinned.
func mediaType(file string) string {
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".wav":
		return "audio/wav"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	default:
		return mime.TypeByExtension(ext)
	}
}
