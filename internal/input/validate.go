package input

import (
	"fmt"
	"strings"
)

// ValidationError reports why an envelope failed structural validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid envelope: " + strings.Join(e.Problems, "; ")
}

// Validate reports whether an envelope passes structural validation.
func Validate(env *Envelope) bool {
	return len(ValidateDetailed(env)) == 0
}

// ValidateDetailed performs the structural check: known channel, valid
// timestamp, confidence in range when present, and a content payload whose
// concrete shape matches the declared channel. It inspects structure only
// and performs no decoding or I/O.
func ValidateDetailed(env *Envelope) []string {
	var problems []string
	if env == nil {
		return []string{"envelope is nil"}
	}

	switch env.Channel {
	case ChannelText, ChannelVoice, ChannelIcon, ChannelSign, ChannelCamera:
	case "":
		problems = append(problems, "channel is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown channel %q", env.Channel))
	}

	if env.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required and must be a valid instant")
	}
	if env.Confidence != nil && (*env.Confidence < 0 || *env.Confidence > 1) {
		problems = append(problems, fmt.Sprintf("confidence %v outside [0,1]", *env.Confidence))
	}

	switch env.Channel {
	case ChannelText:
		if env.Text == "" {
			problems = append(problems, "text channel requires a text payload")
		}
	case ChannelVoice:
		problems = append(problems, checkBinary(env.Audio, "voice", "audio")...)
	case ChannelCamera:
		problems = append(problems, checkBinary(env.Image, "camera", "image")...)
	case ChannelSign:
		problems = append(problems, checkBinary(env.Video, "sign", "video")...)
	case ChannelIcon:
		problems = append(problems, checkIcons(env.Icons)...)
	}

	return problems
}

func checkBinary(b *Binary, channel, kind string) []string {
	if b == nil || len(b.Data) == 0 {
		return []string{fmt.Sprintf("%s channel requires %s content", channel, kind)}
	}
	if b.MIME != "" && !strings.HasPrefix(b.MIME, kind+"/") {
		return []string{fmt.Sprintf("%s channel content must be %s/*, got %q", channel, kind, b.MIME)}
	}
	return nil
}

func checkIcons(seq *IconSequence) []string {
	if seq == nil || len(seq.Icons) == 0 {
		return []string{"icon channel requires a non-empty icon sequence"}
	}
	var problems []string
	seen := make(map[string]struct{}, len(seq.Icons))
	for i, icon := range seq.Icons {
		if icon.ID == "" {
			problems = append(problems, fmt.Sprintf("icon %d has no id", i))
			continue
		}
		if _, dup := seen[icon.ID]; dup {
			problems = append(problems, fmt.Sprintf("icon id %q duplicated within sequence", icon.ID))
		}
		seen[icon.ID] = struct{}{}
	}
	return problems
}
