package input

import "time"

// Channel identifies one input modality.
type Channel string

const (
	ChannelText   Channel = "text"
	ChannelVoice  Channel = "voice"
	ChannelIcon   Channel = "icon"
	ChannelSign   Channel = "sign"
	ChannelCamera Channel = "camera"
)

// Channels lists every supported channel in dispatch order.
func Channels() []Channel {
	return []Channel{ChannelText, ChannelVoice, ChannelIcon, ChannelSign, ChannelCamera}
}

// Binary carries an opaque media payload plus the hints a pipeline
// needs before decoding it.
type Binary struct {
	Data       []byte `json:"data"`
	MIME       string `json:"mime,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// Icon is one picked symbol in an icon sequence.
type Icon struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category,omitempty"`
}

// IconSequence is an ordered selection of icons plus optional free text
// phrases; order matters for both.
type IconSequence struct {
	Icons   []Icon   `json:"icons"`
	Phrases []string `json:"phrases,omitempty"`
}

// Envelope is the unit of submission from the presentation layer. Exactly
// the content field matching Channel must be populated.
type Envelope struct {
	ID         string            `json:"id,omitempty"`
	Channel    Channel           `json:"channel"`
	Text       string            `json:"text,omitempty"`
	Audio      *Binary           `json:"audio,omitempty"`
	Image      *Binary           `json:"image,omitempty"`
	Video      *Binary           `json:"video,omitempty"`
	Icons      *IconSequence     `json:"icons,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Result is what the router hands back for every envelope, including
// total failures. Content is never absent; it is empty when nothing
// could be extracted.
type Result struct {
	Input        *Envelope         `json:"input,omitempty"`
	Content      string            `json:"content"`
	Confidence   float64           `json:"confidence"`
	ProcessingMS int64             `json:"processing_ms"`
	Errors       []string          `json:"errors,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Processor    string            `json:"processor,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewResult seeds a result for an envelope with the shared fields set.
func NewResult(env *Envelope, processor string) *Result {
	return &Result{
		Input:     env,
		Processor: processor,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{},
	}
}

// AddWarning appends a warning preserving order.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddError appends an error preserving order.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}
