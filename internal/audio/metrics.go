package audio

import (
	"math"
	"sort"
	"time"
)

// Metrics holds the measured quality of a decoded audio buffer.
type Metrics struct {
	AverageVolume   float64       `json:"average_volume"`
	PeakVolume      float64       `json:"peak_volume"`
	NoiseFloor      float64       `json:"noise_floor"`
	SignalToNoiseDB float64       `json:"signal_to_noise_db"`
	Clipping        bool          `json:"clipping"`
	TooQuiet        bool          `json:"too_quiet"`
	TooLoud         bool          `json:"too_loud"`
	QualityScore    float64       `json:"quality_score"`
	Duration        time.Duration `json:"duration"`
	SampleRate      int           `json:"sample_rate"`
	Channels        int           `json:"channels"`
}

const (
	clipThreshold     = 0.99
	clipRatio         = 0.001
	quietThreshold    = 0.01
	loudPeakThreshold = 0.95
	lowVolumeBound    = 0.05
	highVolumeBound   = 0.8
	minDuration       = 500 * time.Millisecond
)

// Analyze measures loudness, clipping and an estimated signal-to-noise
// ratio over normalized samples in [-1,1]. The quality score is a chain of
// multiplicative penalties and is never re-normalized.
func Analyze(samples []float64, sampleRate int) Metrics {
	m := Metrics{SampleRate: sampleRate, QualityScore: 1.0}
	if len(samples) == 0 || sampleRate <= 0 {
		m.TooQuiet = true
		m.QualityScore = 0
		return m
	}
	m.Duration = time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))

	var sumSquares float64
	var clipped int
	magnitudes := make([]float64, len(samples))
	for i, s := range samples {
		mag := math.Abs(s)
		magnitudes[i] = mag
		sumSquares += mag * mag
		if mag > m.PeakVolume {
			m.PeakVolume = mag
		}
		if mag > clipThreshold {
			clipped++
		}
	}
	m.AverageVolume = math.Sqrt(sumSquares / float64(len(samples)))
	m.Clipping = float64(clipped)/float64(len(samples)) > clipRatio

	// Noise floor from the quietest 10% of samples. Quiet tonal content is
	// misread as a clean floor; kept as an approximation.
	sort.Float64s(magnitudes)
	floorCount := len(magnitudes) / 10
	if floorCount < 1 {
		floorCount = 1
	}
	var floorSquares float64
	for _, mag := range magnitudes[:floorCount] {
		floorSquares += mag * mag
	}
	m.NoiseFloor = math.Sqrt(floorSquares / float64(floorCount))

	signalPower := m.AverageVolume * m.AverageVolume
	noisePower := m.NoiseFloor * m.NoiseFloor
	if noisePower <= 0 {
		m.SignalToNoiseDB = 100
	} else {
		m.SignalToNoiseDB = 10 * math.Log10(signalPower/noisePower)
	}

	m.TooQuiet = m.AverageVolume < quietThreshold
	m.TooLoud = m.PeakVolume > loudPeakThreshold || m.Clipping

	if m.TooQuiet {
		m.QualityScore *= 0.5
	} else if m.AverageVolume < lowVolumeBound || m.AverageVolume > highVolumeBound {
		m.QualityScore *= 0.7
	}
	if m.TooLoud {
		m.QualityScore *= 0.6
	}
	if m.SignalToNoiseDB < 10 {
		m.QualityScore *= 0.5
	} else if m.SignalToNoiseDB < 20 {
		m.QualityScore *= 0.8
	}
	return m
}

// Report is the outcome of a quality gate check.
type Report struct {
	Valid       bool     `json:"valid"`
	Metrics     Metrics  `json:"metrics"`
	Warnings    []string `json:"warnings,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ValidateQuality gates a buffer against hard errors and the minimum
// quality score. Errors block; warnings only inform.
func ValidateQuality(samples []float64, sampleRate int, minScore float64) Report {
	return ReportFromMetrics(Analyze(samples, sampleRate), minScore)
}

// ReportFromMetrics builds the quality gate verdict from already-measured
// metrics.
func ReportFromMetrics(m Metrics, minScore float64) Report {
	rep := Report{Metrics: m}

	if m.TooQuiet {
		rep.Errors = append(rep.Errors, "audio is too quiet to process")
		rep.Suggestions = append(rep.Suggestions, "move closer to the microphone or raise input gain")
	}
	if m.TooLoud {
		rep.Errors = append(rep.Errors, "audio is too loud and may be distorted")
		rep.Suggestions = append(rep.Suggestions, "lower input gain or move away from the microphone")
	}
	if m.SignalToNoiseDB < 10 {
		rep.Errors = append(rep.Errors, "background noise overwhelms the signal")
		rep.Suggestions = append(rep.Suggestions, "record in a quieter environment")
	} else if m.SignalToNoiseDB < 20 {
		rep.Warnings = append(rep.Warnings, "noticeable background noise")
		rep.Suggestions = append(rep.Suggestions, "reducing background noise will improve recognition")
	}
	if m.Clipping {
		rep.Warnings = append(rep.Warnings, "clipping detected in recording")
	}
	if !m.TooQuiet && m.AverageVolume < lowVolumeBound {
		rep.Warnings = append(rep.Warnings, "recording volume is low")
	}
	if m.Duration < minDuration {
		rep.Warnings = append(rep.Warnings, "recording is shorter than half a second")
	}

	rep.Valid = len(rep.Errors) == 0 && m.QualityScore >= minScore
	return rep
}
